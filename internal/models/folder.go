package models

import (
	"fmt"
	"strings"
	"time"
)

const maxFolderNameLength = 64

// Folder is a flat per-owner grouping for file entries.
type Folder struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ParseFolderName validates and canonicalizes a folder name.
func ParseFolderName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("folder name is required")
	}
	if len(name) > maxFolderNameLength {
		return "", fmt.Errorf("folder name too long")
	}
	if strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("folder name must not contain path separators")
	}
	return name, nil
}
