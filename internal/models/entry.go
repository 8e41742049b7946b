package models

import (
	"fmt"
	"strings"
	"time"
)

// Visibility describes who may read a file entry besides its owner.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
	VisibilityShared  Visibility = "shared"
)

var validVisibilities = map[Visibility]struct{}{
	VisibilityPrivate: {},
	VisibilityPublic:  {},
	VisibilityShared:  {},
}

// FileEntry is a user-owned logical pointer at stored content. The digest
// never changes after creation; rename and move touch name and folder only.
type FileEntry struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	DisplayName string    `json:"display_name"`
	FolderID    string    `json:"folder_id,omitempty"`
	Digest      string    `json:"digest"`
	LogicalSize int64     `json:"logical_size"`
	Visibility  string    `json:"visibility"`
	CreatedAt   time.Time `json:"created_at"`
}

// ParseVisibility validates and canonicalizes a visibility value.
// Empty input defaults to private.
func ParseVisibility(raw string) (Visibility, error) {
	value := Visibility(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return VisibilityPrivate, nil
	}
	if _, ok := validVisibilities[value]; !ok {
		return "", fmt.Errorf("invalid visibility: %s", value)
	}
	return value, nil
}

const maxDisplayNameLength = 255

// ValidateDisplayName checks a user-visible file name.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("file name is required")
	}
	if len(name) > maxDisplayNameLength {
		return fmt.Errorf("file name too long")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("file name must not contain path separators")
	}
	return nil
}
