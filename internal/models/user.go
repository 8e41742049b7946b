package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	maxUsernameLength = 32

	// DefaultQuotaLimitBytes matches the historical 10 MiB per-user default.
	DefaultQuotaLimitBytes int64 = 10 * 1024 * 1024
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9._-]*[a-z0-9])?$`)

// UserQuota is the per-user accounting row. LogicalBytesUsed is the sum of
// logical sizes over the user's live entries, independent of physical
// sharing.
type UserQuota struct {
	Username         string    `json:"username"`
	LogicalBytesUsed int64     `json:"logical_bytes_used"`
	QuotaLimitBytes  int64     `json:"quota_limit_bytes"`
	CreatedAt        time.Time `json:"created_at"`
}

// NormalizeUsername returns the canonical lowercase username and validates
// allowed characters.
func NormalizeUsername(raw string) (string, error) {
	username := strings.TrimSpace(strings.ToLower(raw))
	if username == "" {
		return "", fmt.Errorf("username is required")
	}
	if len(username) > maxUsernameLength {
		return "", fmt.Errorf("username too long")
	}
	if !usernamePattern.MatchString(username) {
		return "", fmt.Errorf("invalid username")
	}
	return username, nil
}
