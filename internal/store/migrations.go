package store

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents a schema migration step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus reports the current and available migration versions.
type MigrationStatus struct {
	CurrentVersion   int             `json:"current_version"`
	AvailableVersion int             `json:"available_version"`
	Pending          []MigrationInfo `json:"pending"`
}

// MigrationInfo describes a single migration.
type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// migrations is the ordered list of all schema migrations.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: users, blobs, file entries, folders",
		SQL: `
CREATE TABLE IF NOT EXISTS users (
  username TEXT PRIMARY KEY,
  logical_bytes_used INTEGER NOT NULL DEFAULT 0,
  quota_limit_bytes INTEGER NOT NULL,
  created_at TEXT NOT NULL,
  CHECK (logical_bytes_used >= 0),
  CHECK (logical_bytes_used <= quota_limit_bytes)
);

CREATE TABLE IF NOT EXISTS blobs (
  digest TEXT PRIMARY KEY,
  size_bytes INTEGER NOT NULL,
  blob_key TEXT NOT NULL,
  ref_count INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  CHECK (size_bytes >= 0),
  CHECK (ref_count >= 0)
);

CREATE TABLE IF NOT EXISTS folders (
  id TEXT PRIMARY KEY,
  owner TEXT NOT NULL,
  name TEXT NOT NULL,
  created_at TEXT NOT NULL,
  UNIQUE(owner, name),
  FOREIGN KEY (owner) REFERENCES users(username)
);

CREATE TABLE IF NOT EXISTS file_entries (
  id TEXT PRIMARY KEY,
  owner TEXT NOT NULL,
  display_name TEXT NOT NULL,
  folder_id TEXT,
  digest TEXT NOT NULL,
  logical_size INTEGER NOT NULL,
  visibility TEXT NOT NULL DEFAULT 'private',
  created_at TEXT NOT NULL,
  FOREIGN KEY (owner) REFERENCES users(username),
  FOREIGN KEY (folder_id) REFERENCES folders(id),
  FOREIGN KEY (digest) REFERENCES blobs(digest)
);

CREATE INDEX IF NOT EXISTS idx_file_entries_owner ON file_entries(owner, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_file_entries_digest ON file_entries(digest);
CREATE INDEX IF NOT EXISTS idx_file_entries_folder ON file_entries(folder_id);
CREATE INDEX IF NOT EXISTS idx_folders_owner ON folders(owner);
`,
	},
	{
		Version:     2,
		Description: "sharing: per-user grants and public share links",
		SQL: `
CREATE TABLE IF NOT EXISTS entry_shares (
  entry_id TEXT NOT NULL,
  grantee TEXT NOT NULL,
  shared_at TEXT NOT NULL,
  UNIQUE(entry_id, grantee),
  FOREIGN KEY (entry_id) REFERENCES file_entries(id) ON DELETE CASCADE,
  FOREIGN KEY (grantee) REFERENCES users(username)
);

CREATE TABLE IF NOT EXISTS share_links (
  token TEXT PRIMARY KEY,
  entry_id TEXT NOT NULL,
  created_by TEXT NOT NULL,
  created_at TEXT NOT NULL,
  revoked INTEGER NOT NULL DEFAULT 0,
  download_count INTEGER NOT NULL DEFAULT 0,
  FOREIGN KEY (entry_id) REFERENCES file_entries(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_entry_shares_grantee ON entry_shares(grantee);
CREATE INDEX IF NOT EXISTS idx_share_links_entry ON share_links(entry_id);
`,
	},
}

const migrationsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);
`

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist.
func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(migrationsTableSQL)
	return err
}

// currentVersion returns the highest applied migration version, or 0 if none.
func currentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// runMigrations applies all pending migrations in order.
func runMigrations(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for _, m := range sorted {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))", m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// MigrationPlan returns the current migration status without applying anything.
func MigrationPlan(db *sql.DB) (*MigrationStatus, error) {
	if err := ensureMigrationsTable(db); err != nil {
		return nil, err
	}

	current, err := currentVersion(db)
	if err != nil {
		return nil, err
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	available := 0
	if len(sorted) > 0 {
		available = sorted[len(sorted)-1].Version
	}

	var pending []MigrationInfo
	for _, m := range sorted {
		if m.Version > current {
			pending = append(pending, MigrationInfo{Version: m.Version, Description: m.Description})
		}
	}

	return &MigrationStatus{
		CurrentVersion:   current,
		AvailableVersion: available,
		Pending:          pending,
	}, nil
}
