package db

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	embedded "github.com/wardstone/gatekeeper/migrations"
)

// MigrationStatus represents the state of a single migration.
type MigrationStatus struct {
	ID        string
	Checksum  string
	Applied   bool
	AppliedAt *time.Time
}

type migrationFile struct {
	ID       string
	SQL      string
	Checksum string
}

// MigrateUp runs all pending migrations against the database. Migrations
// are selected per driver, validated by checksum against already-applied
// entries, and applied in lexical order, each in its own transaction
// together with its audit record.
func MigrateUp(database *sqlx.DB) error {
	files, err := loadMigrationFiles(database.DriverName())
	if err != nil {
		return err
	}

	if err := createMigrationsTable(database); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// SHA256 mismatch means an applied migration file was edited after the
	// fact; refuse to continue rather than drift silently.
	if err := validateChecksums(database, files); err != nil {
		return fmt.Errorf("migration checksum validation failed: %w", err)
	}

	applied, err := appliedMigrations(database)
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}

	for _, m := range files {
		if applied[m.ID] {
			continue
		}

		tx, err := database.Beginx()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.ID, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %s: %w", m.ID, err)
		}
		record := `INSERT INTO schema_migrations (migration_id, checksum, applied_at) VALUES (?, ?, ?)`
		if _, err := tx.Exec(database.Rebind(record), m.ID, m.Checksum, time.Now().UTC()); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.ID, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.ID, err)
		}
	}

	return nil
}

// MigrateStatus returns the status of all known migrations.
func MigrateStatus(database *sqlx.DB) ([]MigrationStatus, error) {
	files, err := loadMigrationFiles(database.DriverName())
	if err != nil {
		return nil, err
	}
	if err := createMigrationsTable(database); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	var rows []struct {
		MigrationID string    `db:"migration_id"`
		Checksum    string    `db:"checksum"`
		AppliedAt   time.Time `db:"applied_at"`
	}
	if err := database.Select(&rows, `SELECT migration_id, checksum, applied_at FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	appliedAt := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		appliedAt[r.MigrationID] = r.AppliedAt
	}

	statuses := make([]MigrationStatus, 0, len(files))
	for _, m := range files {
		s := MigrationStatus{ID: m.ID, Checksum: m.Checksum}
		if at, ok := appliedAt[m.ID]; ok {
			s.Applied = true
			t := at
			s.AppliedAt = &t
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

func loadMigrationFiles(driver string) ([]migrationFile, error) {
	var migrationsFS embed.FS
	var dir string

	switch driver {
	case "sqlite3":
		migrationsFS = embedded.SqliteMigrations
		dir = "sqlite"
	case "postgres":
		migrationsFS = embedded.PostgresMigrations
		dir = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	var files []migrationFile
	err := fs.WalkDir(migrationsFS, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		sum := sha256.Sum256(content)
		files = append(files, migrationFile{
			ID:       filepath.Base(path),
			SQL:      string(content),
			Checksum: hex.EncodeToString(sum[:]),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse migrations: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
	return files, nil
}

func createMigrationsTable(database *sqlx.DB) error {
	_, err := database.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		migration_id TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL
	)`)
	return err
}

func validateChecksums(database *sqlx.DB, files []migrationFile) error {
	var rows []struct {
		MigrationID string `db:"migration_id"`
		Checksum    string `db:"checksum"`
	}
	if err := database.Select(&rows, `SELECT migration_id, checksum FROM schema_migrations`); err != nil {
		return err
	}

	known := make(map[string]string, len(files))
	for _, m := range files {
		known[m.ID] = m.Checksum
	}
	for _, r := range rows {
		want, ok := known[r.MigrationID]
		if !ok {
			return fmt.Errorf("applied migration %s missing from embedded files", r.MigrationID)
		}
		if want != r.Checksum {
			return fmt.Errorf("migration %s checksum mismatch", r.MigrationID)
		}
	}
	return nil
}

func appliedMigrations(database *sqlx.DB) (map[string]bool, error) {
	var ids []string
	if err := database.Select(&ids, `SELECT migration_id FROM schema_migrations`); err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(ids))
	for _, id := range ids {
		applied[id] = true
	}
	return applied, nil
}
