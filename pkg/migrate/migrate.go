// Package migrate applies versioned SQL schema migrations to a SQLite
// database.
package migrate

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ErrDuplicateVersion is returned when two migrations share a version.
var ErrDuplicateVersion = errors.New("duplicate migration version")

// Migration is one schema step. Down may be empty for steps that cannot be
// reverted.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Source supplies the known migrations.
type Source interface {
	Migrations() ([]Migration, error)
}

// DB is satisfied by both *sql.DB and *sql.Tx.
type DB interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

const defaultTable = "schema_migrations"

// Migrator runs migrations from a Source and records the applied version
// in its own table.
type Migrator struct {
	db     *sql.DB
	source Source
	table  string
	logger *zap.SugaredLogger
}

// NewMigrator creates a migrator. An empty table name selects
// "schema_migrations".
func NewMigrator(db *sql.DB, source Source, table string, logger *zap.SugaredLogger) *Migrator {
	if table == "" {
		table = defaultTable
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Migrator{db: db, source: source, table: table, logger: logger}
}

// MigrateUp applies every migration newer than the current version.
func (m *Migrator) MigrateUp() error {
	return m.MigrateTo(-1)
}

// MigrateTo moves the schema to targetVersion, or to the latest version
// when targetVersion is -1.
func (m *Migrator) MigrateTo(targetVersion int) error {
	current, err := m.CurrentVersion()
	if err != nil {
		return err
	}

	migrations, err := m.sorted()
	if err != nil {
		return err
	}
	if targetVersion == -1 {
		targetVersion = 0
		if len(migrations) > 0 {
			targetVersion = migrations[len(migrations)-1].Version
		}
	}

	if targetVersion < current {
		for i := len(migrations) - 1; i >= 0; i-- {
			mg := migrations[i]
			if mg.Version <= current && mg.Version > targetVersion {
				if err := m.execute(mg, false); err != nil {
					return fmt.Errorf("failed to revert migration %d: %w", mg.Version, err)
				}
			}
		}
		return nil
	}

	for _, mg := range migrations {
		if mg.Version > current && mg.Version <= targetVersion {
			if err := m.execute(mg, true); err != nil {
				return fmt.Errorf("failed to apply migration %d: %w", mg.Version, err)
			}
		}
	}
	return nil
}

// CurrentVersion returns the highest applied version, creating the
// tracking table if needed.
func (m *Migrator) CurrentVersion() (int, error) {
	_, err := m.db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`, m.table))
	if err != nil {
		return 0, fmt.Errorf("failed to create migration table: %w", err)
	}

	var version int
	if err := m.db.QueryRow(fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", m.table)).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// Pending returns the migrations not applied yet, oldest first.
func (m *Migrator) Pending() ([]Migration, error) {
	current, err := m.CurrentVersion()
	if err != nil {
		return nil, err
	}
	migrations, err := m.sorted()
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, mg := range migrations {
		if mg.Version > current {
			pending = append(pending, mg)
		}
	}
	return pending, nil
}

func (m *Migrator) sorted() ([]Migration, error) {
	migrations, err := m.source.Migrations()
	if err != nil {
		return nil, fmt.Errorf("failed to get migrations: %w", err)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func (m *Migrator) execute(mg Migration, up bool) error {
	stmt, direction := mg.Up, "up"
	if !up {
		stmt, direction = mg.Down, "down"
	}
	if stmt == "" {
		return fmt.Errorf("migration %d has no %s SQL", mg.Version, direction)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if err := m.setVersion(tx, mg.Version, up); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	m.logger.Infof("applied migration %d (%s) %s", mg.Version, mg.Name, direction)
	return nil
}

func (m *Migrator) setVersion(db DB, version int, up bool) error {
	var err error
	if up {
		_, err = db.Exec(fmt.Sprintf("INSERT OR REPLACE INTO %s (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)", m.table), version)
	} else {
		_, err = db.Exec(fmt.Sprintf("DELETE FROM %s WHERE version >= ?", m.table), version)
	}
	if err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}
	return nil
}
