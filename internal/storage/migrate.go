package storage

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// PostgresMigrator applies the versioned reference and snapshot schema
type PostgresMigrator struct {
	databaseURL    string
	migrationsPath string
}

// NewPostgresMigrator creates a migrator for migrationsPath (a directory of
// NNNN_name.up.sql / NNNN_name.down.sql files)
func NewPostgresMigrator(databaseURL, migrationsPath string) *PostgresMigrator {
	return &PostgresMigrator{databaseURL: databaseURL, migrationsPath: migrationsPath}
}

func (p *PostgresMigrator) open() (*migrate.Migrate, error) {
	m, err := migrate.New(fmt.Sprintf("file://%s", p.migrationsPath), p.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

func (p *PostgresMigrator) run(action string, fn func(m *migrate.Migrate) error) error {
	m, err := p.open()
	if err != nil {
		return err
	}
	defer func() {
		_, _ = m.Close() // nolint:errcheck // cleanup in defer
	}()

	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	return nil
}

// Up applies every pending migration
func (p *PostgresMigrator) Up() error {
	return p.run("run migrations", func(m *migrate.Migrate) error { return m.Up() })
}

// Down rolls back the most recent migration
func (p *PostgresMigrator) Down() error {
	return p.run("rollback migration", func(m *migrate.Migrate) error { return m.Steps(-1) })
}

// Version returns the applied version; 0 when nothing has been applied
func (p *PostgresMigrator) Version() (version uint, dirty bool, err error) {
	err = p.run("get migration version", func(m *migrate.Migrate) error {
		var verr error
		version, dirty, verr = m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		return verr
	})
	return version, dirty, err
}
