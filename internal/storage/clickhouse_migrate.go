package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/portfolio-aggregator/internal/logging"
)

const clickhouseMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	filename String,
	applied_at DateTime DEFAULT now()
) ENGINE = MergeTree ORDER BY filename`

// RunClickHouseMigrations applies the .sql files of migrationsPath in name
// order, skipping files already recorded in schema_migrations
func RunClickHouseMigrations(ctx context.Context, db *ClickHouseDB, migrationsPath string) ([]string, error) {
	logger := logging.FromContext(ctx).WithField("path", migrationsPath)

	files, err := migrationFiles(migrationsPath)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		logger.Warn("No ClickHouse migration files found")
		return nil, nil
	}

	if err := db.Exec(ctx, clickhouseMigrationsTable); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, filename := range files {
		if applied[filename] {
			continue
		}
		content, err := os.ReadFile(filepath.Join(migrationsPath, filename)) // #nosec G304 - path comes from the trusted migrations directory
		if err != nil {
			return ran, fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		for i, stmt := range splitSQLStatements(string(content)) {
			if err := db.Exec(ctx, stmt); err != nil {
				logger.WithError(err).WithFields(logging.Fields{
					"file":      filename,
					"statement": i + 1,
					"sql":       truncate(stmt, 120),
				}).Error("ClickHouse migration statement failed")
				return ran, fmt.Errorf("failed to execute statement %d in %s: %w", i+1, filename, err)
			}
		}

		if err := db.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", filename); err != nil {
			return ran, fmt.Errorf("failed to record migration %s: %w", filename, err)
		}
		logger.WithField("file", filename).Info("Applied ClickHouse migration")
		ran = append(ran, filename)
	}
	return ran, nil
}

// ClickHouseMigrationStatus lists the applied migration files in order
func ClickHouseMigrationStatus(ctx context.Context, db *ClickHouseDB) ([]string, error) {
	if err := db.Exec(ctx, clickhouseMigrationsTable); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(applied))
	for name := range applied {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func appliedMigrations(ctx context.Context, db *ClickHouseDB) (map[string]bool, error) {
	rows, err := db.Conn().Query(ctx, "SELECT DISTINCT filename FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// splitSQLStatements splits a migration into statements on lines ending in
// ';', dropping comment-only lines and the trailing semicolons
func splitSQLStatements(content string) []string {
	var statements []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSuffix(strings.TrimSpace(current.String()), ";")
		if stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()
	return statements
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
