package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"fknsrs.biz/p/playlister/internal/ctxlogger"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// migration holds both directions of a numbered schema change, loaded from
// sql/NNNN_name_up.sql and sql/NNNN_name_down.sql.
type migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFiles.ReadDir("sql")
	if err != nil {
		return nil, fmt.Errorf("loadMigrations: could not read migration directory: %w", err)
	}

	m := make(map[int]*migration)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		versionText, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}

		version, err := strconv.Atoi(versionText)
		if err != nil {
			continue
		}

		content, err := migrationFiles.ReadFile(path.Join("sql", name))
		if err != nil {
			return nil, fmt.Errorf("loadMigrations: could not read %s: %w", name, err)
		}

		if m[version] == nil {
			m[version] = &migration{Version: version}
		}

		switch {
		case strings.HasSuffix(rest, "_up.sql"):
			m[version].Name = strings.TrimSuffix(rest, "_up.sql")
			m[version].Up = string(content)
		case strings.HasSuffix(rest, "_down.sql"):
			m[version].Down = string(content)
		}
	}

	var a []migration
	for _, e := range m {
		if e.Up == "" || e.Down == "" {
			return nil, fmt.Errorf("loadMigrations: migration %d is missing a direction", e.Version)
		}
		a = append(a, *e)
	}

	sort.Slice(a, func(i, j int) bool { return a[i].Version < a[j].Version })

	return a, nil
}

func splitStatements(script string) []string {
	var statements []string

	for _, stmt := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			if i := strings.Index(line, "--"); i >= 0 {
				line = line[:i]
			}
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}

		if len(lines) > 0 {
			statements = append(statements, strings.Join(lines, "\n"))
		}
	}

	return statements
}

// Migrate applies every migration that is not yet recorded in
// schema_migrations, each in its own transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, "create table if not exists schema_migrations (version integer primary key, applied_at datetime not null default current_timestamp)"); err != nil {
		return fmt.Errorf("Migrate: could not create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var applied int
		if err := db.QueryRowContext(ctx, "select count(*) from schema_migrations where version = ?1", m.Version).Scan(&applied); err != nil {
			return fmt.Errorf("Migrate: could not check migration %d: %w", m.Version, err)
		}
		if applied > 0 {
			continue
		}

		ctxlogger.GetLogger(ctx).WithField("migration.version", m.Version).WithField("migration.name", m.Name).Info("applying migration")

		if err := usingTx(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			for _, stmt := range splitStatements(m.Up) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("%w\nstatement: %s", err, stmt)
				}
			}

			_, err := tx.ExecContext(ctx, "insert into schema_migrations (version) values (?1)", m.Version)
			return err
		}); err != nil {
			return fmt.Errorf("Migrate: could not apply migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

// Rollback reverts the most recently applied migration.
func Rollback(ctx context.Context, db *sql.DB) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	var current int
	if err := db.QueryRowContext(ctx, "select coalesce(max(version), 0) from schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("Rollback: could not get current version: %w", err)
	}

	if current == 0 {
		return fmt.Errorf("Rollback: no migrations have been applied")
	}

	for _, m := range migrations {
		if m.Version != current {
			continue
		}

		return usingTx(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			for _, stmt := range splitStatements(m.Down) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("Rollback: %w\nstatement: %s", err, stmt)
				}
			}

			_, err := tx.ExecContext(ctx, "delete from schema_migrations where version = ?1", m.Version)
			return err
		})
	}

	return fmt.Errorf("Rollback: migration %d not found", current)
}
