package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Migration struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	CreatedAt int64  `db:"created_at"`
}

type migrationFile struct {
	name string
	sql  string
}

const undefinedTable = pq.ErrorCode("42P01")

//go:embed scheme
var scheme embed.FS

var commentsRegExp = regexp.MustCompile(`(?s)/\*.*?\*/`)

func (s *Storage) executeMigrations(ctx context.Context, db *sqlx.DB) error {
	var rows []Migration
	if err := db.SelectContext(ctx, &rows, "SELECT id, name, created_at FROM migration"); err != nil && !isUndefinedTable(err) {
		return err
	}

	appliedMigrations := make(map[string]struct{})
	for _, row := range rows {
		appliedMigrations[row.Name] = struct{}{}
	}

	pending, err := pendingMigrations(scheme, "scheme", appliedMigrations)
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		tx.Rollback()
	}()

	now := time.Now().UnixNano()
	for _, migration := range pending {
		if _, err := tx.ExecContext(ctx, migration.sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.name, err)
		}
		if _, err := tx.ExecContext(ctx, db.Rebind("INSERT INTO migration (name, created_at) VALUES(?, ?)"), migration.name, now); err != nil {
			return fmt.Errorf("failed to insert executed migration: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations transaction: %w", err)
	}

	return nil
}

// pendingMigrations lists the sql files under dir not yet applied, in name
// order, with block comments stripped.
func pendingMigrations(fsys fs.FS, dir string, applied map[string]struct{}) ([]migrationFile, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		if _, ok := applied[entry.Name()]; ok {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	pending := make([]migrationFile, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, err
		}
		pending = append(pending, migrationFile{name: name, sql: commentsRegExp.ReplaceAllString(string(content), "")})
	}
	return pending, nil
}

func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == undefinedTable
}
