package main

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS implementors (
	trait     TEXT    NOT NULL,
	package   TEXT    NOT NULL,
	position  INTEGER NOT NULL,
	text      TEXT    NOT NULL,
	plain     TEXT    NOT NULL,
	synthetic INTEGER NOT NULL,
	types     TEXT    NOT NULL,
	PRIMARY KEY (trait, package, position)
);
CREATE INDEX IF NOT EXISTS implementors_types ON implementors (types);
CREATE TABLE IF NOT EXISTS trait_packages (
	trait   TEXT NOT NULL,
	package TEXT NOT NULL,
	PRIMARY KEY (trait, package)
);
`

// typesSep joins the type paths of one implementor in a single column.
const typesSep = "\n"

// SQLiteStore persists implementors tables in SQLite.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens the database at path and creates the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// ReplaceTable rewrites the rows of every package in t for trait in one
// transaction. Packages of trait not present in t are kept.
func (s *SQLiteStore) ReplaceTable(ctx context.Context, trait string, t Table) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	insert, err := tx.PrepareContext(ctx,
		`INSERT INTO implementors (trait, package, position, text, plain, synthetic, types)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insert.Close()

	for _, pkg := range t.Packages() {
		if _, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO trait_packages (trait, package) VALUES (?, ?)`, trait, pkg); err != nil {
			return fmt.Errorf("register %s/%s: %w", trait, pkg, err)
		}
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM implementors WHERE trait = ? AND package = ?`, trait, pkg); err != nil {
			return fmt.Errorf("delete %s/%s: %w", trait, pkg, err)
		}
		for pos, imp := range t[pkg] {
			synthetic := 0
			if imp.Synthetic {
				synthetic = 1
			}
			if _, err = insert.ExecContext(ctx, trait, pkg, pos, imp.Text, PlainText(imp.Text),
				synthetic, strings.Join(imp.Types, typesSep)); err != nil {
				return fmt.Errorf("insert %s/%s[%d]: %w", trait, pkg, pos, err)
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Table reads back the table of trait. Packages stored with an empty list
// come back as empty lists.
func (s *SQLiteStore) Table(ctx context.Context, trait string) (Table, error) {
	table, err := s.tablePackages(ctx, trait)
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTrait, trait)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT package, text, synthetic, types FROM implementors
		 WHERE trait = ? ORDER BY package, position`, trait)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", trait, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pkg, text, types string
			synthetic        int
		)
		if err := rows.Scan(&pkg, &text, &synthetic, &types); err != nil {
			return nil, err
		}
		table[pkg] = append(table[pkg], Implementor{
			Text:      text,
			Synthetic: synthetic != 0,
			Types:     strings.Split(types, typesSep),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

func (s *SQLiteStore) tablePackages(ctx context.Context, trait string) (Table, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT package FROM trait_packages WHERE trait = ?`, trait)
	if err != nil {
		return nil, fmt.Errorf("query packages of %s: %w", trait, err)
	}
	defer rows.Close()

	table := make(Table)
	for rows.Next() {
		var pkg string
		if err := rows.Scan(&pkg); err != nil {
			return nil, err
		}
		table[pkg] = []Implementor{}
	}
	return table, rows.Err()
}

// Traits lists every stored trait in sorted order.
func (s *SQLiteStore) Traits(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT DISTINCT trait FROM trait_packages ORDER BY trait`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var traits []string
	for rows.Next() {
		var trait string
		if err := rows.Scan(&trait); err != nil {
			return nil, err
		}
		traits = append(traits, trait)
	}
	return traits, rows.Err()
}

// Implementations returns the traits a type path implements, in sorted order.
func (s *SQLiteStore) Implementations(ctx context.Context, typePath string) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT trait, types FROM implementors WHERE instr(types, ?) > 0 ORDER BY trait`, typePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var traits []string
	for rows.Next() {
		var trait, types string
		if err := rows.Scan(&trait, &types); err != nil {
			return nil, err
		}
		if !slices.Contains(strings.Split(types, typesSep), typePath) {
			continue
		}
		if n := len(traits); n > 0 && traits[n-1] == trait {
			continue
		}
		traits = append(traits, trait)
	}
	return traits, rows.Err()
}
