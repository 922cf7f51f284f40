// Package sqlite is the transactional registry backend. Unlike the YAML
// snapshot store it does not rewrite the world on every mutation, so it is
// the right choice once the registry outgrows a handful of records.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/magnolialogic/go-apns-server/pkg/registry"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the database at path and applies migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	s := &Store{db: db, logger: logger.With("component", "SQLiteStore", "path", path)}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// --- Mutations ---

func (s *Store) CreateUser(ctx context.Context, user registry.User, token registry.Token) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, user.ID).Scan(&exists)
	switch {
	case err == nil:
		return fmt.Errorf("user %s: %w", user.ID, registry.ErrConflict)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("check user exists: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users(id, name, admin) VALUES(?, ?, ?)`,
		user.ID, user.Name, boolToInt(user.Admin),
	); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if err := upsertToken(ctx, tx, token); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ReplaceUser(ctx context.Context, user registry.User, token registry.Token) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin replace user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := false
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, user.ID).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
	case err != nil:
		return false, fmt.Errorf("check user exists: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users(id, name, admin) VALUES(?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, admin = excluded.admin`,
		user.ID, user.Name, boolToInt(user.Admin),
	); err != nil {
		return false, fmt.Errorf("upsert user: %w", err)
	}
	if err := upsertToken(ctx, tx, token); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return created, nil
}

func (s *Store) RenameUser(ctx context.Context, id, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rename user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT name FROM users WHERE id = ?`, id).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("user %s: %w", id, registry.ErrNotFound)
	case err != nil:
		return fmt.Errorf("read user: %w", err)
	}
	if current == name {
		return registry.ErrNotModified
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET name = ? WHERE id = ?`, name, id); err != nil {
		return fmt.Errorf("rename user: %w", err)
	}
	return tx.Commit()
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("cascade tokens: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, registry.ErrNotFound)
	}
	return tx.Commit()
}

func (s *Store) DeleteToken(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("token %s: %w", id, registry.ErrNotFound)
	}
	return nil
}

// --- Reads ---

func (s *Store) GetUser(ctx context.Context, id string) (registry.UserRecord, error) {
	var record registry.UserRecord
	var admin int
	err := s.db.QueryRowContext(ctx, `SELECT id, name, admin FROM users WHERE id = ?`, id).
		Scan(&record.ID, &record.Name, &admin)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return registry.UserRecord{}, fmt.Errorf("user %s: %w", id, registry.ErrNotFound)
	case err != nil:
		return registry.UserRecord{}, fmt.Errorf("read user: %w", err)
	}
	record.Admin = admin != 0

	tokens, err := s.listIDs(ctx, `SELECT id FROM tokens WHERE user_id = ? ORDER BY rowid`, id)
	if err != nil {
		return registry.UserRecord{}, err
	}
	record.TokenIDs = tokens
	return record, nil
}

func (s *Store) GetToken(ctx context.Context, id string) (registry.Token, error) {
	var token registry.Token
	err := s.db.QueryRowContext(ctx, `SELECT id, bundle_id, user_id FROM tokens WHERE id = ?`, id).
		Scan(&token.ID, &token.BundleID, &token.UserID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return registry.Token{}, fmt.Errorf("token %s: %w", id, registry.ErrNotFound)
	case err != nil:
		return registry.Token{}, fmt.Errorf("read token: %w", err)
	}
	return token, nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, `SELECT id FROM users ORDER BY rowid`)
}

func (s *Store) ListUsersForBundle(ctx context.Context, bundleID string) ([]string, error) {
	return s.listIDs(ctx,
		`SELECT user_id FROM tokens WHERE bundle_id = ? GROUP BY user_id ORDER BY MIN(rowid)`,
		bundleID)
}

func (s *Store) ListTokenIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, `SELECT id FROM tokens ORDER BY rowid`)
}

func (s *Store) ListTokensForBundle(ctx context.Context, bundleID string) ([]string, error) {
	return s.listIDs(ctx, `SELECT id FROM tokens WHERE bundle_id = ? ORDER BY rowid`, bundleID)
}

func (s *Store) ListTokensForUser(ctx context.Context, userID string) ([]string, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("user %s: %w", userID, registry.ErrUserNotFound)
	case err != nil:
		return nil, fmt.Errorf("check user exists: %w", err)
	}
	return s.listIDs(ctx, `SELECT id FROM tokens WHERE user_id = ? ORDER BY rowid`, userID)
}

// --- Helpers ---

func (s *Store) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	return ids, nil
}

// upsertToken enforces global token uniqueness: an existing id is reassigned
// to the new owner/bundle. The row keeps its rowid, preserving registration
// order across re-registrations.
func upsertToken(ctx context.Context, tx *sql.Tx, token registry.Token) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tokens(id, bundle_id, user_id) VALUES(?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET bundle_id = excluded.bundle_id, user_id = excluded.user_id`,
		token.ID, token.BundleID, token.UserID,
	); err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
