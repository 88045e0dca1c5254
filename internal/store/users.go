package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CountUsers returns the number of registered users.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// CreateBootstrapUser inserts the first user, but only while the users table is
// empty. The check and insert run inside one transaction so concurrent
// bootstrap attempts cannot both succeed.
func (s *Store) CreateBootstrapUser(ctx context.Context, username, passwordHash string) (*User, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(username) == "" {
		return nil, errors.New("username is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin bootstrap tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&count); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil, ErrAlreadyInitialized
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, passwordHash, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert bootstrap user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bootstrap tx: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// CreateUser registers a new user.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(username) == "" {
		return nil, errors.New("username is empty")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, passwordHash, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByID fetches a user by identifier.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`,
		id,
	)
	return scanUser(row)
}

// GetUserByUsername fetches a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`,
		username,
	)
	return scanUser(row)
}

// ListUsers returns all users ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT id, username, password_hash, created_at FROM users ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdatePasswordHash replaces the stored password hash for a user.
func (s *Store) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(scanner interface{ Scan(dest ...any) error }) (*User, error) {
	var (
		id           int64
		username     string
		passwordHash string
		createdRaw   string
	)
	if err := scanner.Scan(&id, &username, &passwordHash, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user := &User{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		user.CreatedAt = created
	}
	return user, nil
}
