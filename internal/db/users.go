package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ovenbook/internal/model"
)

const userColumns = `id, name, email, role, status, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

// GetUser returns the user or (nil, nil) when it does not exist.
func (db *DB) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, db.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail looks a user up by case-insensitive email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		db.rebind(`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER(?)`), email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (db *DB) CreateUser(ctx context.Context, u *model.User) error {
	_, err := db.ExecContext(ctx, db.rebind(`
		INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Name, u.Email, u.Role, u.Status, db.ts(u.CreatedAt), db.ts(u.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (db *DB) UpdateUser(ctx context.Context, u *model.User) error {
	res, err := db.ExecContext(ctx, db.rebind(`
		UPDATE users SET name = ?, email = ?, role = ?, status = ?, updated_at = ? WHERE id = ?`),
		u.Name, u.Email, u.Role, u.Status, db.ts(u.UpdatedAt), u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return expectOne(res, "user", u.ID)
}

// ListUsers returns users with the given status, or all users when status is empty.
func (db *DB) ListUsers(ctx context.Context, status model.UserStatus) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id`

	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
