package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrUserNotFound is returned when a user id does not match any row.
var ErrUserNotFound = errors.New("user not found")

// UserDirectory maps verified identity-provider subjects to local user
// rows, provisioning an account on first sign-in.
type UserDirectory struct {
	db *sql.DB

	now func() time.Time
}

// NewUserDirectory creates a user directory over the platform's users
// table.
func NewUserDirectory(db *sql.DB) *UserDirectory {
	return &UserDirectory{db: db, now: time.Now}
}

// FindOrCreate resolves a verified identity to a local user. First
// sign-in inserts a row; later sign-ins refresh the email, display name
// and last login timestamp from the identity provider.
func (d *UserDirectory) FindOrCreate(ctx context.Context, identity *Identity) (*User, error) {
	if identity == nil || identity.Subject == "" {
		return nil, fmt.Errorf("identity subject is required")
	}

	now := d.now().UTC()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (external_id, email, display_name, created_at, last_login_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_id) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name,
			last_login_at = excluded.last_login_at
	`, identity.Subject, identity.Email, identity.Name, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	var (
		user        User
		lastLoginAt sql.NullTime
	)
	err = d.db.QueryRowContext(ctx, `
		SELECT id, external_id, email, display_name, created_at, last_login_at
		FROM users
		WHERE external_id = $1
	`, identity.Subject).Scan(
		&user.ID,
		&user.ExternalID,
		&user.Email,
		&user.DisplayName,
		&user.CreatedAt,
		&lastLoginAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		user.LastLoginAt = &t
	}

	return &user, nil
}

// Get loads a user by local id.
func (d *UserDirectory) Get(ctx context.Context, id int64) (*User, error) {
	var (
		user        User
		lastLoginAt sql.NullTime
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT id, external_id, email, display_name, created_at, last_login_at
		FROM users
		WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.ExternalID,
		&user.Email,
		&user.DisplayName,
		&user.CreatedAt,
		&lastLoginAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		user.LastLoginAt = &t
	}

	return &user, nil
}
