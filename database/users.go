package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/mbolis/lead-scorer/errs"
)

// refresh tokens live for a year; access tokens are short-lived and never stored
const refreshTTL = 8760 * time.Hour

// PutUser creates the owner account username, or replaces its password hash.
func (s *Store) PutUser(ctx context.Context, username string, passwordHash []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user (username, password_hash) VALUES (?, ?)
		ON CONFLICT (username) DO UPDATE SET password_hash = excluded.password_hash`,
		username,
		passwordHash,
	)
	return errs.Wrap(errs.Store, err, "db.put_user")
}

// PasswordHash returns the bcrypt hash stored for username.
func (s *Store) PasswordHash(ctx context.Context, username string) ([]byte, error) {
	var hash []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT password_hash FROM user WHERE username = ?`,
		username,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.Auth, "db.get_user", "invalid credentials")
	}
	if err != nil {
		return nil, errs.Wrap(errs.Store, err, "db.get_user")
	}
	return hash, nil
}

func (s *Store) StoreToken(ctx context.Context, username, tokenID, refreshTokenID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token (username, token_id, refresh_token_id, expiration)
		VALUES (?, ?, ?, ?)`,
		username,
		tokenID,
		refreshTokenID,
		time.Now().UTC().Add(refreshTTL),
	)
	return errs.Wrap(errs.Store, err, "db.store_token")
}

// ConsumeToken deletes a stored refresh token, failing if it was unknown or
// already expired. Every refresh token is usable once.
func (s *Store) ConsumeToken(ctx context.Context, username, tokenID, refreshTokenID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Store, err, "db.begin_tx")
	}
	defer tx.Rollback()

	var id int64
	var expiration time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT id, expiration
		FROM token
		WHERE username = ?
			AND token_id = ?
			AND refresh_token_id = ?`,
		username,
		tokenID,
		refreshTokenID,
	).Scan(&id, &expiration)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.New(errs.Auth, "db.consume_token", "could not refresh")
	}
	if err != nil {
		return errs.Wrap(errs.Store, err, "db.consume_token")
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM token WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap(errs.Store, err, "db.consume_token.delete")
	}
	err = tx.Commit()
	if err != nil {
		return errs.Wrap(errs.Store, err, "db.consume_token.commit")
	}

	if expiration.Before(time.Now()) {
		return errs.New(errs.Auth, "db.consume_token", "could not refresh")
	}
	return nil
}

// RevokeTokens signs username out everywhere.
func (s *Store) RevokeTokens(ctx context.Context, username string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM token WHERE username = ?`,
		username,
	)
	return errs.Wrap(errs.Store, err, "db.revoke_tokens")
}
