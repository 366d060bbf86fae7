// Package radius manages user rows in a FreeRADIUS SQL schema
// (radcheck, radreply, radusergroup).
package radius

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	AttrCleartextPassword = "Cleartext-Password"
	AttrAuthType          = "Auth-Type"
	AuthTypeReject        = "Reject"
)

var ErrUserExists = errors.New("radius user already exists")

type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open prepares a store without dialing; reachability is checked by Ping.
func Open(driver, dsn string, timeout time.Duration) (*Store, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open radius store: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return New(db, timeout), nil
}

func New(db *sqlx.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{db: db, timeout: timeout}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) UserExists(ctx context.Context, username string) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var exists bool
	query := s.db.Rebind(`SELECT EXISTS(SELECT 1 FROM radcheck WHERE username = ?)`)
	err := s.db.GetContext(ctx, &exists, query, username)
	return exists, err
}

// CreateUser inserts the password row, failing with ErrUserExists when any
// row for username is already present.
func (s *Store) CreateUser(ctx context.Context, username, password string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT EXISTS(SELECT 1 FROM radcheck WHERE username = ?)`), username); err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s: %w", username, ErrUserExists)
	}

	query := tx.Rebind(`INSERT INTO radcheck (username, attribute, op, value) VALUES (?, ?, ':=', ?)`)
	if _, err := tx.ExecContext(ctx, query, username, AttrCleartextPassword, password); err != nil {
		return err
	}
	return tx.Commit()
}

// AddReject blocks authentication for username without removing its
// password row. Adding a reject rule twice leaves a single rule.
func (s *Store) AddReject(ctx context.Context, username string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	query := s.db.Rebind(`
        INSERT INTO radcheck (username, attribute, op, value)
        SELECT ?, ?, ':=', ?
        WHERE NOT EXISTS (
            SELECT 1 FROM radcheck WHERE username = ? AND attribute = ? AND value = ?
        )`)
	_, err := s.db.ExecContext(ctx, query,
		username, AttrAuthType, AuthTypeReject,
		username, AttrAuthType, AuthTypeReject,
	)
	return err
}

func (s *Store) RemoveReject(ctx context.Context, username string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	query := s.db.Rebind(`DELETE FROM radcheck WHERE username = ? AND attribute = ? AND value = ?`)
	_, err := s.db.ExecContext(ctx, query, username, AttrAuthType, AuthTypeReject)
	return err
}

func (s *Store) IsRejected(ctx context.Context, username string) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var exists bool
	query := s.db.Rebind(`SELECT EXISTS(SELECT 1 FROM radcheck WHERE username = ? AND attribute = ? AND value = ?)`)
	err := s.db.GetContext(ctx, &exists, query, username, AttrAuthType, AuthTypeReject)
	return exists, err
}

// DeleteUser removes every row for username across the user tables and
// reports how many radcheck rows were removed.
func (s *Store) DeleteUser(ctx context.Context, username string) (int64, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM radcheck WHERE username = ?`), username)
	if err != nil {
		return 0, err
	}
	removed, _ := res.RowsAffected()

	for _, table := range []string{"radreply", "radusergroup"} {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM `+table+` WHERE username = ?`), username); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}
