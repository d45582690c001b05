package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/shop/store"
	"github.com/aussiebroadwan/shopauth/pkg/shopsdk"
	_ "modernc.org/sqlite"
)

// Store keeps the token state in a single-row SQLite table.
type Store struct {
	db  *sql.DB
	dsn string
	now func() time.Time
}

// NewStore opens the database at dsn. Call ApplyMigrations before use.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", withBusyTimeout(dsn))
	if err != nil {
		return nil, err
	}

	return &Store{
		db:  db,
		dsn: dsn,
		now: time.Now,
	}, nil
}

// withBusyTimeout makes every pooled connection wait for a lock instead of
// failing, since concurrent CLI processes may share the file.
func withBusyTimeout(dsn string) string {
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)"
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Load(ctx context.Context) (shopsdk.TokenState, error) {
	var state shopsdk.TokenState
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at FROM token_state WHERE id = 1`,
	).Scan(&state.AccessToken, &state.RefreshToken, &state.ExpiresAt)
	if err != nil {
		return shopsdk.TokenState{}, mapNotFound(err)
	}
	return state, nil
}

func (s *Store) Save(ctx context.Context, state shopsdk.TokenState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_state (id, access_token, refresh_token, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at    = excluded.expires_at,
			updated_at    = excluded.updated_at`,
		state.AccessToken, state.RefreshToken, state.ExpiresAt, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite store: save token state: %w", err)
	}
	return nil
}

// UpdatedAt reports when the record was last saved.
func (s *Store) UpdatedAt(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM token_state WHERE id = 1`).Scan(&t)
	if err != nil {
		return time.Time{}, mapNotFound(err)
	}
	return t, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

var _ store.Store = (*Store)(nil)
