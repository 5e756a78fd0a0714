package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fjod/creamsy-pos/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const sessionNamespace = "pos_session"

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyUserID       = "user_id"
	keyExpiresAt    = "expires_at"
)

// Store keeps device-local preferences in sqlite. The only namespace in use
// is the persisted session.
type Store struct {
	db *sqlx.DB
}

type preference struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to :memory: is a fresh database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) RunMigrations() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

// SaveSession replaces the persisted session as a whole.
func (s *Store) SaveSession(ctx context.Context, sess domain.Session) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM preferences WHERE namespace = $1`, sessionNamespace); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	values := map[string]string{
		keyAccessToken:  sess.AccessToken,
		keyRefreshToken: sess.RefreshToken,
		keyUserID:       sess.UserID,
		keyExpiresAt:    strconv.FormatInt(sess.ExpiresAt.UnixMilli(), 10),
	}
	for k, v := range values {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO preferences (namespace, key, value) VALUES ($1, $2, $3)`,
			sessionNamespace, k, v,
		)
		if err != nil {
			return fmt.Errorf("failed to save %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// LoadSession returns the persisted session. ok is false when nothing usable
// is stored.
func (s *Store) LoadSession(ctx context.Context) (domain.Session, bool, error) {
	var prefs []preference
	err := s.db.SelectContext(ctx, &prefs,
		`SELECT key, value FROM preferences WHERE namespace = $1`,
		sessionNamespace,
	)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("failed to query session: %w", err)
	}

	values := make(map[string]string, len(prefs))
	for _, p := range prefs {
		values[p.Key] = p.Value
	}

	sess := domain.Session{
		AccessToken:  values[keyAccessToken],
		RefreshToken: values[keyRefreshToken],
		UserID:       values[keyUserID],
	}
	if sess.IsZero() {
		return domain.Session{}, false, nil
	}
	if ms, err := strconv.ParseInt(values[keyExpiresAt], 10, 64); err == nil {
		sess.ExpiresAt = time.UnixMilli(ms)
	}
	return sess, true, nil
}

func (s *Store) ClearSession(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE namespace = $1`, sessionNamespace); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
