package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/creamsy-pos/internal/domain"
	"github.com/fjod/creamsy-pos/internal/gateway"
	log "github.com/sirupsen/logrus"
)

var ErrNotSignedIn = errors.New("not signed in")

// DefaultExpiryMargin is how long before the stated expiry a token is already
// treated as expired.
const DefaultExpiryMargin = 60 * time.Second

// used when the backend reports no lifetime at all
const fallbackLifetime = time.Hour

type AuthClient interface {
	SignIn(ctx context.Context, email, password string) (gateway.AuthGrant, error)
	Refresh(ctx context.Context, refreshToken string) (gateway.AuthGrant, error)
}

type Store interface {
	SaveSession(ctx context.Context, sess domain.Session) error
	LoadSession(ctx context.Context) (domain.Session, bool, error)
	ClearSession(ctx context.Context) error
}

type RestoreResult int

const (
	RequireLogin RestoreResult = iota
	Ready
	Transient
)

func (r RestoreResult) String() string {
	switch r {
	case Ready:
		return "ready"
	case Transient:
		return "transient"
	default:
		return "require_login"
	}
}

// Manager owns the current session. All state changes, including refresh,
// happen under one mutex so concurrent callers never refresh twice.
type Manager struct {
	auth   AuthClient
	store  Store
	margin time.Duration
	now    func() time.Time

	mu      sync.Mutex
	current *domain.Session
}

func NewManager(auth AuthClient, store Store, margin time.Duration) *Manager {
	if margin < 0 {
		margin = DefaultExpiryMargin
	}
	return &Manager{
		auth:   auth,
		store:  store,
		margin: margin,
		now:    time.Now,
	}
}

func (m *Manager) SignIn(ctx context.Context, email, password string) (domain.Session, error) {
	grant, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		return domain.Session{}, fmt.Errorf("sign in: %w", err)
	}

	sess := m.fromGrant(grant, domain.Session{})
	if sess.UserID == "" {
		return domain.Session{}, fmt.Errorf("sign in: %w", &gateway.Error{
			Op: "sign in", Kind: gateway.ErrServerError, Message: "response has no user id",
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = &sess
	m.persist(ctx, sess)

	log.WithField("user_id", sess.UserID).Info("signed in")
	return sess, nil
}

// RestoreOrRefresh decides at startup whether the persisted session can be
// used. An expired session costs exactly one refresh call.
func (m *Manager) RestoreOrRefresh(ctx context.Context) (RestoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok, err := m.store.LoadSession(ctx)
	if err != nil {
		return RequireLogin, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		m.current = nil
		return RequireLogin, nil
	}

	m.current = &sess
	if !sess.Expired(m.now(), m.margin) {
		return Ready, nil
	}

	if _, err := m.refreshLocked(ctx); err != nil {
		if m.current == nil {
			return RequireLogin, nil
		}
		return Transient, err
	}
	return Ready, nil
}

// SignOut forgets the session in memory and on disk. Calling it while signed
// out is not an error.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil
	if err := m.store.ClearSession(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (m *Manager) CurrentUserID() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return "", false
	}
	return m.current.UserID, true
}

// Current returns a copy of the in-memory session.
func (m *Manager) Current() (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return domain.Session{}, false
	}
	return *m.current, true
}

// Credentials implements gateway.TokenSource. It fails with ErrNotSignedIn
// before any I/O and refreshes an expired token on the way.
func (m *Manager) Credentials(ctx context.Context) (gateway.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return gateway.Credentials{}, ErrNotSignedIn
	}

	sess := *m.current
	if sess.Expired(m.now(), m.margin) {
		var err error
		sess, err = m.refreshLocked(ctx)
		if err != nil {
			if m.current == nil {
				return gateway.Credentials{}, fmt.Errorf("%w: %w", ErrNotSignedIn, err)
			}
			return gateway.Credentials{}, fmt.Errorf("refresh session: %w", err)
		}
	}
	return gateway.Credentials{AccessToken: sess.AccessToken, UserID: sess.UserID}, nil
}

// refreshLocked trades the current refresh token for a new session. A
// definitive rejection drops the session; anything else keeps it for a later
// attempt. m.mu must be held.
func (m *Manager) refreshLocked(ctx context.Context) (domain.Session, error) {
	old := *m.current
	if old.RefreshToken == "" {
		m.clearLocked(ctx)
		return domain.Session{}, fmt.Errorf("refresh token: %w", gateway.ErrTokenRejected)
	}

	grant, err := m.auth.Refresh(ctx, old.RefreshToken)
	if err != nil {
		if isDefinitive(err) {
			log.WithError(err).Warn("refresh rejected, session cleared")
			m.clearLocked(ctx)
		} else {
			log.WithError(err).Warn("refresh failed, keeping session")
		}
		return domain.Session{}, err
	}

	sess := m.fromGrant(grant, old)
	m.current = &sess
	m.persist(ctx, sess)
	return sess, nil
}

func (m *Manager) clearLocked(ctx context.Context) {
	m.current = nil
	if err := m.store.ClearSession(ctx); err != nil {
		log.WithError(err).Warn("failed to clear persisted session")
	}
}

// persist failures only cost the next cold start a login
func (m *Manager) persist(ctx context.Context, sess domain.Session) {
	if err := m.store.SaveSession(ctx, sess); err != nil {
		log.WithError(err).Warn("failed to persist session")
	}
}

// fromGrant builds a session from grant, keeping fields of prev the response
// left out.
func (m *Manager) fromGrant(grant gateway.AuthGrant, prev domain.Session) domain.Session {
	sess := domain.Session{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		UserID:       grant.UserID,
		ExpiresAt:    grant.ExpiresAt,
	}
	if sess.RefreshToken == "" {
		sess.RefreshToken = prev.RefreshToken
	}
	if sess.UserID == "" {
		sess.UserID = prev.UserID
	}
	if sess.ExpiresAt.IsZero() {
		sess.ExpiresAt = m.now().Add(fallbackLifetime)
	}
	return sess
}

func isDefinitive(err error) bool {
	return errors.Is(err, gateway.ErrTokenRejected) ||
		errors.Is(err, gateway.ErrBadRequest) ||
		errors.Is(err, gateway.ErrInvalidCredentials)
}
