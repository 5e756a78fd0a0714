package http

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/fjod/creamsy-pos/internal/cart"
	"github.com/fjod/creamsy-pos/internal/checkout"
	"github.com/fjod/creamsy-pos/internal/domain"
	"github.com/shopspring/decimal"
)

type mockSessions struct {
	mu        sync.Mutex
	current   *domain.Session
	signInErr error
	signOuts  int
}

func (m *mockSessions) SignIn(_ context.Context, email, _ string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.signInErr != nil {
		return domain.Session{}, m.signInErr
	}
	sess := domain.Session{
		AccessToken: "access",
		UserID:      "user-" + email,
		ExpiresAt:   time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	m.current = &sess
	return sess, nil
}

func (m *mockSessions) SignOut(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signOuts++
	m.current = nil
	return nil
}

func (m *mockSessions) Current() (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return domain.Session{}, false
	}
	return *m.current, true
}

func (m *mockSessions) CurrentUserID() (string, bool) {
	sess, ok := m.Current()
	return sess.UserID, ok
}

type mockCatalog struct {
	mu         sync.Mutex
	products   []domain.Product
	refreshErr error
	writeErr   error
	created    []domain.Product
	updated    []domain.Product
	deleted    []string
	uploads    []string
	warmStarts int
	resets     int
	users      *mockSessions
	resetUsers []string // signed-in user at each reset
}

func (c *mockCatalog) Products() []domain.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Product{}, c.products...)
}

func (c *mockCatalog) FindByID(id string) (domain.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.products {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Product{}, false
}

func (c *mockCatalog) Refresh(context.Context) ([]domain.Product, error) {
	if c.refreshErr != nil {
		return nil, c.refreshErr
	}
	return c.Products(), nil
}

func (c *mockCatalog) WarmStart(ctx context.Context) ([]domain.Product, bool, error) {
	c.mu.Lock()
	c.warmStarts++
	c.mu.Unlock()
	products, err := c.Refresh(ctx)
	return products, false, err
}

func (c *mockCatalog) Reset(context.Context) {
	var userID string
	if c.users != nil {
		userID, _ = c.users.CurrentUserID()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	c.resetUsers = append(c.resetUsers, userID)
}

func (c *mockCatalog) Create(_ context.Context, p domain.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, p)
	return nil
}

func (c *mockCatalog) Update(_ context.Context, p domain.Product) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updated = append(c.updated, p)
	return nil
}

func (c *mockCatalog) Delete(_ context.Context, id string) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, id)
	return nil
}

func (c *mockCatalog) UploadImage(_ context.Context, data []byte, fileName, contentType string) (string, error) {
	if c.writeErr != nil {
		return "", c.writeErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploads = append(c.uploads, fileName+"|"+contentType+"|"+string(data))
	return "https://cdn.test/" + fileName, nil
}

type mockCheckout struct {
	tx   *domain.Transaction
	err  error
	paid []decimal.Decimal
	last *checkout.Attempt
}

func (m *mockCheckout) Checkout(_ context.Context, amountPaid decimal.Decimal) (*domain.Transaction, error) {
	m.paid = append(m.paid, amountPaid)
	if m.err != nil {
		return nil, m.err
	}
	return m.tx, nil
}

func (m *mockCheckout) LastAttempt() (checkout.Attempt, bool) {
	if m.last == nil {
		return checkout.Attempt{}, false
	}
	return *m.last, true
}

type mockHistory struct {
	txs         []domain.Transaction
	items       map[string][]domain.LineItemDetail
	listErr     error
	deleteErr   error
	selected    [][]string
	deleteAlls  int
	cached      []domain.Transaction
	cachedAt    time.Time
	reloads     int
	reloadError error
}

func (m *mockHistory) List(context.Context) ([]domain.Transaction, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.txs, nil
}

func (m *mockHistory) Items(_ context.Context, id string) ([]domain.LineItemDetail, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.items[id], nil
}

func (m *mockHistory) DeleteSelected(_ context.Context, ids []string) error {
	m.selected = append(m.selected, ids)
	return m.deleteErr
}

func (m *mockHistory) DeleteAll(context.Context) (int, error) {
	m.deleteAlls++
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	return len(m.txs), nil
}

func (m *mockHistory) Latest() ([]domain.Transaction, time.Time) {
	return m.cached, m.cachedAt
}

func (m *mockHistory) Reload(context.Context) error {
	m.reloads++
	return m.reloadError
}

func (m *mockHistory) Forget() {
	m.cached = nil
	m.cachedAt = time.Time{}
}

var (
	cone = domain.Product{ID: "A", Name: "Cone", Price: decimal.NewFromInt(5000), Stock: 2}
	cup  = domain.Product{ID: "B", Name: "Cup", Price: decimal.NewFromInt(2500), Stock: 10}
)

type fixture struct {
	sessions *mockSessions
	catalog  *mockCatalog
	cart     *cart.Engine
	checkout *mockCheckout
	history  *mockHistory
	router   http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		sessions: &mockSessions{current: &domain.Session{AccessToken: "access", UserID: "user-1"}},
		catalog:  &mockCatalog{products: []domain.Product{cone, cup}},
		checkout: &mockCheckout{},
		history:  &mockHistory{},
	}
	f.catalog.users = f.sessions
	f.cart = cart.NewEngine(f.catalog)

	f.router = NewRouter(Handlers{
		Session:     NewSessionHandler(f.sessions, f.catalog, f.cart, f.history, time.Second),
		Products:    NewProductHandler(f.catalog, time.Second),
		Cart:        NewCartHandler(f.cart, f.catalog),
		Checkout:    NewCheckoutHandler(f.checkout, time.Second),
		Transaction: NewTransactionHandler(f.history, f.history, time.Second),
		Users:       f.sessions,
	}, 5*time.Second)
	return f
}
