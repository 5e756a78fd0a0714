package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/creamsy-pos/internal/cache"
	"github.com/fjod/creamsy-pos/internal/domain"
	"github.com/fjod/creamsy-pos/internal/gateway"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	mu        sync.Mutex
	products  []domain.Product
	listErr   error
	writeErr  error
	lists     atomic.Int32
	listDelay time.Duration
	gate      chan struct{} // when set, the next list call waits on it
	gated     chan struct{}
	created   []domain.Product
	updated   []domain.Product
	deleted   []string
	uploaded  []string
}

func (g *mockGateway) ListProducts(context.Context) ([]domain.Product, error) {
	g.lists.Add(1)
	if g.listDelay > 0 {
		time.Sleep(g.listDelay)
	}
	g.mu.Lock()
	if g.listErr != nil {
		g.mu.Unlock()
		return nil, g.listErr
	}
	out := append([]domain.Product(nil), g.products...)
	gate, gated := g.gate, g.gated
	g.gate = nil
	g.mu.Unlock()

	if gate != nil {
		close(gated)
		<-gate
	}
	return out, nil
}

func (g *mockGateway) CreateProduct(_ context.Context, p domain.Product) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.writeErr != nil {
		return g.writeErr
	}
	g.created = append(g.created, p)
	return nil
}

func (g *mockGateway) UpdateProduct(_ context.Context, p domain.Product) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.writeErr != nil {
		return g.writeErr
	}
	g.updated = append(g.updated, p)
	return nil
}

func (g *mockGateway) DeleteProduct(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.writeErr != nil {
		return g.writeErr
	}
	g.deleted = append(g.deleted, id)
	return nil
}

func (g *mockGateway) UploadObject(_ context.Context, _ []byte, fileName, contentType string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.writeErr != nil {
		return "", g.writeErr
	}
	g.uploaded = append(g.uploaded, fileName+"|"+contentType)
	return "https://cdn.test/" + fileName, nil
}

type mockUsers struct{ id string }

func (u mockUsers) CurrentUserID() (string, bool) { return u.id, u.id != "" }

type mockCache struct {
	mu       sync.Mutex
	products map[string][]domain.Product
	err      error
}

func (c *mockCache) Get(_ context.Context, userID string) ([]domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	p, ok := c.products[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return p, nil
}

func (c *mockCache) Set(_ context.Context, userID string, products []domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.products == nil {
		c.products = make(map[string][]domain.Product)
	}
	c.products[userID] = products
	return nil
}

func (c *mockCache) Delete(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, userID)
	return nil
}

func products() []domain.Product {
	return []domain.Product{
		{ID: "2", Name: "Cup", Price: decimal.NewFromInt(7500), Stock: 5},
		{ID: "1", Name: "Cone", Price: decimal.NewFromInt(5000), Stock: 3},
	}
}

var networkErr = &gateway.Error{Op: "load products", Kind: gateway.ErrNetwork, Message: "dial tcp: refused"}

func TestRefresh_ReplacesWholesale(t *testing.T) {
	gw := &mockGateway{products: products()}
	s := NewStore(gw, mockUsers{"user-1"}, nil)

	got, err := s.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)

	gw.products = gw.products[1:]
	_, err = s.Refresh(context.Background())
	require.NoError(t, err)

	assert.Len(t, s.Products(), 1)
	_, ok := s.FindByID("2")
	assert.False(t, ok)
	p, ok := s.FindByID("1")
	require.True(t, ok)
	assert.Equal(t, "Cone", p.Name)
}

func TestRefresh_FailureKeepsPreviousList(t *testing.T) {
	gw := &mockGateway{products: products()}
	s := NewStore(gw, mockUsers{"user-1"}, nil)
	_, err := s.Refresh(context.Background())
	require.NoError(t, err)

	gw.listErr = networkErr
	_, err = s.Refresh(context.Background())
	assert.ErrorIs(t, err, gateway.ErrNetwork)
	assert.Len(t, s.Products(), 2)
}

func TestRefresh_ConcurrentCallsShareOneRequest(t *testing.T) {
	gw := &mockGateway{products: products(), listDelay: 100 * time.Millisecond}
	s := NewStore(gw, mockUsers{"user-1"}, nil)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Refresh(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), gw.lists.Load())
}

func TestRefresh_WritesSnapshot(t *testing.T) {
	c := &mockCache{}
	s := NewStore(&mockGateway{products: products()}, mockUsers{"user-1"}, c)

	_, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.products["user-1"], 2)
}

func TestRefresh_SnapshotFailureIsIgnored(t *testing.T) {
	c := &mockCache{err: errors.New("redis down")}
	s := NewStore(&mockGateway{products: products()}, mockUsers{"user-1"}, c)

	_, err := s.Refresh(context.Background())
	assert.NoError(t, err)
}

func TestWarmStart_FallsBackToSnapshot(t *testing.T) {
	c := &mockCache{products: map[string][]domain.Product{"user-1": products()[:1]}}
	s := NewStore(&mockGateway{listErr: networkErr}, mockUsers{"user-1"}, c)

	got, fromCache, err := s.WarmStart(context.Background())
	require.NoError(t, err)
	assert.True(t, fromCache)
	require.Len(t, got, 1)
	_, ok := s.FindByID("2")
	assert.True(t, ok)
}

func TestWarmStart_OnlyForNetworkErrors(t *testing.T) {
	c := &mockCache{products: map[string][]domain.Product{"user-1": products()}}
	serverErr := &gateway.Error{Op: "load products", Kind: gateway.ErrServerError, Status: 500}
	s := NewStore(&mockGateway{listErr: serverErr}, mockUsers{"user-1"}, c)

	_, fromCache, err := s.WarmStart(context.Background())
	assert.ErrorIs(t, err, gateway.ErrServerError)
	assert.False(t, fromCache)
	assert.Empty(t, s.Products())
}

func TestWarmStart_MissReturnsRefreshError(t *testing.T) {
	s := NewStore(&mockGateway{listErr: networkErr}, mockUsers{"user-1"}, &mockCache{})

	_, _, err := s.WarmStart(context.Background())
	assert.ErrorIs(t, err, gateway.ErrNetwork)
}

func TestWarmStart_Online(t *testing.T) {
	s := NewStore(&mockGateway{products: products()}, mockUsers{"user-1"}, &mockCache{})

	got, fromCache, err := s.WarmStart(context.Background())
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Len(t, got, 2)
}

func TestApplyStockDelta(t *testing.T) {
	s := NewStore(&mockGateway{products: products()}, mockUsers{"user-1"}, nil)
	_, err := s.Refresh(context.Background())
	require.NoError(t, err)

	assert.True(t, s.ApplyStockDelta("1", -2))
	p, _ := s.FindByID("1")
	assert.Equal(t, 1, p.Stock)

	// clamps at zero
	assert.True(t, s.ApplyStockDelta("1", -5))
	p, _ = s.FindByID("1")
	assert.Equal(t, 0, p.Stock)

	assert.False(t, s.ApplyStockDelta("missing", -1))
}

func TestProducts_ReturnsCopy(t *testing.T) {
	s := NewStore(&mockGateway{products: products()}, mockUsers{"user-1"}, nil)
	_, err := s.Refresh(context.Background())
	require.NoError(t, err)

	list := s.Products()
	list[0].Stock = 99

	p, _ := s.FindByID(list[0].ID)
	assert.Equal(t, 5, p.Stock)
}

func TestReload_DoesNotJoinOlderRequest(t *testing.T) {
	gw := &mockGateway{products: products()}
	s := NewStore(gw, mockUsers{"user-1"}, nil)
	_, err := s.Refresh(context.Background())
	require.NoError(t, err)

	release := make(chan struct{})
	entered := make(chan struct{})
	gw.mu.Lock()
	gw.gate, gw.gated = release, entered
	gw.mu.Unlock()

	earlier := make(chan []domain.Product, 1)
	go func() {
		got, err := s.Refresh(context.Background())
		assert.NoError(t, err)
		earlier <- got
	}()
	<-entered

	// two cones sold while that list request is still out
	gw.mu.Lock()
	gw.products[1].Stock = 1
	gw.mu.Unlock()
	require.True(t, s.ApplyStockDelta("1", -2))

	got, err := s.Reload(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[1].Stock)

	close(release)
	late := <-earlier
	require.Len(t, late, 2)
	assert.Equal(t, 1, late[1].Stock)

	p, ok := s.FindByID("1")
	require.True(t, ok)
	assert.Equal(t, 1, p.Stock)
	assert.Equal(t, int32(3), gw.lists.Load())
}

func TestReset(t *testing.T) {
	s := NewStore(&mockGateway{products: products()}, mockUsers{"user-1"}, nil)
	_, err := s.Refresh(context.Background())
	require.NoError(t, err)

	s.Reset(context.Background())
	assert.Empty(t, s.Products())
	_, ok := s.FindByID("1")
	assert.False(t, ok)
}

func TestReset_DropsSnapshot(t *testing.T) {
	c := &mockCache{}
	s := NewStore(&mockGateway{products: products()}, mockUsers{"user-1"}, c)
	_, err := s.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, c.products["user-1"], 2)

	s.Reset(context.Background())

	_, err = c.Get(context.Background(), "user-1")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestReset_DiscardsRequestInFlight(t *testing.T) {
	gw := &mockGateway{products: products()}
	s := NewStore(gw, mockUsers{"user-1"}, nil)

	release := make(chan struct{})
	entered := make(chan struct{})
	gw.gate, gw.gated = release, entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.Refresh(context.Background())
		assert.NoError(t, err)
	}()
	<-entered

	s.Reset(context.Background())
	close(release)
	<-done

	assert.Empty(t, s.Products())
}

func TestCreate(t *testing.T) {
	gw := &mockGateway{}
	s := NewStore(gw, mockUsers{"user-1"}, nil)

	err := s.Create(context.Background(), domain.Product{Name: "", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidProduct)
	assert.Empty(t, gw.created)

	err = s.Create(context.Background(), domain.Product{Name: "Sundae", Price: decimal.NewFromInt(12000), Stock: 2})
	require.NoError(t, err)
	require.Len(t, gw.created, 1)
	assert.Equal(t, int32(1), gw.lists.Load())
}

func TestCreate_GatewayError(t *testing.T) {
	gw := &mockGateway{writeErr: &gateway.Error{Op: "add product", Kind: gateway.ErrBadRequest, Status: 409}}
	s := NewStore(gw, mockUsers{"user-1"}, nil)

	err := s.Create(context.Background(), domain.Product{Name: "Sundae", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, gateway.ErrBadRequest)
	assert.Equal(t, int32(0), gw.lists.Load())
}

func TestUpdate_RequiresID(t *testing.T) {
	gw := &mockGateway{}
	s := NewStore(gw, mockUsers{"user-1"}, nil)

	err := s.Update(context.Background(), domain.Product{Name: "Cone", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidProduct)

	err = s.Update(context.Background(), domain.Product{ID: "1", Name: "Cone", Price: decimal.NewFromInt(1), Stock: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidProduct)
	assert.Empty(t, gw.updated)

	require.NoError(t, s.Update(context.Background(), domain.Product{ID: "1", Name: "Cone", Price: decimal.NewFromInt(1)}))
	assert.Len(t, gw.updated, 1)
}

func TestDelete_RefreshFailureIsSoft(t *testing.T) {
	gw := &mockGateway{listErr: networkErr}
	s := NewStore(gw, mockUsers{"user-1"}, nil)

	require.NoError(t, s.Delete(context.Background(), "1"))
	assert.Equal(t, []string{"1"}, gw.deleted)
}

func TestUploadImage(t *testing.T) {
	gw := &mockGateway{}
	s := NewStore(gw, mockUsers{"user-1"}, nil)

	url, err := s.UploadImage(context.Background(), []byte{1, 2, 3}, "", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://cdn.test/"))
	assert.True(t, strings.HasSuffix(url, ".jpg"))
	require.Len(t, gw.uploaded, 1)
	assert.True(t, strings.HasSuffix(gw.uploaded[0], ".jpg|image/jpeg"))

	url, err = s.UploadImage(context.Background(), []byte{1}, "cone.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/cone.png", url)

	_, err = s.UploadImage(context.Background(), nil, "x.jpg", "")
	assert.ErrorIs(t, err, domain.ErrInvalidProduct)
}
