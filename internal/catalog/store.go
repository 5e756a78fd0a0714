package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/creamsy-pos/internal/cache"
	"github.com/fjod/creamsy-pos/internal/domain"
	"github.com/fjod/creamsy-pos/internal/gateway"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const defaultImageType = "image/jpeg"

type Gateway interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, p domain.Product) error
	UpdateProduct(ctx context.Context, p domain.Product) error
	DeleteProduct(ctx context.Context, productID string) error
	UploadObject(ctx context.Context, data []byte, fileName, contentType string) (string, error)
}

type UserSource interface {
	CurrentUserID() (string, bool)
}

// Store is the in-memory product list for the signed-in user. A refresh
// replaces it wholesale; between refreshes only ApplyStockDelta changes it.
type Store struct {
	gw        Gateway
	users     UserSource
	snapshots cache.CatalogCache
	sfg       singleflight.Group // collapses concurrent refreshes

	mu       sync.RWMutex
	products []domain.Product
	byID     map[string]int
	fetches  uint64 // fetches started
	applied  uint64 // newest fetch whose result is in products
}

// NewStore creates a catalog. snapshots may be nil.
func NewStore(gw Gateway, users UserSource, snapshots cache.CatalogCache) *Store {
	return &Store{
		gw:        gw,
		users:     users,
		snapshots: snapshots,
		byID:      make(map[string]int),
	}
}

// Refresh reloads the product list from the backend. On failure the previous
// list is left in place. Concurrent callers share one request.
func (s *Store) Refresh(ctx context.Context) ([]domain.Product, error) {
	return s.refresh(ctx)
}

// Reload is Refresh for callers that have just written to the backend. It
// never joins a request that started before the call, and a result from such
// an older request can no longer overwrite the one it fetches.
func (s *Store) Reload(ctx context.Context) ([]domain.Product, error) {
	s.sfg.Forget("refresh")
	return s.refresh(ctx)
}

func (s *Store) refresh(ctx context.Context) ([]domain.Product, error) {
	v, err, _ := s.sfg.Do("refresh", func() (interface{}, error) {
		fetch := s.startFetch()
		products, err := s.gw.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		if !s.apply(fetch, products) {
			log.WithField("fetch", fetch).Debug("discarding outdated product list")
			return s.Products(), nil
		}
		s.saveSnapshot(ctx, products)
		return products, nil
	})
	if err != nil {
		return nil, fmt.Errorf("refresh catalog: %w", err)
	}
	return clone(v.([]domain.Product)), nil
}

// WarmStart refreshes, falling back to the cached snapshot when the backend
// cannot be reached. fromCache reports which source was used.
func (s *Store) WarmStart(ctx context.Context) (products []domain.Product, fromCache bool, err error) {
	products, err = s.Refresh(ctx)
	if err == nil {
		return products, false, nil
	}
	if !errors.Is(err, gateway.ErrNetwork) || s.snapshots == nil {
		return nil, false, err
	}

	userID, ok := s.users.CurrentUserID()
	if !ok {
		return nil, false, err
	}
	cached, cacheErr := s.snapshots.Get(ctx, userID)
	if cacheErr != nil {
		if !errors.Is(cacheErr, cache.ErrCacheMiss) {
			log.WithError(cacheErr).Warn("catalog snapshot unavailable")
		}
		return nil, false, err
	}

	log.WithError(err).WithField("products", len(cached)).Warn("backend unreachable, using cached catalog")
	s.replace(cached)
	return clone(cached), true, nil
}

func (s *Store) Products() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.products)
}

func (s *Store) FindByID(id string) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return domain.Product{}, false
	}
	return s.products[i], true
}

// ApplyStockDelta adjusts the local stock of one product, never below zero.
// It reports whether the product was known.
func (s *Store) ApplyStockDelta(id string, delta int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return false
	}
	s.products[i].Stock = max(s.products[i].Stock+delta, 0)
	return true
}

// Reset drops the list and the signed-in user's snapshot. It must run before
// the session is cleared. Requests still in flight are discarded.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	s.applied = s.fetches
	s.setLocked(nil)
	s.mu.Unlock()

	if s.snapshots == nil {
		return
	}
	userID, ok := s.users.CurrentUserID()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.snapshots.Delete(ctx, userID); err != nil {
		log.WithError(err).Warn("catalog snapshot not removed")
	}
}

func (s *Store) Create(ctx context.Context, p domain.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.gw.CreateProduct(ctx, p); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	s.refreshAfterWrite(ctx)
	return nil
}

func (s *Store) Update(ctx context.Context, p domain.Product) error {
	if p.ID == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidProduct)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.gw.UpdateProduct(ctx, p); err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, err)
	}
	s.refreshAfterWrite(ctx)
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.gw.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	s.refreshAfterWrite(ctx)
	return nil
}

// UploadImage stores a product picture and returns its public URL. An empty
// fileName gets a generated one.
func (s *Store) UploadImage(ctx context.Context, data []byte, fileName, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: image is empty", domain.ErrInvalidProduct)
	}
	if fileName == "" {
		fileName = uuid.NewString() + ".jpg"
	}
	if contentType == "" {
		contentType = defaultImageType
	}
	url, err := s.gw.UploadObject(ctx, data, fileName, contentType)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return url, nil
}

func (s *Store) refreshAfterWrite(ctx context.Context) {
	if _, err := s.Reload(ctx); err != nil {
		log.WithError(err).Warn("catalog reload after write failed")
	}
}

func (s *Store) startFetch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	return s.fetches
}

// apply installs products fetched by fetch unless a newer fetch already won.
func (s *Store) apply(fetch uint64, products []domain.Product) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fetch <= s.applied {
		return false
	}
	s.applied = fetch
	s.setLocked(products)
	return true
}

func (s *Store) replace(products []domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(products)
}

func (s *Store) setLocked(products []domain.Product) {
	s.products = clone(products)
	s.byID = make(map[string]int, len(products))
	for i, p := range s.products {
		s.byID[p.ID] = i
	}
}

func (s *Store) saveSnapshot(ctx context.Context, products []domain.Product) {
	if s.snapshots == nil {
		return
	}
	userID, ok := s.users.CurrentUserID()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.snapshots.Set(ctx, userID, products); err != nil {
		log.WithError(err).Warn("catalog snapshot save failed")
	}
}

func clone(products []domain.Product) []domain.Product {
	out := make([]domain.Product, len(products))
	copy(out, products)
	return out
}
