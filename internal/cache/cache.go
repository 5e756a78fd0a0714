package cache

import (
	"context"
	"errors"

	"github.com/fjod/creamsy-pos/internal/domain"
)

// CatalogCache keeps the last good product list per user so a cold start
// without network still has something to sell from.
type CatalogCache interface {
	Get(ctx context.Context, userID string) ([]domain.Product, error)
	Set(ctx context.Context, userID string, products []domain.Product) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")
