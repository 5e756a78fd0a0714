package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/creamsy-pos/internal/domain"
	log "github.com/sirupsen/logrus"
)

// Reloader keeps a recent copy of the history in the background. A failed
// reload keeps the previous list.
type Reloader struct {
	svc      *Service
	interval time.Duration
	skip     func(error) bool

	mu       sync.RWMutex
	txs      []domain.Transaction
	loadedAt time.Time
}

// NewReloader reloads every interval. Errors for which skip returns true are
// not logged; pass nil to log all of them.
func NewReloader(svc *Service, interval time.Duration, skip func(error) bool) *Reloader {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reloader{svc: svc, interval: interval, skip: skip}
}

func (r *Reloader) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Reload(ctx)
	for {
		select {
		case <-ticker.C:
			r.Reload(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Reload fetches the history once.
func (r *Reloader) Reload(ctx context.Context) error {
	txs, err := r.svc.List(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		if r.skip == nil || !r.skip(err) {
			log.WithError(err).Warn("history reload failed, keeping previous list")
		}
		return err
	}

	r.mu.Lock()
	r.txs = txs
	r.loadedAt = time.Now()
	r.mu.Unlock()
	return nil
}

// Latest returns the last successfully loaded list and when it was loaded.
// The time is zero if nothing has loaded yet.
func (r *Reloader) Latest() ([]domain.Transaction, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Transaction(nil), r.txs...), r.loadedAt
}

// Forget drops the cached list, e.g. on sign-out or after a delete.
func (r *Reloader) Forget() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = nil
	r.loadedAt = time.Time{}
}
