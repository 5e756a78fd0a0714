package cart

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/creamsy-pos/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrOutOfStock     = errors.New("out of stock")
	ErrNotInCart      = errors.New("product not in cart")
	ErrUnknownProduct = errors.New("unknown product")
)

// Lookup resolves the live catalog entry for a product.
type Lookup interface {
	FindByID(id string) (domain.Product, bool)
}

// Line is the aggregated view of all entries for one product.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Snapshot is an immutable copy of the cart.
type Snapshot struct {
	Entries []domain.CartEntry `json:"entries"`
	Total   decimal.Decimal    `json:"total"`
}

func (s Snapshot) Len() int { return len(s.Entries) }

// Lines aggregates entries per product in order of first appearance.
func (s Snapshot) Lines() []Line {
	index := make(map[string]int)
	var lines []Line
	for _, e := range s.Entries {
		if i, ok := index[e.ProductID]; ok {
			lines[i].Quantity++
			continue
		}
		index[e.ProductID] = len(lines)
		lines = append(lines, Line{ProductID: e.ProductID, Name: e.Name, UnitPrice: e.UnitPrice, Quantity: 1})
	}
	return lines
}

// Engine holds the active cart. Each entry is one unit; quantities are
// derived by counting.
type Engine struct {
	catalog Lookup

	mu      sync.Mutex
	entries []domain.CartEntry
	total   decimal.Decimal

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

func NewEngine(catalog Lookup) *Engine {
	return &Engine{
		catalog: catalog,
		subs:    make(map[int]func(Snapshot)),
	}
}

// AddUnit adds one unit of product if the live stock allows another one.
// The stock and price are read from the catalog at call time, not from the
// value passed in.
func (e *Engine) AddUnit(product domain.Product) error {
	e.mu.Lock()
	live, ok := e.catalog.FindByID(product.ID)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownProduct, product.ID)
	}
	inCart := e.countLocked(live.ID)
	if inCart >= live.Stock {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s has %d in stock, %d already in cart", ErrOutOfStock, live.Name, live.Stock, inCart)
	}

	e.entries = append(e.entries, domain.CartEntry{ProductID: live.ID, Name: live.Name, UnitPrice: live.Price})
	e.total = e.total.Add(live.Price)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.notify(snap)
	return nil
}

// RemoveUnit drops one unit of the product. The total never goes below zero.
func (e *Engine) RemoveUnit(productID string) error {
	e.mu.Lock()
	idx := -1
	for i := len(e.entries) - 1; i >= 0; i-- {
		if e.entries[i].ProductID == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotInCart, productID)
	}

	removed := e.entries[idx]
	e.entries = append(e.entries[:idx], e.entries[idx+1:]...)
	e.total = e.total.Sub(removed.UnitPrice)
	if e.total.IsNegative() {
		e.total = decimal.Zero
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.notify(snap)
	return nil
}

// AggregatedLines maps product id to quantity in the cart.
func (e *Engine) AggregatedLines() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()

	lines := make(map[string]int)
	for _, entry := range e.entries {
		lines[entry.ProductID]++
	}
	return lines
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

func (e *Engine) Total() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}

func (e *Engine) Clear() {
	e.mu.Lock()
	e.entries = nil
	e.total = decimal.Zero
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.notify(snap)
}

// RemoveEntries drops one unit per entry of snap, matching by product and
// oldest first. Units added after snap was taken stay in the cart; entries
// already gone are skipped.
func (e *Engine) RemoveEntries(snap Snapshot) {
	e.mu.Lock()
	drop := make(map[string]int, len(snap.Entries))
	for _, entry := range snap.Entries {
		drop[entry.ProductID]++
	}
	kept := e.entries[:0:0]
	total := decimal.Zero
	for _, entry := range e.entries {
		if drop[entry.ProductID] > 0 {
			drop[entry.ProductID]--
			continue
		}
		kept = append(kept, entry)
		total = total.Add(entry.UnitPrice)
	}
	e.entries = kept
	e.total = total
	snap = e.snapshotLocked()
	e.mu.Unlock()

	e.notify(snap)
}

// Subscribe registers fn to receive a snapshot after every change. fn runs
// on the goroutine that made the change.
func (e *Engine) Subscribe(fn func(Snapshot)) (cancel func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn

	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) notify(snap Snapshot) {
	e.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (e *Engine) countLocked(productID string) int {
	n := 0
	for _, entry := range e.entries {
		if entry.ProductID == productID {
			n++
		}
	}
	return n
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		Entries: append([]domain.CartEntry{}, e.entries...),
		Total:   e.total,
	}
}
