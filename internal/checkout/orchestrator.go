package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/creamsy-pos/internal/cart"
	"github.com/fjod/creamsy-pos/internal/domain"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultParallelism = 4
	publishTimeout     = 5 * time.Second
)

type Gateway interface {
	UpdateProductStock(ctx context.Context, productID string, stock int) error
	InsertTransaction(ctx context.Context, tx *domain.Transaction) (string, error)
	InsertLineItems(ctx context.Context, transactionID string, lines []domain.LineItem) error
}

type Catalog interface {
	FindByID(id string) (domain.Product, bool)
	ApplyStockDelta(id string, delta int) bool
	Reload(ctx context.Context) ([]domain.Product, error)
}

type Cart interface {
	Snapshot() cart.Snapshot
	RemoveEntries(snap cart.Snapshot)
}

type Publisher interface {
	PublishSale(ctx context.Context, tx *domain.Transaction) error
}

// Orchestrator turns the active cart into a stored transaction.
type Orchestrator struct {
	gw          Gateway
	catalog     Catalog
	cart        Cart
	publisher   Publisher
	parallelism int
	now         func() time.Time

	running sync.Mutex

	lastMu sync.Mutex
	last   *Attempt
}

// NewOrchestrator wires the checkout. publisher may be nil.
func NewOrchestrator(gw Gateway, catalog Catalog, c Cart, publisher Publisher) *Orchestrator {
	return &Orchestrator{
		gw:          gw,
		catalog:     catalog,
		cart:        c,
		publisher:   publisher,
		parallelism: defaultParallelism,
		now:         time.Now,
	}
}

type pendingLine struct {
	item     domain.LineItem
	newStock int
}

// Checkout validates the cart against live stock, writes the stock updates,
// the transaction and its line items, then removes the sold units from the
// cart. Only one checkout runs at a time. Once the remote writes start they
// are not cancelled by ctx.
func (o *Orchestrator) Checkout(ctx context.Context, amountPaid decimal.Decimal) (*domain.Transaction, error) {
	if !o.running.TryLock() {
		return nil, ErrCheckoutInProgress
	}
	defer o.running.Unlock()

	a := &Attempt{State: StateIdle, StartedAt: o.now()}
	defer o.record(a)

	tx, err := o.run(ctx, a, amountPaid)
	if err != nil {
		a.Err = err
		if !a.State.IsTerminal() {
			a.State = StateFailed
		}
		log.WithError(err).WithField("state", a.State).Warn("checkout failed")
		return nil, err
	}
	a.Transaction = tx
	return tx, nil
}

func (o *Orchestrator) run(ctx context.Context, a *Attempt, amountPaid decimal.Decimal) (*domain.Transaction, error) {
	if err := a.advance(StateValidating); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := o.cart.Snapshot()
	tx, pending, err := o.validate(snap, amountPaid)
	if err != nil {
		return nil, err
	}

	if err := a.advance(StateCommitting); err != nil {
		return nil, err
	}
	// cancelling ctx no longer stops the remote writes
	commitCtx := context.WithoutCancel(ctx)
	if err := o.commit(commitCtx, tx, pending); err != nil {
		return nil, err
	}

	if err := a.advance(StateSettled); err != nil {
		return nil, err
	}
	o.settle(commitCtx, tx, snap)
	return tx, nil
}

func (o *Orchestrator) validate(snap cart.Snapshot, amountPaid decimal.Decimal) (*domain.Transaction, []pendingLine, error) {
	if snap.Len() == 0 {
		return nil, nil, ErrEmptyCart
	}

	lines := snap.Lines()
	pending := make([]pendingLine, 0, len(lines))
	items := make([]domain.LineItem, 0, len(lines))
	for _, l := range lines {
		live, ok := o.catalog.FindByID(l.ProductID)
		if !ok {
			return nil, nil, &StockShortfallError{ProductID: l.ProductID, Name: l.Name, Requested: l.Quantity}
		}
		if live.Stock < l.Quantity {
			return nil, nil, &StockShortfallError{
				ProductID: live.ID,
				Name:      live.Name,
				Requested: l.Quantity,
				Available: live.Stock,
			}
		}

		item := domain.LineItem{ProductID: live.ID, UnitPrice: live.Price, Quantity: l.Quantity}
		items = append(items, item)
		pending = append(pending, pendingLine{item: item, newStock: live.Stock - l.Quantity})
	}

	tx, err := domain.NewTransaction(items, amountPaid, o.now())
	if err != nil {
		return nil, nil, err
	}
	if amountPaid.LessThan(tx.Total) {
		return nil, nil, fmt.Errorf("%w: paid %s, total %s", ErrInsufficientPayment,
			domain.FormatMoney(amountPaid), domain.FormatMoney(tx.Total))
	}
	return tx, pending, nil
}

// commit performs the remote writes in order: stock updates, transaction,
// line items. Stock updates for different products run concurrently and all
// of them are allowed to finish even when one fails.
func (o *Orchestrator) commit(ctx context.Context, tx *domain.Transaction, pending []pendingLine) error {
	var g errgroup.Group
	g.SetLimit(o.parallelism)
	for _, p := range pending {
		g.Go(func() error {
			if err := o.gw.UpdateProductStock(ctx, p.item.ProductID, p.newStock); err != nil {
				return &CommitError{Step: StepStockUpdate, ProductID: p.item.ProductID, Err: err}
			}
			o.catalog.ApplyStockDelta(p.item.ProductID, -p.item.Quantity)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	id, err := o.gw.InsertTransaction(ctx, tx)
	if err != nil {
		return &CommitError{Step: StepTransaction, Err: err}
	}
	tx.ID = id

	if err := o.gw.InsertLineItems(ctx, id, tx.Lines); err != nil {
		return &CommitError{Step: StepLineItems, TransactionID: id, Err: err}
	}
	return nil
}

func (o *Orchestrator) settle(ctx context.Context, tx *domain.Transaction, sold cart.Snapshot) {
	o.cart.RemoveEntries(sold)

	if _, err := o.catalog.Reload(ctx); err != nil {
		log.WithError(err).Warn("catalog refresh after checkout failed")
	}

	log.WithFields(log.Fields{
		"transaction_id": tx.ID,
		"total":          tx.Total.String(),
		"lines":          len(tx.Lines),
	}).Info("checkout settled")

	if o.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := o.publisher.PublishSale(pubCtx, tx); err != nil {
		log.WithError(err).WithField("transaction_id", tx.ID).Warn("sale event not published")
	}
}

// LastAttempt returns the most recent checkout attempt.
func (o *Orchestrator) LastAttempt() (Attempt, bool) {
	o.lastMu.Lock()
	defer o.lastMu.Unlock()

	if o.last == nil {
		return Attempt{}, false
	}
	return *o.last, true
}

func (o *Orchestrator) record(a *Attempt) {
	o.lastMu.Lock()
	defer o.lastMu.Unlock()
	o.last = a
}
