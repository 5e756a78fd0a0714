package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/creamsy-pos/internal/domain"
	"github.com/shopspring/decimal"
)

type Gateway interface {
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	ListLineItems(ctx context.Context, transactionID string) ([]domain.LineItemDetail, error)
	DeleteLineItems(ctx context.Context, transactionIDs []string) error
	DeleteTransactions(ctx context.Context, ids []string) error
}

// Service reads and prunes the signed-in user's transaction history.
type Service struct {
	gw Gateway
}

func NewService(gw Gateway) *Service {
	return &Service{gw: gw}
}

// List returns transactions newest first.
func (s *Service) List(ctx context.Context) ([]domain.Transaction, error) {
	txs, err := s.gw.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (s *Service) Items(ctx context.Context, transactionID string) ([]domain.LineItemDetail, error) {
	items, err := s.gw.ListLineItems(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list items of %s: %w", transactionID, err)
	}
	return items, nil
}

// DeleteSelected removes the line items of ids and then the transactions
// themselves. The transactions are deleted even if the items could not be,
// and both failures are reported together.
func (s *Service) DeleteSelected(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	var errs []error
	if err := s.gw.DeleteLineItems(ctx, ids); err != nil {
		errs = append(errs, fmt.Errorf("delete line items: %w", err))
	}
	if err := s.gw.DeleteTransactions(ctx, ids); err != nil {
		errs = append(errs, fmt.Errorf("delete transactions: %w", err))
	}
	return errors.Join(errs...)
}

// DeleteAll removes the whole history and reports how many transactions it
// targeted.
func (s *Service) DeleteAll(ctx context.Context) (int, error) {
	txs, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(txs) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		if tx.ID != "" {
			ids = append(ids, tx.ID)
		}
	}
	return len(ids), s.DeleteSelected(ctx, ids)
}

const reportTimeLayout = "02/01/2006 15:04"

// Report renders txs as a plain-text summary suitable for sharing.
func Report(txs []domain.Transaction) string {
	var b strings.Builder
	b.WriteString("Transaction history\n")
	b.WriteString("===================\n")

	grand := decimal.Zero
	for i, tx := range txs {
		when := "-"
		if !tx.Timestamp.IsZero() {
			when = tx.Timestamp.Format(reportTimeLayout)
		}
		grand = grand.Add(tx.Total)
		fmt.Fprintf(&b, "%d. %s | Total: %s | Paid: %s | Change: %s\n",
			i+1, when,
			domain.FormatMoney(tx.Total),
			domain.FormatMoney(tx.AmountPaid),
			domain.FormatMoney(tx.Change),
		)
	}

	b.WriteString("-------------------\n")
	fmt.Fprintf(&b, "Transactions: %d\n", len(txs))
	fmt.Fprintf(&b, "Grand total: %s\n", domain.FormatMoney(grand))
	return b.String()
}
