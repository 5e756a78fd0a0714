package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrTotalMismatch = errors.New("transaction total does not match line items")

type LineItem struct {
	ProductID string          `json:"product_id"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Transaction is a completed sale. Prices are captured at sale time, so later
// catalog edits never change a stored total.
type Transaction struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id,omitempty"`
	Lines      []LineItem      `json:"lines,omitempty"`
	Total      decimal.Decimal `json:"total"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Change     decimal.Decimal `json:"change"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewTransaction builds an unsaved transaction from aggregated lines. The total
// is summed at full precision; rounding is left to display.
func NewTransaction(lines []LineItem, amountPaid decimal.Decimal, ts time.Time) (*Transaction, error) {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	tx := &Transaction{
		Lines:      append([]LineItem(nil), lines...),
		Total:      total,
		AmountPaid: amountPaid,
		Change:     amountPaid.Sub(total),
		Timestamp:  ts,
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// Validate checks that Total equals the sum of line subtotals.
func (t *Transaction) Validate() error {
	sum := decimal.Zero
	for _, l := range t.Lines {
		if l.Quantity <= 0 {
			return fmt.Errorf("line for product %s has non-positive quantity %d", l.ProductID, l.Quantity)
		}
		sum = sum.Add(l.Subtotal())
	}
	if !sum.Equal(t.Total) {
		return fmt.Errorf("%w: total %s, lines %s", ErrTotalMismatch, t.Total, sum)
	}
	return nil
}

// LineItemDetail is a stored line item joined with its product name.
type LineItemDetail struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// FormatMoney renders an amount in whole currency units, e.g. "Rp 5000".
func FormatMoney(d decimal.Decimal) string {
	return "Rp " + d.StringFixed(0)
}
