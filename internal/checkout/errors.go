package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart           = errors.New("cart is empty, nothing to checkout")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientPayment = errors.New("amount paid is less than total")
	ErrCheckoutInProgress  = errors.New("checkout already in progress")
	ErrIllegalTransition   = errors.New("illegal transition of checkout state")
)

// StockShortfallError names the first line that cannot be covered by live
// stock.
type StockShortfallError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *StockShortfallError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.Name, e.Requested, e.Available)
}

func (e *StockShortfallError) Unwrap() error {
	return ErrInsufficientStock
}

type CommitStep string

const (
	StepStockUpdate CommitStep = "stock update"
	StepTransaction CommitStep = "transaction insert"
	StepLineItems   CommitStep = "line item insert"
)

// CommitError reports the remote write that failed. Writes before it are not
// undone.
type CommitError struct {
	Step          CommitStep
	ProductID     string
	TransactionID string
	Err           error
}

func (e *CommitError) Error() string {
	switch {
	case e.ProductID != "":
		return fmt.Sprintf("checkout failed at %s for product %s: %v", e.Step, e.ProductID, e.Err)
	case e.TransactionID != "":
		return fmt.Sprintf("checkout failed at %s for transaction %s: %v", e.Step, e.TransactionID, e.Err)
	default:
		return fmt.Sprintf("checkout failed at %s: %v", e.Step, e.Err)
	}
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
