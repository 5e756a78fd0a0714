package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/creamsy-pos/internal/domain"
	"github.com/shopspring/decimal"
)

// flexID accepts both string and numeric primary keys.
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", data)
	}
	*id = flexID(n.String())
	return nil
}

// flexTime accepts timestamps with or without a zone offset. null and ""
// decode to the zero time.
type flexTime time.Time

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp is not a string: %w", err)
	}
	if s == "" {
		*t = flexTime(time.Time{})
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = flexTime(parsed)
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

func (t flexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339Nano))
}

type productRow struct {
	ID       flexID          `json:"id,omitempty"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	ImageURL *string         `json:"image_url,omitempty"`
	UserID   string          `json:"user_id,omitempty"`
}

func toProductRow(p domain.Product) productRow {
	row := productRow{
		ID:    flexID(p.ID),
		Name:  p.Name,
		Price: p.Price,
		Stock: p.Stock,
	}
	if p.ImageURL != "" {
		img := p.ImageURL
		row.ImageURL = &img
	}
	return row
}

func (r productRow) product() domain.Product {
	p := domain.Product{
		ID:    string(r.ID),
		Name:  r.Name,
		Price: r.Price,
		Stock: r.Stock,
	}
	if r.ImageURL != nil {
		p.ImageURL = *r.ImageURL
	}
	return p
}

type transactionRow struct {
	ID         flexID          `json:"id,omitempty"`
	Total      decimal.Decimal `json:"total"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Change     decimal.Decimal `json:"change"`
	Timestamp  flexTime        `json:"timestamp"`
	UserID     string          `json:"user_id,omitempty"`
}

func (r transactionRow) transaction() domain.Transaction {
	return domain.Transaction{
		ID:         string(r.ID),
		UserID:     r.UserID,
		Total:      r.Total,
		AmountPaid: r.AmountPaid,
		Change:     r.Change,
		Timestamp:  time.Time(r.Timestamp),
	}
}

type lineItemRow struct {
	TransactionID string          `json:"transaction_id"`
	ProductID     string          `json:"product_id"`
	Quantity      int             `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
}

type lineItemDetailRow struct {
	ID       flexID          `json:"id"`
	Quantity *int            `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Product  *struct {
		ID   flexID `json:"id"`
		Name string `json:"name"`
	} `json:"product"`
}

func (r lineItemDetailRow) detail() domain.LineItemDetail {
	d := domain.LineItemDetail{
		ProductName: "(unknown)",
		Quantity:    1,
		UnitPrice:   r.Price,
	}
	if r.Quantity != nil {
		d.Quantity = *r.Quantity
	}
	if r.Product != nil {
		d.ProductID = string(r.Product.ID)
		if r.Product.Name != "" {
			d.ProductName = r.Product.Name
		}
	}
	return d
}
