package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fjod/creamsy-pos/internal/domain"
)

// Credentials identify the caller of an authenticated backend call.
type Credentials struct {
	AccessToken string
	UserID      string
}

// TokenSource hands out credentials for the current session. It must fail
// without doing I/O when nobody is signed in.
type TokenSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// Gateway is the authenticated CRUD surface over products, transactions,
// transaction line items and blob storage.
type Gateway struct {
	client *Client
	tokens TokenSource
}

func NewGateway(client *Client, tokens TokenSource) *Gateway {
	return &Gateway{client: client, tokens: tokens}
}

func (g *Gateway) call(ctx context.Context, op string, build func(Credentials) request) ([]byte, error) {
	creds, err := g.tokens.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req := build(creds)
	req.token = creds.AccessToken
	return g.client.do(ctx, op, req)
}

func (g *Gateway) ListProducts(ctx context.Context) ([]domain.Product, error) {
	const op = "load products"
	data, err := g.call(ctx, op, func(creds Credentials) request {
		return request{
			method: http.MethodGet,
			path:   "/products",
			query: url.Values{
				"user_id": {"eq." + creds.UserID},
				"select":  {"id,name,price,stock,image_url"},
				"order":   {"id.desc"},
			},
		}
	})
	if err != nil {
		return nil, err
	}

	var rows []productRow
	if err := decode(op, data, &rows); err != nil {
		return nil, err
	}
	products := make([]domain.Product, len(rows))
	for i, r := range rows {
		products[i] = r.product()
	}
	return products, nil
}

func (g *Gateway) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := g.call(ctx, "add product", func(creds Credentials) request {
		row := toProductRow(p)
		row.ID = ""
		row.UserID = creds.UserID
		return request{
			method:  http.MethodPost,
			path:    "/products",
			body:    row,
			headers: map[string]string{"Prefer": "return=minimal"},
		}
	})
	return err
}

func (g *Gateway) UpdateProduct(ctx context.Context, p domain.Product) error {
	_, err := g.call(ctx, "update product", func(Credentials) request {
		row := toProductRow(p)
		row.ID = ""
		return request{
			method:  http.MethodPatch,
			path:    "/products",
			query:   url.Values{"id": {"eq." + p.ID}},
			body:    row,
			headers: map[string]string{"Prefer": "return=minimal"},
		}
	})
	return err
}

func (g *Gateway) UpdateProductStock(ctx context.Context, productID string, stock int) error {
	_, err := g.call(ctx, "update stock", func(Credentials) request {
		return request{
			method:  http.MethodPatch,
			path:    "/products",
			query:   url.Values{"id": {"eq." + productID}},
			body:    map[string]int{"stock": stock},
			headers: map[string]string{"Prefer": "return=minimal"},
		}
	})
	return err
}

func (g *Gateway) DeleteProduct(ctx context.Context, productID string) error {
	_, err := g.call(ctx, "delete product", func(Credentials) request {
		return request{
			method: http.MethodDelete,
			path:   "/products",
			query:  url.Values{"id": {"eq." + productID}},
		}
	})
	return err
}

// InsertTransaction stores the transaction header and returns the id the
// backend generated for it.
func (g *Gateway) InsertTransaction(ctx context.Context, tx *domain.Transaction) (string, error) {
	const op = "create transaction"
	data, err := g.call(ctx, op, func(creds Credentials) request {
		return request{
			method: http.MethodPost,
			path:   "/transactions",
			body: transactionRow{
				Total:      tx.Total,
				AmountPaid: tx.AmountPaid,
				Change:     tx.Change,
				Timestamp:  flexTime(tx.Timestamp),
				UserID:     creds.UserID,
			},
			headers: map[string]string{
				"Prefer": "return=representation",
				"Accept": "application/vnd.pgrst.object+json",
			},
		}
	})
	if err != nil {
		return "", err
	}

	var row transactionRow
	if err := decode(op, data, &row); err != nil {
		return "", err
	}
	if row.ID == "" {
		return "", &Error{Op: op, Kind: ErrServerError, Message: "backend returned no transaction id"}
	}
	return string(row.ID), nil
}

// InsertLineItems bulk inserts one row per line.
func (g *Gateway) InsertLineItems(ctx context.Context, transactionID string, lines []domain.LineItem) error {
	rows := make([]lineItemRow, len(lines))
	for i, l := range lines {
		rows[i] = lineItemRow{
			TransactionID: transactionID,
			ProductID:     l.ProductID,
			Quantity:      l.Quantity,
			Price:         l.UnitPrice,
		}
	}
	_, err := g.call(ctx, "save transaction items", func(Credentials) request {
		return request{
			method:  http.MethodPost,
			path:    "/transaction_items",
			body:    rows,
			headers: map[string]string{"Prefer": "return=minimal"},
		}
	})
	return err
}

func (g *Gateway) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	const op = "load transactions"
	data, err := g.call(ctx, op, func(creds Credentials) request {
		return request{
			method: http.MethodGet,
			path:   "/transactions",
			query: url.Values{
				"user_id": {"eq." + creds.UserID},
				"select":  {"id,total,amount_paid,change,timestamp"},
				"order":   {"timestamp.desc"},
			},
		}
	})
	if err != nil {
		return nil, err
	}

	var rows []transactionRow
	if err := decode(op, data, &rows); err != nil {
		return nil, err
	}
	txs := make([]domain.Transaction, len(rows))
	for i, r := range rows {
		txs[i] = r.transaction()
	}
	return txs, nil
}

func (g *Gateway) ListLineItems(ctx context.Context, transactionID string) ([]domain.LineItemDetail, error) {
	const op = "load transaction items"
	data, err := g.call(ctx, op, func(Credentials) request {
		return request{
			method: http.MethodGet,
			path:   "/transaction_items",
			query: url.Values{
				"transaction_id": {"eq." + transactionID},
				"select":         {"id,quantity,price,product:products(id,name,price)"},
				"order":          {"id.asc"},
			},
		}
	})
	if err != nil {
		return nil, err
	}

	var rows []lineItemDetailRow
	if err := decode(op, data, &rows); err != nil {
		return nil, err
	}
	items := make([]domain.LineItemDetail, len(rows))
	for i, r := range rows {
		items[i] = r.detail()
	}
	return items, nil
}

func (g *Gateway) DeleteLineItems(ctx context.Context, transactionIDs []string) error {
	_, err := g.call(ctx, "delete transaction items", func(Credentials) request {
		return request{
			method: http.MethodDelete,
			path:   "/transaction_items",
			query:  url.Values{"transaction_id": {inFilter(transactionIDs)}},
		}
	})
	return err
}

func (g *Gateway) DeleteTransactions(ctx context.Context, ids []string) error {
	_, err := g.call(ctx, "delete transactions", func(Credentials) request {
		return request{
			method: http.MethodDelete,
			path:   "/transactions",
			query:  url.Values{"id": {inFilter(ids)}},
		}
	})
	return err
}

// UploadObject stores data under the caller's folder in the image bucket and
// returns its public URL.
func (g *Gateway) UploadObject(ctx context.Context, data []byte, fileName, contentType string) (string, error) {
	var objectPath string
	_, err := g.call(ctx, "upload image", func(creds Credentials) request {
		objectPath = creds.UserID + "/" + fileName
		return request{
			method:      http.MethodPost,
			path:        "/storage/object/" + g.client.bucket + "/" + objectPath,
			raw:         data,
			contentType: contentType,
		}
	})
	if err != nil {
		return "", err
	}
	return g.client.baseURL + "/storage/object/public/" + g.client.bucket + "/" + objectPath, nil
}

func inFilter(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		if strings.ContainsAny(id, ",()\"") {
			id = strconv.Quote(id)
		}
		quoted[i] = id
	}
	return "in.(" + strings.Join(quoted, ",") + ")"
}
