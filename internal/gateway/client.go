package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL   string
	APIKey    string
	Bucket    string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
}

// Client is the transport shared by the auth endpoints and the data Gateway.
type Client struct {
	baseURL string
	apiKey  string
	bucket  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	base.ResponseHeaderTimeout = timeout

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		bucket:  cfg.Bucket,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(base),
		},
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    "backend",
			Timeout: timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// only outages count; a 4xx is the caller's problem
			IsSuccessful: func(err error) bool {
				return err == nil || !(errors.Is(err, ErrNetwork) || errors.Is(err, ErrServerError))
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.WithFields(log.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
					Warn("circuit breaker state changed")
			},
		}),
	}
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        any
	raw         []byte
	contentType string
	token       string
	headers     map[string]string
}

// do executes req and returns the response body of a 2xx reply. Every
// failure is an *Error.
func (c *Client) do(ctx context.Context, op string, req request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, networkError(op, err)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, op, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &Error{Op: op, Kind: ErrNetwork, Message: "backend temporarily unavailable", Err: err}
	}
	return body, err
}

func (c *Client) roundTrip(ctx context.Context, op string, req request) ([]byte, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var payload io.Reader
	contentType := req.contentType
	switch {
	case req.raw != nil:
		payload = bytes.NewReader(req.raw)
	case req.body != nil:
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, &Error{Op: op, Kind: ErrBadRequest, Message: fmt.Sprintf("encode body: %v", err), Err: err}
		}
		payload = bytes.NewReader(data)
		if contentType == "" {
			contentType = "application/json"
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, payload)
	if err != nil {
		return nil, &Error{Op: op, Kind: ErrBadRequest, Message: err.Error(), Err: err}
	}
	httpReq.Header.Set("apikey", c.apiKey)
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, networkError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := statusError(op, resp.StatusCode, data)
		log.WithFields(log.Fields{
			"op":     op,
			"status": resp.StatusCode,
		}).WithError(gwErr).Debug("backend call failed")
		return nil, gwErr
	}
	return data, nil
}

func decode(op string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &Error{Op: op, Kind: ErrServerError, Message: fmt.Sprintf("decode response: %v", err), Err: err}
	}
	return nil
}
