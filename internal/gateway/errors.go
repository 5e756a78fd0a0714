package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error kinds. Every *Error unwraps to exactly one of these.
var (
	ErrNetwork            = errors.New("network error")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenRejected      = errors.New("token rejected")
	ErrBadRequest         = errors.New("bad request")
	ErrServerError        = errors.New("server error")
)

// Error describes a failed backend call. Message carries the detail the
// server sent back when there was one.
type Error struct {
	Op      string
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func networkError(op string, err error) *Error {
	return &Error{Op: op, Kind: ErrNetwork, Message: err.Error(), Err: err}
}

func statusError(op string, status int, body []byte) *Error {
	kind := ErrServerError
	switch {
	case status == http.StatusUnauthorized:
		kind = ErrTokenRejected
	case status >= 400 && status < 500:
		kind = ErrBadRequest
	}
	return &Error{Op: op, Kind: kind, Status: status, Message: serverMessage(body)}
}

// withKind returns a copy of err re-classified as kind, keeping status and
// message. Non-gateway errors pass through.
func withKind(err error, kind error, from ...error) error {
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		return err
	}
	for _, f := range from {
		if errors.Is(gwErr.Kind, f) {
			cp := *gwErr
			cp.Kind = kind
			return &cp
		}
	}
	return err
}

// serverMessage extracts the human readable part of a PostgREST or auth
// error body, falling back to the raw text.
func serverMessage(body []byte) string {
	var payload struct {
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
		Details          string `json:"details"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, s := range []string{payload.Message, payload.Msg, payload.ErrorDescription, payload.Error} {
			if s != "" {
				if payload.Details != "" {
					return s + " (" + payload.Details + ")"
				}
				return s
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "unknown error"
	}
	return msg
}
