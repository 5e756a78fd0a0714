package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthGrant is a token pair issued by the auth endpoints.
type AuthGrant struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	ExpiresAt    time.Time
}

type authResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         *struct {
		ID string `json:"id"`
	} `json:"user"`
}

// SignIn exchanges email and password for a token pair. A rejected login is
// reported as ErrInvalidCredentials.
func (c *Client) SignIn(ctx context.Context, email, password string) (AuthGrant, error) {
	const op = "sign in"
	data, err := c.do(ctx, op, request{
		method: http.MethodPost,
		path:   "/auth/signin",
		body:   map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return AuthGrant{}, withKind(err, ErrInvalidCredentials, ErrBadRequest, ErrTokenRejected)
	}
	return c.grant(op, data)
}

// Refresh trades a refresh token for a new pair. A definitive rejection of
// the refresh token is reported as ErrTokenRejected.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (AuthGrant, error) {
	const op = "refresh token"
	data, err := c.do(ctx, op, request{
		method: http.MethodPost,
		path:   "/auth/refresh",
		body:   map[string]string{"refresh_token": refreshToken},
	})
	if err != nil {
		return AuthGrant{}, withKind(err, ErrTokenRejected, ErrBadRequest)
	}
	return c.grant(op, data)
}

func (c *Client) grant(op string, data []byte) (AuthGrant, error) {
	var resp authResponse
	if err := decode(op, data, &resp); err != nil {
		return AuthGrant{}, err
	}
	if resp.AccessToken == "" {
		return AuthGrant{}, &Error{Op: op, Kind: ErrServerError, Message: "response has no access token"}
	}

	g := AuthGrant{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if resp.User != nil {
		g.UserID = resp.User.ID
	}
	if resp.ExpiresIn > 0 {
		g.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	// fill whatever the body left out from the token itself
	if g.ExpiresAt.IsZero() || g.UserID == "" {
		exp, sub := tokenClaims(resp.AccessToken)
		if g.ExpiresAt.IsZero() {
			g.ExpiresAt = exp
		}
		if g.UserID == "" {
			g.UserID = sub
		}
	}
	return g, nil
}

// tokenClaims reads exp and sub from a JWT without verifying it. The backend
// verifies every token it receives; this is only used for scheduling refresh.
func tokenClaims(token string) (time.Time, string) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, ""
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return exp, claims.Subject
}
