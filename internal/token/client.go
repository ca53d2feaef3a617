package token

import (
	"context"
	"fmt"
	"net/http"
)

// Backend is implemented by both RefreshTokenBackend and
// ServiceAccountBackend: anything that can mint a current access token.
type Backend interface {
	GetToken(ctx context.Context) (string, error)
}

// transport injects "Authorization: Bearer <token>" into every request,
// refreshing via backend.GetToken as needed — the teacher's equivalent is
// oauth2.NewClient wrapping an oauth2.TokenSource; this does the same job
// against the token package's own Backend contract instead of a raw
// oauth2.TokenSource, since RefreshTokenBackend wraps oauth2 internally but
// ServiceAccountBackend needs the same RoundTripper shape too.
type transport struct {
	base    http.RoundTripper
	backend Backend
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.backend.GetToken(req.Context())
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bearer "+tok)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(cloned)
}

// NewHTTPClient wraps backend into an *http.Client whose every request
// carries a fresh bearer token.
func NewHTTPClient(backend Backend) *http.Client {
	return &http.Client{Transport: &transport{backend: backend}}
}
