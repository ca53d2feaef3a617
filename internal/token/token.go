// Package token implements component A: OAuth token backends for the
// refresh-token flow (Drive and Graph) and the Google service-account JWT
// flow. Both expose GetToken(ctx) (string, error); both serialize refresh
// behind a per-instance mutex with a double-checked expiry re-test.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// State is the on-disk/in-memory shape of a refreshable OAuth token.
type State struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresIn    int64     `json:"expires_in"`
	AcquiredAt   time.Time `json:"get_time"`
}

func (s State) expired(now time.Time) bool {
	return s.AcquiredAt.Add(time.Duration(s.ExpiresIn) * time.Second).Before(now) ||
		s.AcquiredAt.Add(time.Duration(s.ExpiresIn)*time.Second).Equal(now)
}

// Store persists and refreshes a State on disk, optionally AES-GCM
// encrypted under a password. It is safe for concurrent use.
type Store struct {
	path     string
	password string

	mu    sync.Mutex
	state State
}

// NewStore returns a Store reading/writing path, encrypting at rest when
// password is non-empty.
func NewStore(path, password string) *Store {
	return &Store{path: path, password: password}
}

// Load reads the token file from disk into memory.
func (s *Store) Load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}
	content := string(raw)
	if isEncrypted(content) {
		if s.password == "" {
			return fmt.Errorf("token file %s is encrypted but no password was supplied", s.path)
		}
		content, err = decrypt(content, s.password)
		if err != nil {
			return err
		}
	}
	var st State
	if err := json.Unmarshal([]byte(content), &st); err != nil {
		return fmt.Errorf("parse token file: %w", err)
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return nil
}

// Save sets state as the current token and persists it to disk, encrypting
// it if a password is set. Used by the interactive authorization-code
// bootstrap (cmd/xfer's token subcommand) to seed a fresh token file before
// any refresh has happened.
func (s *Store) Save(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return s.save()
}

// save persists the current state, encrypting it if a password is set.
// Callers must hold s.mu.
func (s *Store) save() error {
	raw, err := json.Marshal(s.state)
	if err != nil {
		return err
	}
	content := string(raw)
	if s.password != "" {
		content, err = encrypt(content, s.password)
		if err != nil {
			return err
		}
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, []byte(content), 0o600)
}

// RefreshFunc exchanges a refresh token (or re-derives a fresh access
// token by whatever means the provider needs) for a new State.
type RefreshFunc func(ctx context.Context, current State) (State, error)

// RefreshTokenBackend is the refresh-token variant of component A: plain
// OAuth2 authorization-code/refresh-token grant, token persisted to disk on
// every successful refresh.
type RefreshTokenBackend struct {
	store   *Store
	refresh RefreshFunc
	mu      sync.Mutex
}

// NewRefreshTokenBackend builds a backend around store, using cfg's
// TokenSource (golang.org/x/oauth2) to perform the actual HTTP refresh
// exchange.
func NewRefreshTokenBackend(store *Store, cfg *oauth2.Config) *RefreshTokenBackend {
	refresh := func(ctx context.Context, current State) (State, error) {
		tok := &oauth2.Token{
			AccessToken:  current.AccessToken,
			RefreshToken: current.RefreshToken,
			Expiry:       current.AcquiredAt.Add(time.Duration(current.ExpiresIn) * time.Second),
		}
		src := cfg.TokenSource(ctx, tok)
		fresh, err := src.Token()
		if err != nil {
			return State{}, fmt.Errorf("refresh oauth token: %w", err)
		}
		expiresIn := int64(0)
		if !fresh.Expiry.IsZero() {
			expiresIn = int64(time.Until(fresh.Expiry).Seconds())
		}
		return State{
			AccessToken:  fresh.AccessToken,
			RefreshToken: fresh.RefreshToken,
			ExpiresIn:    expiresIn,
			AcquiredAt:   timeNow(),
		}, nil
	}
	return &RefreshTokenBackend{store: store, refresh: refresh}
}

// timeNow is a seam so tests can freeze time if needed; production code
// always calls time.Now.
var timeNow = time.Now

// GetToken returns a valid access token, refreshing first if expired.
// Double-checked locking: the expiry check is repeated after acquiring the
// mutex so two concurrent callers don't both refresh.
func (b *RefreshTokenBackend) GetToken(ctx context.Context) (string, error) {
	b.store.mu.Lock()
	if !b.store.state.expired(timeNow()) {
		tok := b.store.state.AccessToken
		b.store.mu.Unlock()
		return tok, nil
	}
	b.store.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.store.mu.Lock()
	current := b.store.state
	stillExpired := current.expired(timeNow())
	b.store.mu.Unlock()
	if !stillExpired {
		return current.AccessToken, nil
	}

	fresh, err := b.refresh(ctx, current)
	if err != nil {
		return "", err
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = current.RefreshToken
	}

	b.store.mu.Lock()
	b.store.state = fresh
	err = b.store.save()
	b.store.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}
	return fresh.AccessToken, nil
}

// ServiceAccountBackend is the Google-only service-account JWT variant:
// credentials stay in memory, never persisted, since the JWT is re-minted
// from the service-account private key on every refresh rather than
// exchanged for a long-lived refresh token.
type ServiceAccountBackend struct {
	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewServiceAccountBackend builds a backend from raw service-account JSON
// credentials, scoped to scope (drive.readonly, drive, etc).
func NewServiceAccountBackend(ctx context.Context, credentialsJSON []byte, scope string) (*ServiceAccountBackend, error) {
	cfg, err := google.JWTConfigFromJSON(credentialsJSON, scope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	return &ServiceAccountBackend{source: cfg.TokenSource(ctx)}, nil
}

// GetToken returns a valid access token. oauth2.TokenSource already caches
// and refreshes internally; the mutex here exists to literally satisfy the
// component's "single process-wide mutex per provider serializes refresh"
// contract rather than to add caching oauth2 doesn't already do.
func (b *ServiceAccountBackend) GetToken(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tok, err := b.source.Token()
	if err != nil {
		return "", fmt.Errorf("mint service account token: %w", err)
	}
	return tok.AccessToken, nil
}
