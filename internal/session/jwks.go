// Package session provides JWKS fetching for client endpoint capability
// token validation.
package session

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"
)

var (
	ErrKeyNotFound = errors.New("key not found in JWKS")
	ErrFetchFailed = errors.New("failed to fetch JWKS")
	ErrInvalidJWKS = errors.New("invalid JWKS format")
)

// JWKSFetcher fetches and caches the Ed25519 signing keys used to verify
// client endpoint capability tokens. Key rotation at the issuer is
// expected to overlap two generations of keys (the old key still
// verifies tokens already handed to connecting endpoints while the new
// one phases in), so a refresh keeps the prior generation around for
// one more cycle instead of dropping it the instant a new JWKS document
// arrives: with many endpoints authenticating concurrently (wire
// clients, jog operators, trajectory submitters), a single-generation
// cache would spuriously reject any endpoint mid-handshake against a
// key that just rotated out.
type JWKSFetcher struct {
	url        string
	httpClient *http.Client
	cacheTTL   time.Duration

	mu        sync.RWMutex
	current   map[string]ed25519.PublicKey
	previous  map[string]ed25519.PublicKey
	lastFetch time.Time
}

// jwksResponse represents the JWKS JSON structure.
type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

// jwkKey represents a single JWK.
type jwkKey struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Kid string `json:"kid"`
	X   string `json:"x"`
	Use string `json:"use"`
}

// NewJWKSFetcher creates a new JWKS fetcher against the given JWKS
// document URL.
func NewJWKSFetcher(url string, cacheTTL time.Duration) *JWKSFetcher {
	return &JWKSFetcher{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cacheTTL:   cacheTTL,
		current:    make(map[string]ed25519.PublicKey),
	}
}

// GetPublicKey returns the public key for the given key ID, checking
// the current and previous key generations before forcing a refresh.
func (f *JWKSFetcher) GetPublicKey(kid string) (ed25519.PublicKey, error) {
	if key, ok := f.lookup(kid); ok {
		return key, nil
	}

	// Cache miss in both generations - refresh and look again.
	if err := f.Refresh(); err != nil {
		return nil, err
	}

	if key, ok := f.lookup(kid); ok {
		return key, nil
	}
	return nil, ErrKeyNotFound
}

func (f *JWKSFetcher) lookup(kid string) (ed25519.PublicKey, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if key, ok := f.current[kid]; ok {
		return key, true
	}
	key, ok := f.previous[kid]
	return key, ok
}

// Refresh fetches the latest JWKS document, demoting the current
// generation to previous rather than discarding it.
func (f *JWKSFetcher) Refresh() error {
	resp, err := f.httpClient.Get(f.url)
	if err != nil {
		return errors.Join(ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ErrFetchFailed
	}

	var jwks jwksResponse
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return errors.Join(ErrInvalidJWKS, err)
	}

	f.updateCache(jwks)
	return nil
}

// Run polls Refresh on interval until ctx is cancelled, the same
// ticker-driven polling shape TrajectoryTask's liveness watcher uses.
// Refresh failures are swallowed into onFailure (nil-safe) rather than
// propagated: a stale but still-valid two-generation cache keeps
// serving already-known kids until the next successful poll.
func (f *JWKSFetcher) Run(ctx context.Context, interval time.Duration, onFailure func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.Refresh(); err != nil && onFailure != nil {
				onFailure(err)
			}
		}
	}
}

// updateCache parses JWKs and updates the cache, keeping the prior
// generation around for one more refresh cycle.
func (f *JWKSFetcher) updateCache(jwks jwksResponse) {
	newCache := make(map[string]ed25519.PublicKey)

	for _, key := range jwks.Keys {
		if key.Kty != "OKP" || key.Crv != "Ed25519" {
			continue
		}

		pubBytes, err := base64.RawURLEncoding.DecodeString(key.X)
		if err != nil || len(pubBytes) != ed25519.PublicKeySize {
			continue
		}

		newCache[key.Kid] = ed25519.PublicKey(pubBytes)
	}

	f.mu.Lock()
	f.previous = f.current
	f.current = newCache
	f.lastFetch = time.Now()
	f.mu.Unlock()
}
