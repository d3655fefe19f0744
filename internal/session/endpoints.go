// Package session establishes and tracks the identity of remote client
// endpoints that drive the robot over the wire/pipe surface.
package session

import (
	"errors"
	"sync"
	"time"
)

// Error definitions.
var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	ErrEndpointExpired = errors.New("endpoint capability token expired")
)

// Info holds authenticated endpoint metadata.
type Info struct {
	EndpointID string
	Subject    string
	Scope      []string
	ExpiresAt  time.Time
}

type endpointState struct {
	info     Info
	lastSeen time.Time
}

// Registry tracks every client endpoint currently authorized against
// this robot: its capability scope and the last time it was heard
// from. It backs the controller's endpoint-health capability, injected
// at construction rather than reached through a process-wide
// singleton.
type Registry struct {
	mu         sync.RWMutex
	robotUUID  string
	validator  *TokenValidator
	tokenCache *TokenCache
	endpoints  map[string]*endpointState
}

// DefaultTokenCacheTTL is the default TTL for cached token claims.
const DefaultTokenCacheTTL = 30 * time.Second

// NewRegistry creates an endpoint registry for the given robot. The
// validator may be nil during local/offline operation, in which case
// Authenticate always fails closed.
func NewRegistry(robotUUID string, validator *TokenValidator) *Registry {
	return &Registry{
		robotUUID:  robotUUID,
		validator:  validator,
		tokenCache: NewTokenCache(DefaultTokenCacheTTL),
		endpoints:  make(map[string]*endpointState),
	}
}

// Authenticate validates a capability token for the named endpoint and
// records it as live. Re-authenticating an endpoint replaces its scope
// and expiry.
func (r *Registry) Authenticate(endpointID, token string) (*Info, error) {
	if r.validator == nil {
		return nil, ErrInvalidToken
	}

	var claims *TokenClaims
	if cached, ok := r.tokenCache.Get(token, endpointID); ok {
		claims = cached
	} else {
		validated, err := r.validator.Validate(token, endpointID)
		if err != nil {
			return nil, err
		}
		r.tokenCache.Set(token, endpointID, validated)
		claims = validated
	}

	info := Info{
		EndpointID: claims.EndpointID,
		Subject:    claims.Subject,
		Scope:      claims.Scope,
		ExpiresAt:  claims.ExpiresAt,
	}

	r.mu.Lock()
	r.endpoints[endpointID] = &endpointState{info: info, lastSeen: time.Now()}
	r.mu.Unlock()

	return &info, nil
}

// Touch records a liveness heartbeat for an endpoint (e.g. any wire
// payload received, or a transport-level keepalive). Unknown endpoints
// are ignored: liveness is only meaningful for an authenticated
// endpoint.
func (r *Registry) Touch(endpointID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.endpoints[endpointID]; ok {
		e.lastSeen = time.Now()
	}
}

// IsAlive reports whether the endpoint has been heard from within
// timeout. Implements core.EndpointHealth for TrajectoryTask's 50 ms
// connection-loss watcher.
func (r *Registry) IsAlive(endpointID string, timeout time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.endpoints[endpointID]
	if !ok {
		return false
	}
	return time.Since(e.lastSeen) <= timeout
}

// HasScope reports whether the endpoint's current token grants scope.
// Expired or unknown endpoints never have any scope.
func (r *Registry) HasScope(endpointID, scope string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.endpoints[endpointID]
	if !ok {
		return false
	}
	if !e.info.ExpiresAt.IsZero() && time.Now().After(e.info.ExpiresAt) {
		return false
	}
	for _, s := range e.info.Scope {
		if s == scope {
			return true
		}
	}
	return false
}

// Forget removes an endpoint from the registry, e.g. once its
// trajectory task or wire session ends.
func (r *Registry) Forget(endpointID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.endpoints, endpointID)
	r.tokenCache.InvalidateEndpoint(endpointID)
}

// Info returns the currently cached info for an endpoint, if any.
func (r *Registry) Info(endpointID string) (*Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.endpoints[endpointID]
	if !ok {
		return nil, false
	}
	info := e.info
	return &info, true
}
