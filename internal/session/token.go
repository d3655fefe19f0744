// Package session establishes and tracks the identity of remote client
// endpoints that drive the robot over the wire/pipe surface.
package session

import (
	"crypto/ed25519"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidAudience  = errors.New("invalid audience")
	ErrEndpointMismatch = errors.New("endpoint id mismatch")
	ErrNonceReplayed    = errors.New("nonce already bound to a different endpoint")
)

// TokenClaims holds validated JWT claims for a client endpoint.
type TokenClaims struct {
	EndpointID string
	Subject    string
	Scope      []string
	Nonce      string
	ExpiresAt  time.Time
}

// maxTrackedNonces bounds the nonce-ownership table. The validator
// serves many concurrently-authenticated endpoints against one robot,
// so a nonce lifted from one endpoint's token and replayed against
// another is a real cross-endpoint attack this cap and the ownership
// check below exist to catch.
const maxTrackedNonces = 4096

// TokenValidator validates Ed25519-signed capability tokens presented
// by client endpoints before their wire commands or trajectory
// submissions are accepted.
type TokenValidator struct {
	publicKey ed25519.PublicKey
	robotUUID string
	clockSkew time.Duration

	nonceMu     sync.Mutex
	nonceOwners map[string]string
}

// NewTokenValidator creates a new token validator scoped to a robot's
// device UUID (the JWT audience).
func NewTokenValidator(publicKey ed25519.PublicKey, robotUUID string, clockSkew time.Duration) *TokenValidator {
	return &TokenValidator{
		publicKey:   publicKey,
		robotUUID:   robotUUID,
		clockSkew:   clockSkew,
		nonceOwners: make(map[string]string),
	}
}

// Validate parses and validates a JWT token, checking that it names
// the expected endpoint id and that its nonce (if present) has not
// already been bound to a different endpoint.
func (v *TokenValidator) Validate(tokenString, expectedEndpointID string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, v.keyFunc, jwt.WithLeeway(v.clockSkew))
	if err != nil {
		return nil, v.mapError(err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidSignature
	}

	parsed, err := v.extractClaims(claims, expectedEndpointID)
	if err != nil {
		return nil, err
	}

	if err := v.checkNonce(parsed.Nonce, expectedEndpointID); err != nil {
		return nil, err
	}

	return parsed, nil
}

// checkNonce binds a token nonce to the endpoint presenting it. A
// nonce already bound to a different endpoint means the same token (or
// a forged one sharing its nonce) is being replayed against a second
// endpoint identity. Empty nonces are not tracked: some issuers omit
// them for short-lived jog/halt tokens.
func (v *TokenValidator) checkNonce(nonce, endpointID string) error {
	if nonce == "" {
		return nil
	}

	v.nonceMu.Lock()
	defer v.nonceMu.Unlock()

	if owner, ok := v.nonceOwners[nonce]; ok {
		if owner != endpointID {
			return ErrNonceReplayed
		}
		return nil
	}

	if len(v.nonceOwners) >= maxTrackedNonces {
		for k := range v.nonceOwners {
			delete(v.nonceOwners, k)
			break
		}
	}
	v.nonceOwners[nonce] = endpointID
	return nil
}

// keyFunc returns the public key for signature verification.
func (v *TokenValidator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
		return nil, ErrInvalidSignature
	}
	return v.publicKey, nil
}

// mapError converts jwt library errors to our error types.
func (v *TokenValidator) mapError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return ErrInvalidSignature
	}
	return ErrInvalidSignature
}

// extractClaims extracts and validates claims from token.
func (v *TokenValidator) extractClaims(claims jwt.MapClaims, expectedEndpointID string) (*TokenClaims, error) {
	aud, ok := claims["aud"].(string)
	if !ok || aud != v.robotUUID {
		return nil, ErrInvalidAudience
	}

	eid, ok := claims["eid"].(string)
	if !ok || eid != expectedEndpointID {
		return nil, ErrEndpointMismatch
	}

	sub, _ := claims["sub"].(string)
	nonce, _ := claims["nonce"].(string)

	var expiresAt time.Time
	if exp, ok := claims["exp"].(float64); ok {
		expiresAt = time.Unix(int64(exp), 0)
	}

	return &TokenClaims{
		EndpointID: eid,
		Subject:    sub,
		Scope:      v.extractScope(claims),
		Nonce:      nonce,
		ExpiresAt:  expiresAt,
	}, nil
}

// extractScope extracts the scope array from claims.
func (v *TokenValidator) extractScope(claims jwt.MapClaims) []string {
	scopeRaw, ok := claims["scope"]
	if !ok {
		return nil
	}

	scopeArr, ok := scopeRaw.([]any)
	if !ok {
		return nil
	}

	scope := make([]string, 0, len(scopeArr))
	for _, s := range scopeArr {
		if str, ok := s.(string); ok {
			scope = append(scope, str)
		}
	}
	return scope
}
