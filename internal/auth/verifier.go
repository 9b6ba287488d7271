// Package auth verifies bearer tokens issued by the inventory backend and
// turns their claims into a common.Session.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-pos/internal/common"
)

// ShopClaim names the private claim holding the user's shop.
const ShopClaim = "shop_id"

var (
	// ErrMissingToken is returned when no bearer token is supplied.
	ErrMissingToken = errors.New("auth: token missing")
	// ErrInvalidToken wraps every signature, claim, or validation failure.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Verifier checks HS256 tokens signed with the secret shared with the backend.
type Verifier struct {
	Secret    []byte
	Validator TokenValidator
	Now       func() time.Time
}

// NewVerifier builds a Verifier pinned to HS256.
func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{
		Secret: []byte(secret),
		Validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: 30 * time.Second,
			Algorithm: jwa.HS256,
		},
	}
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Verify validates token and returns the session it describes. The raw token
// is kept on the session so downstream calls can forward it.
func (v *Verifier) Verify(token string) (common.Session, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return common.Session{}, ErrMissingToken
	}
	if v == nil || len(v.Secret) == 0 {
		return common.Session{}, errors.New("auth: verifier not configured")
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return common.Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if v.Validator.Algorithm != "" && algorithm != v.Validator.Algorithm {
		return common.Session{}, fmt.Errorf("%w: unexpected algorithm %s", ErrInvalidToken, algorithm)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.Secret), jwt.WithValidate(false))
	if err != nil {
		return common.Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if err := v.Validator.Validate(parsed, algorithm, v.now()); err != nil {
		return common.Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	subject := strings.TrimSpace(parsed.Subject())
	if subject == "" {
		return common.Session{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	shopID, err := shopFromClaims(parsed)
	if err != nil {
		return common.Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return common.Session{UserID: subject, ShopID: shopID, Token: trimmed}, nil
}

// shopFromClaims reads the optional shop claim. Absent or null means the
// user works on main stock.
func shopFromClaims(tok jwt.Token) (int64, error) {
	raw, ok := tok.Get(ShopClaim)
	if !ok || raw == nil {
		return 0, nil
	}
	switch value := raw.(type) {
	case float64:
		if value < 0 || value != float64(int64(value)) {
			return 0, fmt.Errorf("invalid %s claim", ShopClaim)
		}
		return int64(value), nil
	case json.Number:
		id, err := value.Int64()
		if err != nil || id < 0 {
			return 0, fmt.Errorf("invalid %s claim", ShopClaim)
		}
		return id, nil
	case string:
		if strings.TrimSpace(value) == "" {
			return 0, nil
		}
		id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || id < 0 {
			return 0, fmt.Errorf("invalid %s claim", ShopClaim)
		}
		return id, nil
	}
	return 0, fmt.Errorf("invalid %s claim type %T", ShopClaim, raw)
}

// SessionFromRequest verifies the request's bearer token.
func (v *Verifier) SessionFromRequest(r *http.Request) (common.Session, error) {
	return v.Verify(common.BearerToken(r))
}
