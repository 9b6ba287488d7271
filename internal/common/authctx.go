package common

import (
	"context"
	"strings"
)

type ctxKey string

const sessionKey ctxKey = "auth/session"

// Session carries the authenticated caller as explicit values. ShopID is zero
// for users that operate on main stock only.
type Session struct {
	UserID string
	ShopID int64
	Token  string
}

// HasShop reports whether the session is bound to a shop.
func (s Session) HasShop() bool { return s.ShopID > 0 }

// WithSession stores the authenticated session on the provided context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFrom extracts the session from the context if present.
func SessionFrom(ctx context.Context) (Session, bool) {
	v := ctx.Value(sessionKey)
	if v == nil {
		return Session{}, false
	}
	s, ok := v.(Session)
	return s, ok
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	s, ok := SessionFrom(ctx)
	if !ok || strings.TrimSpace(s.UserID) == "" {
		return "", false
	}
	return s.UserID, true
}
