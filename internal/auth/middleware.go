package auth

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/obs"
)

// Middleware wires authentication into HTTP handlers.
type Middleware struct {
	Verifier *Verifier
	Logger   *zerolog.Logger
}

// RequireAuth rejects requests without a valid bearer token and stores the
// session on the request context otherwise.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.Verifier.SessionFromRequest(r)
		if err != nil {
			if !errors.Is(err, ErrMissingToken) && m.Logger != nil {
				l := obs.WithRequest(r.Context(), *m.Logger)
				l.Debug().Err(err).Msg("auth_rejected")
			}
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		obs.NoteSession(r.Context(), sess)
		next.ServeHTTP(w, r.WithContext(common.WithSession(r.Context(), sess)))
	})
}
