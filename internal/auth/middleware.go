package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/salon-pos/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware resolves the operator behind a till request. Tokens come from a
// bearer header or, for browser sessions, from AccessCookie.
type Middleware struct {
	Service      *Service
	AccessCookie string
}

// RequireAuth rejects requests without a valid operator token and attaches
// the operator to the context otherwise.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, err := m.operator(r)
		if err != nil {
			var appErr *common.AppError
			if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
				common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
				return
			}
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithOperator(r.Context(), op)))
	})
}

// RequireManager admits only operators allowed to reassign staff. It must run
// after RequireAuth.
func RequireManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, ok := common.OperatorFrom(r.Context())
		if !ok {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
			return
		}
		if !op.CanReassignStaff {
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "manager access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) operator(r *http.Request) (common.Operator, error) {
	if m.Service == nil {
		return common.Operator{}, errors.New("auth: service not configured")
	}
	token := m.token(r)
	if token == "" {
		return common.Operator{}, errNoToken
	}
	return m.Service.ParseAccessToken(token)
}

func (m Middleware) token(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, value, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(value)
	}
	if m.AccessCookie == "" {
		return ""
	}
	cookie, err := r.Cookie(m.AccessCookie)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}
