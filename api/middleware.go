package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrymomot/studykit/handler"
	"github.com/dmitrymomot/studykit/pkg/jwt"
	"github.com/dmitrymomot/studykit/svc/account"
	"github.com/dmitrymomot/studykit/svc/quota"
)

type userKey struct{}

// reject renders authentication failures from the JWT middleware.
func (h *Handlers) reject(w http.ResponseWriter, r *http.Request, err error) {
	h.errs(handler.NewContext(w, r), err)
}

// loadUser replaces the token claims with the stored user. Plan fields and
// the admin flag are read fresh on every request.
func (h *Handlers) loadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := jwt.ClaimsFromContext(r.Context())
		if !ok {
			h.reject(w, r, jwt.ErrMissingToken)
			return
		}
		u, err := h.Accounts.Get(r.Context(), claims.Subject)
		if err != nil {
			// A token for a deleted user is no longer valid.
			if errors.Is(err, account.ErrUserNotFound) {
				err = jwt.ErrInvalidToken
			}
			h.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	})
}

// requireAdmin checks the stored admin flag, not the token claim, so a
// revoked admin loses access immediately.
func (h *Handlers) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := r.Context().Value(userKey{}).(account.User); !ok || !u.IsAdmin {
			h.reject(w, r, errForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) limitUpload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
		next.ServeHTTP(w, r)
	})
}

// currentUser returns the user loaded by loadUser.
func currentUser(ctx context.Context) account.User {
	u, _ := ctx.Value(userKey{}).(account.User)
	return u
}

func subject(ctx context.Context) quota.Subject {
	u := currentUser(ctx)
	return quota.Subject{UserID: u.ID, Subscription: u.Subscription}
}
