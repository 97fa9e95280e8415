package api

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/studykit/handler"
	"github.com/dmitrymomot/studykit/pkg/jwt"
	"github.com/dmitrymomot/studykit/svc/account"
)

type authResponse struct {
	User   account.User  `json:"user"`
	Tokens jwt.TokenPair `json:"tokens"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (h *Handlers) register(ctx handler.Context, req account.Registration) handler.Response {
	u, err := h.Accounts.Register(ctx, req)
	if err != nil {
		return handler.Fail(err)
	}
	return h.issue(u, http.StatusCreated)
}

func (h *Handlers) login(ctx handler.Context, req loginRequest) handler.Response {
	u, err := h.Accounts.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return handler.Fail(err)
	}
	return h.issue(u, http.StatusOK)
}

// refresh trades a refresh token for a new pair. The user is reloaded so the
// admin claim follows the stored flag.
func (h *Handlers) refresh(ctx handler.Context, req refreshRequest) handler.Response {
	claims, err := h.JWT.Parse(req.Refresh, jwt.TypeRefresh)
	if err != nil {
		return handler.Fail(err)
	}
	u, err := h.Accounts.Get(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			err = jwt.ErrInvalidToken
		}
		return handler.Fail(err)
	}
	return h.issue(u, http.StatusOK)
}

func (h *Handlers) issue(u account.User, status int) handler.Response {
	pair, err := h.JWT.IssuePair(u.ID, u.IsAdmin)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(authResponse{User: u, Tokens: pair}, handler.WithStatus(status))
}

func (h *Handlers) profile(ctx handler.Context, _ struct{}) handler.Response {
	return handler.JSON(currentUser(ctx))
}

func (h *Handlers) updateProfile(ctx handler.Context, req account.ProfileUpdate) handler.Response {
	u, err := h.Accounts.UpdateProfile(ctx, currentUser(ctx).ID, req)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(u)
}
