package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/dmitrymomot/studykit/handler"
	"github.com/dmitrymomot/studykit/svc/account"
	"github.com/dmitrymomot/studykit/svc/admin"
)

type userListRequest struct {
	Search   string `query:"search"`
	Page     int    `query:"page"`
	PageSize int    `query:"page_size"`
}

// userListResponse is a page of users with links to its neighbours.
type userListResponse struct {
	Count    int64          `json:"count"`
	Next     *string        `json:"next"`
	Previous *string        `json:"previous"`
	Results  []account.User `json:"results"`
}

type adminUpdateRequest struct {
	ID string `path:"id" json:"-"`
	admin.UserUpdate
}

func (h *Handlers) adminDashboard(ctx handler.Context, _ struct{}) handler.Response {
	stats, err := h.Admin.Dashboard(ctx)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(stats)
}

func (h *Handlers) adminContentStats(ctx handler.Context, _ struct{}) handler.Response {
	stats, err := h.Admin.ContentStats(ctx)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(stats)
}

func (h *Handlers) adminListUsers(ctx handler.Context, req userListRequest) handler.Response {
	page, err := h.Admin.ListUsers(ctx, admin.UserQuery{
		Search:   req.Search,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		return handler.Fail(err)
	}

	resp := userListResponse{Count: page.Count, Results: page.Results}
	if resp.Results == nil {
		resp.Results = []account.User{}
	}
	if page.HasNext() {
		resp.Next = pageURL(ctx.Request(), page.Page+1)
	}
	if page.HasPrevious() {
		resp.Previous = pageURL(ctx.Request(), page.Page-1)
	}
	return handler.JSON(resp)
}

// pageURL is the absolute URL of the same listing at page n. The other query
// parameters are kept.
func pageURL(r *http.Request, n int) *string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(n))
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	s := u.String()
	return &s
}

func (h *Handlers) adminGetUser(ctx handler.Context, req idRequest) handler.Response {
	if err := validID(req.ID); err != nil {
		return handler.Fail(err)
	}
	detail, err := h.Admin.GetUser(ctx, req.ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(detail)
}

func (h *Handlers) adminUpdateUser(ctx handler.Context, req adminUpdateRequest) handler.Response {
	if err := validID(req.ID); err != nil {
		return handler.Fail(err)
	}
	u, err := h.Admin.UpdateUser(ctx, currentUser(ctx).ID, req.ID, req.UserUpdate)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(u)
}
