// Package api exposes the JSON HTTP surface.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/studykit/handler"
	"github.com/dmitrymomot/studykit/pkg/binder"
	"github.com/dmitrymomot/studykit/pkg/httpserver"
	"github.com/dmitrymomot/studykit/pkg/jwt"
	"github.com/dmitrymomot/studykit/pkg/metrics"
	"github.com/dmitrymomot/studykit/pkg/ratelimit"
	"github.com/dmitrymomot/studykit/pkg/requestid"
	"github.com/dmitrymomot/studykit/svc/account"
	"github.com/dmitrymomot/studykit/svc/admin"
	"github.com/dmitrymomot/studykit/svc/billing"
	"github.com/dmitrymomot/studykit/svc/quota"
	"github.com/dmitrymomot/studykit/svc/study"
)

const (
	defaultRequestTimeout = 2 * time.Minute
	maxWebhookBytes       = 1 << 20
	// multipartOverhead is allowed on top of the plan's file size limit.
	multipartOverhead = 1 << 20
)

// Deps are the services behind the routes.
type Deps struct {
	Log      *slog.Logger
	JWT      *jwt.Service
	Accounts *account.Service
	Gate     *quota.Gate
	Study    *study.Service
	Billing  *billing.Service
	Admin    *admin.Service
	Ready    []httpserver.Check

	// AuthLimiter throttles the unauthenticated auth endpoints per client IP.
	// Nil disables throttling.
	AuthLimiter *ratelimit.Limiter

	// RequestTimeout bounds /api requests. AI generation runs inside it.
	RequestTimeout time.Duration
	// MaxUploadBytes caps multipart upload bodies before the quota gate
	// sees them.
	MaxUploadBytes int64
}

type Handlers struct {
	Deps
	errs handler.ErrorHandler
}

func NewHandlers(d Deps) *Handlers {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = defaultRequestTimeout
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = d.Gate.Catalog().Pro.MaxFileSizeBytes() + multipartOverhead
	}
	return &Handlers{Deps: d, errs: handler.NewErrorHandler(d.Log, classify)}
}

// wrap binds with binders and renders failures through the shared error
// handler.
func wrap[R any](h *Handlers, fn handler.HandlerFunc[R], binders ...func(*http.Request, any) error) http.HandlerFunc {
	return handler.Wrap(fn, handler.WithBinders(binders...), handler.WithErrorHandler(h.errs))
}

func pathID() func(*http.Request, any) error {
	return binder.Path(chi.URLParam)
}

// Router mounts every route.
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, requestid.Middleware, middleware.Recoverer)

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(h.Log, h.Ready...))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(h.RequestTimeout))

		r.Group(func(r chi.Router) {
			if h.AuthLimiter != nil {
				r.Use(ratelimit.Middleware(h.AuthLimiter, ratelimit.ByIP, h.Log, h.reject))
			}
			r.Post("/auth/register", wrap(h, h.register, binder.JSON()))
			r.Post("/auth/login", wrap(h, h.login, binder.JSON()))
			r.Post("/auth/refresh", wrap(h, h.refresh, binder.JSON()))
		})
		r.Post("/billing/webhook", h.webhook)

		r.Group(func(r chi.Router) {
			r.Use(jwt.Middleware(h.JWT, h.reject), h.loadUser)

			r.Get("/auth/profile", wrap(h, h.profile))
			r.Patch("/auth/profile", wrap(h, h.updateProfile, binder.JSON()))

			r.Get("/dashboard/stats", wrap(h, h.dashboardStats))
			r.Get("/usage", wrap(h, h.usage))

			r.Route("/documents", func(r chi.Router) {
				r.Get("/", wrap(h, h.listDocuments))
				r.With(h.limitUpload).Post("/", wrap(h, h.uploadDocument, binder.Form()))
				r.Get("/search", wrap(h, h.searchDocuments, binder.Query()))
				r.Get("/{id}", wrap(h, h.getDocument, pathID()))
				r.Delete("/{id}", wrap(h, h.deleteDocument, pathID()))
				r.Post("/{id}/generate-summary", wrap(h, h.generateSummary, pathID()))
				r.Post("/{id}/generate-flashcards", wrap(h, h.generateFlashcards, pathID(), binder.JSON(binder.AllowEmptyBody())))
			})

			r.Route("/summaries", func(r chi.Router) {
				r.Get("/", wrap(h, h.listSummaries))
				r.Get("/{id}", wrap(h, h.getSummary, pathID()))
				r.Delete("/{id}", wrap(h, h.deleteSummary, pathID()))
				r.Post("/{id}/generate-flashcards", wrap(h, h.generateFlashcardsFromSummary, pathID(), binder.JSON(binder.AllowEmptyBody())))
			})

			r.Route("/flashcards", func(r chi.Router) {
				r.Get("/", wrap(h, h.listFlashcards, binder.Query()))
				r.Post("/", wrap(h, h.createFlashcard, binder.JSON()))
				r.Get("/{id}", wrap(h, h.getFlashcard, pathID()))
				r.Patch("/{id}", wrap(h, h.updateFlashcard, pathID(), binder.JSON()))
				r.Delete("/{id}", wrap(h, h.deleteFlashcard, pathID()))
				r.Post("/{id}/review", wrap(h, h.reviewFlashcard, pathID(), binder.JSON(binder.AllowEmptyBody())))
			})

			r.Post("/billing/checkout", wrap(h, h.checkout))
			r.Get("/billing/portal", wrap(h, h.portal))

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.requireAdmin)
				r.Get("/dashboard/stats", wrap(h, h.adminDashboard))
				r.Get("/users", wrap(h, h.adminListUsers, binder.Query()))
				r.Get("/users/{id}", wrap(h, h.adminGetUser, pathID()))
				r.Patch("/users/{id}", wrap(h, h.adminUpdateUser, pathID(), binder.JSON()))
				r.Get("/content/stats", wrap(h, h.adminContentStats))
			})
		})
	})

	return r
}
