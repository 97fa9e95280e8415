package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrymomot/studykit/handler"
	"github.com/dmitrymomot/studykit/pkg/binder"
	"github.com/dmitrymomot/studykit/pkg/metrics"
	"github.com/dmitrymomot/studykit/svc/billing"
)

func (h *Handlers) checkout(ctx handler.Context, _ struct{}) handler.Response {
	link, err := h.Billing.Checkout(ctx, currentUser(ctx).ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(link)
}

func (h *Handlers) portal(ctx handler.Context, _ struct{}) handler.Response {
	link, err := h.Billing.Portal(ctx, currentUser(ctx).ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(link)
}

// webhook needs the raw body for signature verification, so it reads the
// request itself instead of going through a binder.
func (h *Handlers) webhook(w http.ResponseWriter, r *http.Request) {
	provider := h.Billing.ProviderName()
	start := time.Now()
	status := "error"
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(provider, status).Inc()
		metrics.WebhookDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}()

	ctx := handler.NewContext(w, r)
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = binder.ErrBodyTooLarge
		}
		status = "rejected"
		h.errs(ctx, err)
		return
	}

	result, err := h.Billing.HandleWebhook(ctx, payload, r.Header.Get(signatureHeader(provider)))
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) || errors.Is(err, billing.ErrInvalidPayload) {
			status = "rejected"
		}
		h.errs(ctx, err)
		return
	}

	status = string(result)
	if err := handler.JSON(map[string]string{"status": status}).Render(w, r); err != nil {
		h.errs(ctx, err)
	}
}

func signatureHeader(provider string) string {
	if provider == billing.ProviderStripe {
		return "Stripe-Signature"
	}
	return "Paddle-Signature"
}
