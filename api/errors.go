package api

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/studykit/handler"
	"github.com/dmitrymomot/studykit/pkg/ai"
	"github.com/dmitrymomot/studykit/pkg/apperr"
	"github.com/dmitrymomot/studykit/pkg/jwt"
	"github.com/dmitrymomot/studykit/pkg/ratelimit"
	"github.com/dmitrymomot/studykit/pkg/search"
	"github.com/dmitrymomot/studykit/svc/account"
	"github.com/dmitrymomot/studykit/svc/admin"
	"github.com/dmitrymomot/studykit/svc/billing"
	"github.com/dmitrymomot/studykit/svc/quota"
	"github.com/dmitrymomot/studykit/svc/study"
)

var (
	errNotFound  = apperr.New(apperr.KindNotFound, "Not found.")
	errForbidden = apperr.New(apperr.KindPermission, "You do not have permission to perform this action.")
)

// quotaErrorBody is the body of a denied quota check.
type quotaErrorBody struct {
	Error quotaErrorDetail `json:"error"`
}

type quotaErrorDetail struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Resource string `json:"resource"`
	Limit    int64  `json:"limit"`
}

type mappedError struct {
	err     error
	kind    apperr.Kind
	code    string
	message string
}

// domainErrors maps service sentinels to client-facing errors. Order
// matters only where sentinels wrap each other.
var domainErrors = []mappedError{
	{study.ErrDocumentNotFound, apperr.KindNotFound, "", "Document not found."},
	{study.ErrSummaryNotFound, apperr.KindNotFound, "", "Summary not found."},
	{study.ErrFlashcardNotFound, apperr.KindNotFound, "", "Flashcard not found."},
	{account.ErrUserNotFound, apperr.KindNotFound, "", "User not found."},
	{admin.ErrUserNotFound, apperr.KindNotFound, "", "User not found."},
	{account.ErrInvalidCredentials, apperr.KindUnauthorized, "", "Invalid email or password."},
	{jwt.ErrMissingToken, apperr.KindUnauthorized, "", "Authentication credentials were not provided."},
	{jwt.ErrExpiredToken, apperr.KindUnauthorized, "token_expired", "Token is expired."},
	{jwt.ErrInvalidToken, apperr.KindUnauthorized, "token_not_valid", "Token is invalid."},
	{study.ErrSearchDisabled, apperr.KindUnavailable, "", "Document search is not available."},
	{search.ErrDisabled, apperr.KindUnavailable, "", "Document search is not available."},
	{ai.ErrNotConfigured, apperr.KindUnavailable, "", "AI generation is not available."},
	{ai.ErrEmptyInput, apperr.KindValidation, "", "Could not extract text from document."},
	{ai.ErrGenerationFailed, apperr.KindExternalService, "", "AI generation failed. Please try again."},
	{study.ErrNoFlashcards, apperr.KindExternalService, "", "The AI service returned no flashcards. Please try again."},
	{billing.ErrBillingDisabled, apperr.KindUnavailable, "", "Billing is not available."},
	{billing.ErrMissingPriceID, apperr.KindUnavailable, "", "Billing is not available."},
	{billing.ErrInvalidSignature, apperr.KindValidation, "invalid_signature", "Invalid webhook signature."},
	{billing.ErrInvalidPayload, apperr.KindValidation, "invalid_payload", "Invalid webhook payload."},
	{billing.ErrAlreadySubscribed, apperr.KindConflict, "", "You already have an active Pro subscription."},
	{billing.ErrNoBillingAccount, apperr.KindNotFound, "", "No billing account found. Subscribe to Pro first."},
	{billing.ErrAccountNotFound, apperr.KindNotFound, "", "User not found."},
	{ratelimit.ErrRateLimitExceeded, apperr.KindRateLimited, "", "Request was throttled. Please try again later."},
	{billing.ErrProviderFailed, apperr.KindExternalService, "", "The billing provider request failed. Please try again."},
}

// classify renders quota denials and known service errors. Anything else
// falls through to handler.Classify.
func classify(err error) (int, any, bool) {
	var exceeded *quota.ExceededError
	if errors.As(err, &exceeded) {
		return http.StatusForbidden, quotaErrorBody{Error: quotaErrorDetail{
			Code:     apperr.KindQuotaExceeded.Code(),
			Message:  exceeded.Message(),
			Resource: exceeded.Resource,
			Limit:    exceeded.Limit,
		}}, true
	}

	// Field errors raised by services win over sentinels they may wrap.
	var verr apperr.ValidationError
	if errors.As(err, &verr) {
		return 0, nil, false
	}

	for _, m := range domainErrors {
		if !errors.Is(err, m.err) {
			continue
		}
		code := m.code
		if code == "" {
			code = m.kind.Code()
		}
		return m.kind.Status(), handler.ErrorBody{Error: handler.ErrorDetail{Code: code, Message: m.message}}, true
	}
	return 0, nil, false
}
