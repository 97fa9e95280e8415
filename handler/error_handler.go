package handler

import (
	"errors"
	"log/slog"
	"maps"
	"net/http"

	"github.com/dmitrymomot/studykit/pkg/apperr"
	"github.com/dmitrymomot/studykit/pkg/binder"
	"github.com/dmitrymomot/studykit/pkg/logger"
)

// ErrorBody is the error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Classifier maps err to a status and response body. ok is false when the
// classifier does not recognise err.
type Classifier func(err error) (status int, body any, ok bool)

// Classify is the fallback classifier. It understands apperr kinds,
// validation errors and binder failures.
func Classify(err error) (int, ErrorBody) {
	var verr apperr.ValidationError
	if errors.As(err, &verr) {
		details := make(map[string][]string, len(verr))
		maps.Copy(details, verr)
		return http.StatusBadRequest, ErrorBody{Error: ErrorDetail{
			Code:    apperr.KindValidation.Code(),
			Message: "Validation failed",
			Details: details,
		}}
	}

	switch {
	case errors.Is(err, binder.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, ErrorBody{Error: ErrorDetail{
			Code:    "request_too_large",
			Message: "Request body is too large.",
		}}
	case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
		return http.StatusUnsupportedMediaType, ErrorBody{Error: ErrorDetail{
			Code:    "unsupported_media_type",
			Message: err.Error(),
		}}
	case errors.Is(err, binder.ErrFailedToParseJSON),
		errors.Is(err, binder.ErrFailedToParseForm),
		errors.Is(err, binder.ErrFailedToParseQuery),
		errors.Is(err, binder.ErrFailedToParsePath):
		// The decoder's own message names Go types, so it stays in the log.
		return http.StatusBadRequest, ErrorBody{Error: ErrorDetail{
			Code:    "bad_request",
			Message: "Malformed request.",
		}}
	}

	kind := apperr.KindOf(err)
	return kind.Status(), ErrorBody{Error: ErrorDetail{
		Code:    kind.Code(),
		Message: apperr.PublicMessage(err),
	}}
}

// NewErrorHandler logs err and writes the classified JSON body. The request
// id comes from the logger's context extractor. Client errors log at warn,
// server errors at error. classify may be nil.
func NewErrorHandler(log *slog.Logger, classify Classifier) ErrorHandler {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx Context, err error) {
		r := ctx.Request()

		var (
			status int
			body   any
			ok     bool
		)
		if classify != nil {
			status, body, ok = classify(err)
		}
		if !ok {
			status, body = Classify(err)
		}

		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.LogAttrs(r.Context(), level, "request error",
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("error_handler"),
		)

		if renderErr := JSON(body, WithStatus(status)).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.ErrorContext(r.Context(), "failed to render error response", logger.Error(renderErr))
		}
	}
}
