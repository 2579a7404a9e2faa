package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/MJE43/blackjack-policy/internal/store"
)

// ErrorBuilder constructs an EngineError with context.
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]any
	requestID string
}

func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]any),
	}
}

func (eb *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause records err's message under "cause".
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

func (eb *ErrorBuilder) Build() EngineError {
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   eb.context,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ErrorHandler logs failed requests and writes the error envelope.
type ErrorHandler struct {
	log zerolog.Logger
}

func NewErrorHandler(log zerolog.Logger) *ErrorHandler {
	return &ErrorHandler{log: log}
}

// HandleError writes err. Store misses become 404 not_solved, context
// deadlines 504 timeout, everything else status.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error, status int) {
	var engineErr EngineError
	switch {
	case errors.As(err, &engineErr):
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
		engineErr = eh.build(r, ErrTypeNotSolved, "nothing stored yet; run the dealer and solve commands first").WithCause(err).Build()
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		engineErr = eh.build(r, ErrTypeTimeout, "request timed out").Build()
	default:
		engineErr = eh.build(r, ErrTypeInternal, err.Error()).Build()
	}
	eh.logError(r, engineErr, status)
	eh.writeErrorResponse(w, status, engineErr)
}

// HandleValidationError rejects a bad query or path parameter.
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	engineErr := eh.build(r, ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithContext("field", field).
		Build()
	eh.logError(r, engineErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, engineErr)
}

// HandleNotFound reports a well-formed query with no matching cell.
func (eh *ErrorHandler) HandleNotFound(w http.ResponseWriter, r *http.Request, message string) {
	engineErr := eh.build(r, ErrTypeNotFound, message).Build()
	eh.logError(r, engineErr, http.StatusNotFound)
	eh.writeErrorResponse(w, http.StatusNotFound, engineErr)
}

func (eh *ErrorHandler) build(r *http.Request, errType, message string) *ErrorBuilder {
	return NewError(errType, message).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method)
}

func (eh *ErrorHandler) logError(r *http.Request, engineErr EngineError, status int) {
	category := GetErrorCategory(engineErr.Type)
	ev := eh.log.Error()
	if category == CategoryValidation || category == CategoryData {
		ev = eh.log.Warn()
	}
	ev.Str("op", "api_operation").
		Str("type", engineErr.Type).
		Str("category", string(category)).
		Int("status", status).
		Str("request_id", engineErr.RequestID).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_ip", r.RemoteAddr).
		Fields(engineErr.Context).
		Msg(engineErr.Message)
}

func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, engineErr EngineError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(engineErr); err != nil {
		eh.log.Error().Err(err).Msg("encode error response")
	}
}

// RecoveryHandler turns a handler panic into a 500 envelope.
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				eh.log.Error().
					Str("op", "api_operation").
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Interface("panic", rvr).
					Msg("panic recovered")

				engineErr := eh.build(r, ErrTypeInternal, "Internal server error").
					WithContext("panic", fmt.Sprintf("%v", rvr)).
					Build()
				eh.writeErrorResponse(w, http.StatusInternalServerError, engineErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
