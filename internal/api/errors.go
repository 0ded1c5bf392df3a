package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/samcharles93/glow/internal/embed"
	"github.com/samcharles93/glow/internal/queue"
	"github.com/samcharles93/glow/internal/registry"
	"github.com/samcharles93/glow/internal/repo"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg   string
	param string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(param, msg string) error {
	return invalidRequestError{msg: msg, param: param}
}

// apiError is an error already mapped onto the OpenAI error envelope.
type apiError struct {
	status int
	body   ResponseError
}

// classify maps a provider error to an HTTP status and error body.
func classify(err error) apiError {
	var (
		inv      invalidRequestError
		delivery *queue.DeliveryError
		tokErr   *embed.TokenizationError
	)
	switch {
	case errors.As(err, &inv):
		return apiError{http.StatusBadRequest, ResponseError{Message: inv.msg, Type: "invalid_request_error", Param: inv.param}}
	case errors.Is(err, registry.ErrModelRequired):
		return apiError{http.StatusBadRequest, ResponseError{Message: err.Error(), Type: "invalid_request_error", Param: "model"}}
	case errors.Is(err, repo.ErrNotFound):
		return apiError{http.StatusNotFound, ResponseError{Message: err.Error(), Type: "not_found_error", Param: "model", Code: "model_not_found"}}
	case errors.As(err, &tokErr):
		// Input the tokenizer rejects is the caller's fault, even though it
		// also stopped the model's worker.
		return apiError{http.StatusBadRequest, ResponseError{Message: tokErr.Error(), Type: "invalid_request_error", Param: "input"}}
	case errors.As(err, &delivery) && delivery.Reason == queue.ReasonAbandoned:
		if errors.Is(err, context.DeadlineExceeded) {
			return apiError{http.StatusGatewayTimeout, ResponseError{Message: err.Error(), Type: "server_error", Code: "timeout"}}
		}
		return apiError{statusClientClosed, ResponseError{Message: err.Error(), Type: "server_error", Code: "cancelled"}}
	case errors.As(err, &delivery), errors.Is(err, registry.ErrClosed):
		return apiError{http.StatusServiceUnavailable, ResponseError{Message: err.Error(), Type: "server_error", Code: "model_unavailable"}}
	default:
		return apiError{http.StatusInternalServerError, ResponseError{Message: err.Error(), Type: "server_error"}}
	}
}

// statusClientClosed is the nginx convention for a caller that went away.
const statusClientClosed = 499
