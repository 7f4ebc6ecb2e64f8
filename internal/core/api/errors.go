package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/davidespo/rules-engine/internal/rules"
	"github.com/davidespo/rules-engine/internal/types"
)

// Request validation errors.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrBatchTooLarge  = errors.New("batch size exceeds maximum")
)

// Code maps a service error to a gRPC status code.
// Validation and compile errors map to INVALID_ARGUMENT.
// Rule source failures map to UNAVAILABLE.
// Context timeouts map to DEADLINE_EXCEEDED.
func Code(err error) codes.Code {
	var compileErr *rules.CompileError
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrBatchTooLarge),
		errors.Is(err, types.ErrMissingRecordID),
		errors.Is(err, types.ErrUnsupportedValue),
		errors.As(err, &compileErr):
		return codes.InvalidArgument
	case errors.Is(err, types.ErrRuleNotFound):
		return codes.NotFound
	case errors.Is(err, ErrRuleSource):
		return codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// StatusError converts err to a gRPC status error.
func StatusError(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(Code(err), err.Error())
}

// HTTPStatus maps a service error to an HTTP status code.
func HTTPStatus(err error) int {
	switch Code(err) {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		// nginx's "client closed request"
		return 499
	default:
		return http.StatusInternalServerError
	}
}
