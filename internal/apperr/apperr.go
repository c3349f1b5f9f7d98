// Package apperr defines the error taxonomy shared by the payment flows and
// maps it onto HTTP statuses at the request boundary.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrGatewayUnreachable    = errors.New("payment gateway unreachable")
	ErrDuplicateOrder        = errors.New("order id already exists")
	ErrSubscriptionCancelled = errors.New("subscription already cancelled")
)

// ValidationError is bad or missing caller input. No outbound call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// GatewayRejectedError carries the gateway's own failure code and message.
type GatewayRejectedError struct {
	Code    string
	Message string
}

func (e *GatewayRejectedError) Error() string {
	if e.Code == "" {
		return "gateway rejected: " + e.Message
	}
	return fmt.Sprintf("gateway rejected (%s): %s", e.Code, e.Message)
}

// PersistenceError is a store failure. After a successful gateway call it
// marks a record the gateway knows about but the store does not.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

func Kind(err error) string {
	var (
		ve *ValidationError
		ge *GatewayRejectedError
		pe *PersistenceError
	)
	switch {
	case err == nil:
		return ""

	case errors.As(err, &ve):
		return "validation"

	case errors.As(err, &ge):
		return "gateway_rejected"

	case errors.Is(err, ErrNotFound):
		return "not_found"

	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"

	case errors.Is(err, ErrDuplicateOrder):
		return "duplicate_order"

	case errors.Is(err, ErrSubscriptionCancelled):
		return "subscription_cancelled"

	case errors.Is(err, ErrGatewayUnreachable), errors.Is(err, context.DeadlineExceeded):
		return "gateway_unreachable"

	case errors.As(err, &pe):
		return "persistence"

	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch Kind(err) {
	case "":
		return http.StatusOK
	case "validation", "gateway_rejected":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "unauthorized":
		return http.StatusUnauthorized
	case "duplicate_order", "subscription_cancelled":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text shown to the caller. Internal failures never leak
// their cause.
func PublicMessage(err error) string {
	var (
		ve *ValidationError
		ge *GatewayRejectedError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &ge):
		return ge.Message
	case errors.Is(err, ErrNotFound):
		return "order not found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrDuplicateOrder), errors.Is(err, ErrSubscriptionCancelled):
		return err.Error()
	case Kind(err) == "gateway_unreachable":
		return "payment gateway is unavailable, please retry later"
	default:
		return "internal server error"
	}
}

// Code returns the gateway error code when err is a rejection.
func Code(err error) string {
	var ge *GatewayRejectedError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}
