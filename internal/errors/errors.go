// Package errors defines the typed failure taxonomy shared by the order and
// payment services. Every failure crossing an HTTP boundary carries a stable
// Kind and a human-readable message.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of failure.
type Kind string

const (
	KindValidation             Kind = "VALIDATION_ERROR"
	KindUnauthorized           Kind = "UNAUTHORIZED"
	KindNotFound               Kind = "NOT_FOUND"
	KindForbidden              Kind = "FORBIDDEN"
	KindInvalidStateTransition Kind = "INVALID_STATE_TRANSITION"
	KindEmptyCart              Kind = "EMPTY_CART"
	KindProductNotFound        Kind = "PRODUCT_NOT_FOUND"
	KindInsufficientStock      Kind = "INSUFFICIENT_STOCK"
	KindInvalidProductPrice    Kind = "INVALID_PRODUCT_PRICE"
	KindInvalidProductStock    Kind = "INVALID_PRODUCT_STOCK"
	KindUpstreamUnavailable    Kind = "UPSTREAM_UNAVAILABLE"
	KindProviderError          Kind = "PROVIDER_ERROR"
	KindInvalidSignature       Kind = "INVALID_SIGNATURE"
	KindPaymentNotFound        Kind = "PAYMENT_NOT_FOUND"
	KindInternal               Kind = "INTERNAL_ERROR"
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can compare against the sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Field == ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrForbidden              = &Error{Kind: KindForbidden}
	ErrInvalidStateTransition = &Error{Kind: KindInvalidStateTransition}
	ErrEmptyCart              = &Error{Kind: KindEmptyCart}
	ErrInvalidSignature       = &Error{Kind: KindInvalidSignature}
	ErrPaymentNotFound        = &Error{Kind: KindPaymentNotFound}
	ErrUpstreamUnavailable    = &Error{Kind: KindUpstreamUnavailable}
)

// Is and As re-export the standard library helpers so callers need one import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// New creates an unclassified error.
func New(msg string) error { return stderrors.New(msg) }

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to its response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindEmptyCart, KindInvalidSignature:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound, KindProductNotFound, KindPaymentNotFound:
		return http.StatusNotFound
	case KindInvalidStateTransition, KindInsufficientStock:
		return http.StatusConflict
	case KindInvalidProductPrice, KindInvalidProductStock, KindProviderError:
		return http.StatusBadGateway
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func NewValidationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func NewUnauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func NewNotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

func NewForbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NewInvalidStateTransition reports that action is not allowed from the current status.
func NewInvalidStateTransition(from, action string) *Error {
	return &Error{
		Kind:    KindInvalidStateTransition,
		Message: fmt.Sprintf("cannot %s from status %s", action, from),
		Details: map[string]interface{}{"currentStatus": from},
	}
}

func NewEmptyCart() *Error {
	return &Error{Kind: KindEmptyCart, Message: "cart is empty"}
}

func NewProductNotFound(productID string) *Error {
	return &Error{
		Kind:    KindProductNotFound,
		Message: "product not found",
		Details: map[string]interface{}{"productId": productID},
	}
}

func NewInsufficientStock(productTitle string, requested, available int) *Error {
	return &Error{
		Kind:    KindInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for %s", productTitle),
		Details: map[string]interface{}{
			"productTitle": productTitle,
			"requested":    requested,
			"available":    available,
		},
	}
}

// NewInvalidProductPrice reports a product whose price could not be resolved.
// snapshot must already be redacted.
func NewInvalidProductPrice(productID string, snapshot map[string]interface{}) *Error {
	return &Error{
		Kind:    KindInvalidProductPrice,
		Message: "product price could not be resolved",
		Details: map[string]interface{}{"productId": productID, "snapshot": snapshot},
	}
}

// NewInvalidProductStock reports a catalog record without a usable stock level.
func NewInvalidProductStock(productID string) *Error {
	return &Error{
		Kind:    KindInvalidProductStock,
		Message: "product stock could not be resolved",
		Details: map[string]interface{}{"productId": productID},
	}
}

func NewUpstreamUnavailable(service string, err error) *Error {
	return &Error{
		Kind:    KindUpstreamUnavailable,
		Message: service + " is unavailable",
		Details: map[string]interface{}{"service": service},
		Err:     err,
	}
}

func NewProviderError(err error) *Error {
	return &Error{Kind: KindProviderError, Message: "payment provider request failed", Err: err}
}

func NewInvalidSignature() *Error {
	return &Error{Kind: KindInvalidSignature, Message: "payment signature is invalid"}
}

func NewPaymentNotFound(providerOrderID string) *Error {
	return &Error{
		Kind:    KindPaymentNotFound,
		Message: "no pending payment for provider order",
		Details: map[string]interface{}{"providerOrderId": providerOrderID},
	}
}

func NewInternal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}
