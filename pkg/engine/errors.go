package engine

import (
	"errors"
	"fmt"
)

// Stable error codes the HTTP boundary maps to 4xx responses.
const (
	CodePostcodeMissing     = "postcode_missing"
	CodePostcodeInvalid     = "postcode_invalid"
	CodeStoreNotFound       = "store_not_found"
	CodeNoShippingMethods   = "no_shipping_methods"
	CodeNoFulfillableMethod = "no_fulfillable_methods"
	CodeDateMissing         = "nominated_date_missing"
	CodeDateInvalid         = "nominated_date_invalid"
	CodeDatePast            = "nominated_date_past"
	CodeDateUnavailable     = "nominated_date_unavailable"
)

// ErrNotFound is returned by Datasource implementations when an entity does
// not exist. The aggregator maps a missing store to CodeStoreNotFound.
var ErrNotFound = errors.New("not found")

// AggregationError is an expected, user-facing failure of a window or rate
// computation. The boundary maps it to a 4xx response and never retries.
type AggregationError struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AggregationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AggregationError) Unwrap() error {
	return e.Cause
}

// Is matches AggregationErrors by code.
func (e *AggregationError) Is(target error) bool {
	t, ok := target.(*AggregationError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewAggregationError creates an AggregationError with a stable code.
func NewAggregationError(code, message string) *AggregationError {
	return &AggregationError{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *AggregationError) WithCause(err error) *AggregationError {
	e.Cause = err
	return e
}

// AsAggregation extracts an AggregationError from an error chain.
func AsAggregation(err error) (*AggregationError, bool) {
	var aggErr *AggregationError
	if errors.As(err, &aggErr) {
		return aggErr, true
	}
	return nil, false
}
