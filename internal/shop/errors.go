package shop

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an expected value is absent from a response.
var ErrNotFound = errors.New("not found")

// NetworkError is a transport or connection failure, including timeouts.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: failed to send request: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BadStatusError is a non-2xx response. Body is empty when it was
// deliberately suppressed (403 challenge pages).
type BadStatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *BadStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: bad status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: bad status %d; text=%q", e.Op, e.Status, e.Body)
}

// MalformedResponseError means the body did not have the expected shape.
type MalformedResponseError struct {
	Op  string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: failed to deserialize response: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// BusinessRejectionError is a well-formed response that reports failure.
type BusinessRejectionError struct {
	Op     string
	Reason string
}

func (e *BusinessRejectionError) Error() string {
	return fmt.Sprintf("%s: bad response: %s", e.Op, e.Reason)
}
