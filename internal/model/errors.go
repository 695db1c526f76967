package model

import (
	"errors"
	"fmt"
)

var (
	// ErrRoutingMiss marks a payload whose channel/type pairing is not
	// routed anywhere. Callers drop it without logging.
	ErrRoutingMiss = errors.New("routing miss")

	// ErrMissingValue is returned when a required value is absent.
	ErrMissingValue = errors.New("missing value")

	// ErrNotNumeric is returned when a value cannot be read as a finite number.
	ErrNotNumeric = errors.New("not numeric")
)

// DecodeError reports a payload that could not be parsed.
type DecodeError struct {
	Channel string
	Layer   int // 1 or 2 for JSON layers, 3 when a third encoded layer was found
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (layer %d): %v", e.Channel, e.Layer, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InvalidFieldError reports a missing or non-numeric required field. The
// affected update is dropped and prior state is kept.
type InvalidFieldError struct {
	Kind  Kind
	Key   string // symbol or client order id, may be empty
	Field string
	Value string
	Err   error
}

func (e *InvalidFieldError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("invalid %s: field %s=%q: %v", e.Kind, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s %s: field %s=%q: %v", e.Kind, e.Key, e.Field, e.Value, e.Err)
}

func (e *InvalidFieldError) Unwrap() error { return e.Err }

// InvalidQuoteError is the InvalidFieldError raised by ApplyQuote.
type InvalidQuoteError struct {
	Field *InvalidFieldError
}

func (e *InvalidQuoteError) Error() string { return e.Field.Error() }

func (e *InvalidQuoteError) Unwrap() error { return e.Field }

// TransportError reports a connection-scoped failure of the pub/sub
// transport. It triggers the reconnect path of the subscriber.
type TransportError struct {
	Op   string // dial, subscribe, receive
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// OutboundRequestError reports a failed call to the external provider. It is
// returned to the caller only and never retried.
type OutboundRequestError struct {
	Method string
	URL    string
	Status int // 0 when no response was received
	Body   string
	Err    error
}

func (e *OutboundRequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *OutboundRequestError) Unwrap() error { return e.Err }
