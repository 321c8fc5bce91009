package aiclient

import (
	"errors"

	"github.com/MrWong99/oratio/pkg/provider/llm"
)

// ErrorKind classifies AI call failures.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindTimeout
	KindCanceled
	KindUnavailable
	KindMalformed
	KindInvalidRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	case KindUnavailable:
		return "unavailable"
	case KindMalformed:
		return "malformed"
	case KindInvalidRequest:
		return "invalid_request"
	}
	return "unknown"
}

// Error is the failure type of every AI call.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return "aiclient: " + e.Kind.String() + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err when it is an *[Error], else KindTransport.
func KindOf(err error) ErrorKind {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return KindTransport
}

// Result is the outcome of an AI call: a value or an error, never both.
type Result[T any] struct {
	value T
	usage llm.Usage
	err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{value: v} }

// OkWithUsage wraps a successful value with its token usage.
func OkWithUsage[T any](v T, u llm.Usage) Result[T] { return Result[T]{value: v, usage: u} }

// Fail wraps an error. A nil err is replaced so the Result stays failed.
func Fail[T any](err error) Result[T] {
	if err == nil {
		err = errors.New("aiclient: unspecified failure")
	}
	return Result[T]{err: err}
}

// IsOk reports whether the call succeeded.
func (r Result[T]) IsOk() bool { return r.err == nil }

// Get returns the value and error.
func (r Result[T]) Get() (T, error) { return r.value, r.err }

// Err returns the failure, or nil.
func (r Result[T]) Err() error { return r.err }

// Usage returns the token usage of a successful call.
func (r Result[T]) Usage() llm.Usage { return r.usage }

// Or returns the value, or def when the call failed.
func (r Result[T]) Or(def T) T {
	if r.err != nil {
		return def
	}
	return r.value
}
