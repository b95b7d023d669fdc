package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure for the transport layer
type Kind int

// Error kinds
const (
	KindValidation  Kind = iota + 1 // Bad input, returned verbatim
	KindNotFound                    // Unknown ticket
	KindDatabase                    // Relational store failure
	KindStorage                     // Blob store failure
	KindUnavailable                 // Optional dependency not configured
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindDatabase:
		return "database"
	case KindStorage:
		return "storage"
	case KindUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Error is returned by every service operation that fails.
// Message is safe to show to the caller, Detail is a best-effort
// explanation and Err the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func validationf(msg, detail string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Detail: detail}
}

func notFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func databaseError(err error) *Error {
	return &Error{Kind: KindDatabase, Message: "Database error", Detail: err.Error(), Err: err}
}

func storageError(msg string, err error) *Error {
	return &Error{Kind: KindStorage, Message: msg, Detail: err.Error(), Err: err}
}

func unavailable(msg string) *Error {
	return &Error{Kind: KindUnavailable, Message: msg}
}

// KindOf returns the kind of err, or 0 when err is not a service error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
