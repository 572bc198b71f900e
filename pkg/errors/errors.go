package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeStateConflict       Code = "STATE_CONFLICT"
	CodeDataAccess          Code = "DATA_ACCESS_ERROR"
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	CodeProviderRejected    Code = "PROVIDER_REJECTED"
	CodeInvariant           Code = "INVARIANT_VIOLATION"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Metadata describes how callers should react to a coded error. Retryable
// means the next scheduled run may succeed without intervention; Alert means
// operators should be paged because a rerun alone will not fix it.
type Metadata struct {
	Retryable      bool
	Alert          bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		Retryable:      false,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeNotFound: {
		Retryable:     false,
		PublicMessage: "resource not found",
	},
	CodeConflict: {
		Retryable:     false,
		PublicMessage: "conflict detected",
	},
	CodeStateConflict: {
		Retryable:      true,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
	},
	CodeDataAccess: {
		Retryable:      true,
		Alert:          true,
		PublicMessage:  "data store unavailable",
		DetailsAllowed: true,
	},
	CodeProviderUnavailable: {
		Retryable:      true,
		PublicMessage:  "disbursement provider unavailable",
		DetailsAllowed: true,
	},
	CodeProviderRejected: {
		Retryable:      true,
		Alert:          true,
		PublicMessage:  "disbursement batch rejected",
		DetailsAllowed: true,
	},
	CodeInvariant: {
		Retryable:      false,
		Alert:          true,
		PublicMessage:  "computation invariant violated",
		DetailsAllowed: true,
	},
	CodeInternal: {
		Retryable:     true,
		PublicMessage: "internal error",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// IsRetryable reports whether a rerun on the next schedule may clear the error.
func IsRetryable(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.Code()).Retryable
}

// ShouldAlert reports whether operators need to intervene.
func ShouldAlert(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.Code()).Alert
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
