package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMITED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Marketplace failure taxonomy.
const (
	CodeInsufficientStock   Code = "INSUFFICIENT_STOCK"
	CodeCodePoolExhausted   Code = "CODE_POOL_EXHAUSTED"
	CodeOverAllocatedGift   Code = "OVER_ALLOCATED_GIFT"
	CodeGatewayUnavailable  Code = "GATEWAY_UNAVAILABLE"
	CodeCodeNotFound        Code = "CODE_NOT_FOUND"
	CodeCodeAlreadyUsed     Code = "CODE_ALREADY_USED"
	CodeNotAuthorized       Code = "NOT_AUTHORIZED"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodeInvalidListing      Code = "INVALID_LISTING"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// Actionable codes expose their own message to callers.
	Actionable bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true, Actionable: true},
	CodeUnauthorized:  {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
	CodeForbidden:     {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
	CodeNotFound:      {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found", Actionable: true},
	CodeConflict:      {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected", Actionable: true},
	CodeStateConflict: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true, Actionable: true},
	CodeIdempotency:   {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true, Actionable: true},
	CodeRateLimit:     {HTTPStatus: http.StatusTooManyRequests, Retryable: true, PublicMessage: "too many requests", Actionable: true},
	CodeInternal:      {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
	CodeDependency:    {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},

	CodeInsufficientStock:   {HTTPStatus: http.StatusConflict, PublicMessage: "insufficient stock", DetailsAllowed: true, Actionable: true},
	CodeCodePoolExhausted:   {HTTPStatus: http.StatusConflict, PublicMessage: "no codes available", DetailsAllowed: true, Actionable: true},
	CodeOverAllocatedGift:   {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "gift quantities exceed purchased quantity", DetailsAllowed: true, Actionable: true},
	CodeGatewayUnavailable:  {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "payment provider unavailable"},
	CodeCodeNotFound:        {HTTPStatus: http.StatusNotFound, PublicMessage: "code not found", Actionable: true},
	CodeCodeAlreadyUsed:     {HTTPStatus: http.StatusConflict, PublicMessage: "code already used", Actionable: true},
	CodeNotAuthorized:       {HTTPStatus: http.StatusForbidden, PublicMessage: "not authorized for this code"},
	CodeConcurrencyConflict: {HTTPStatus: http.StatusConflict, Retryable: true, PublicMessage: "concurrent update detected, retry"},
	CodeInvalidListing:      {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "listing unavailable", DetailsAllowed: true, Actionable: true},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
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
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost typed error in the chain.
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

// IsCode reports whether the outermost typed error carries code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// CodeOf falls back to CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}
