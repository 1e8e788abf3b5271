// Package apperrors defines the error taxonomy shared by the console's
// session, OTP and lead components.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by where it originated and how callers should react.
type Kind string

const (
	// KindValidation is input rejected locally before any network call.
	KindValidation Kind = "validation"
	// KindAuth covers invalid credentials, expired tokens, OTP mismatch and denied access.
	KindAuth Kind = "auth"
	// KindNotFound is a resource the backend reports as absent.
	KindNotFound Kind = "not_found"
	// KindServer is a 5xx-class backend failure.
	KindServer Kind = "server"
	// KindNetwork is a request that could not complete, including timeouts.
	KindNetwork Kind = "network"
	// KindDecode is a malformed token or an undecryptable OTP payload.
	KindDecode Kind = "decode"
)

// Code names a specific failure inside a Kind.
type Code string

const (
	CodeInvalidInput       Code = "InvalidInput"
	CodeInvalidState       Code = "InvalidState"
	CodeInvalidCredentials Code = "InvalidCredentials"
	CodeNetworkUnavailable Code = "NetworkUnavailable"
	CodeBackendRejected    Code = "BackendRejected"
	CodeOtpMismatch        Code = "OtpMismatch"
	CodeOtpDecryptFailed   Code = "OtpDecryptFailed"
	CodeOtpSendFailed      Code = "OtpSendFailed"
	CodeAccessDenied       Code = "AccessDenied"
	CodeTokenExpired       Code = "TokenExpired"
	CodeNotFound           Code = "NotFound"
	CodeServerFailure      Code = "ServerFailure"
)

// Messages shown to users for the common backend failure classes.
const (
	MsgServer  = "Server error. Please try again later."
	MsgNetwork = "Network error. Please check your connection and try again."
)

// Error is the concrete error type carried through the console.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Code so sentinel comparisons work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && (t.Kind == "" || t.Kind == e.Kind)
}

// Retryable reports whether repeating the same idempotent request may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindServer
}

func New(kind Kind, code Code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code Code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Sentinels for errors.Is checks.
var (
	ErrOtpMismatch        = New(KindAuth, CodeOtpMismatch, "The code you entered is incorrect")
	ErrInvalidCredentials = New(KindAuth, CodeInvalidCredentials, "Invalid mobile number")
	ErrNetworkUnavailable = New(KindNetwork, CodeNetworkUnavailable, MsgNetwork)
	ErrTokenExpired       = New(KindAuth, CodeTokenExpired, "Unauthorized: Invalid or expired token")
	ErrAccessDenied       = New(KindAuth, CodeAccessDenied, "You do not have access to the CRM")
)

func Validation(message string) *Error {
	return New(KindValidation, CodeInvalidInput, message)
}

func InvalidState(message string) *Error {
	return New(KindValidation, CodeInvalidState, message)
}

func BackendRejected(message string) *Error {
	return New(KindAuth, CodeBackendRejected, message)
}

func OtpSendFailed(message string, err error) *Error {
	return Wrap(KindServer, CodeOtpSendFailed, message, err)
}

func OtpDecryptFailed(err error) *Error {
	return Wrap(KindDecode, CodeOtpDecryptFailed, "Could not read the one-time code", err)
}

func NetworkUnavailable(err error) *Error {
	return Wrap(KindNetwork, CodeNetworkUnavailable, MsgNetwork, err)
}

// From returns err as an *Error, classifying unknown errors as server failures.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(KindServer, CodeServerFailure, MsgServer, err)
}

// KindOf returns the Kind of err, or "" when err is nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}
