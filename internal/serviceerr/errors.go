package serviceerr

import (
	"context"
	"errors"
)

// Code classifies an error. The RFC6749 and OpenID Connect codes are the ones an
// identity provider may answer a token request with.
type Code string

const (
	// RFC6749 token errors
	CodeInvalidRequest Code = "invalid_request"
	CodeInvalidClient  Code = "invalid_client"
	CodeInvalidGrant   Code = "invalid_grant"
	CodeInvalidScope   Code = "invalid_scope"
	CodeServerError    Code = "server_error"

	// OpenID Connect authentication errors
	CodeInteractionRequired Code = "interaction_required"
	CodeLoginRequired       Code = "login_required"
	CodeConsentRequired     Code = "consent_required"

	// Custom codes
	CodeUnknown             Code = "unknown"
	CodeNotFound            Code = "not_found"
	CodeNotConfigured       Code = "not_configured"
	CodeRenewalRequired     Code = "renewal_required"
	CodeProviderUnavailable Code = "provider_unavailable"
	CodeMissingAccessToken  Code = "missing_access_token"
	CodeInvalidConfig       Code = "invalid_config"
	CodeNotSignedIn         Code = "not_signed_in"
)

type Error struct {
	Err         Code
	Description string

	cause error
}

var (
	ErrUnknown             = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrNotFound            = &Error{Err: CodeNotFound, Description: "not found"}
	ErrNotConfigured       = &Error{Err: CodeNotConfigured, Description: "session is not configured"}
	ErrRenewalRequired     = &Error{Err: CodeRenewalRequired, Description: "silent renewal is not possible"}
	ErrProviderUnavailable = &Error{Err: CodeProviderUnavailable, Description: "identity provider is unavailable"}
	ErrMissingAccessToken  = &Error{Err: CodeMissingAccessToken, Description: "access token not found in response"}
	ErrInvalidConfig       = &Error{Err: CodeInvalidConfig, Description: "invalid configuration"}
	ErrNotSignedIn         = &Error{Err: CodeNotSignedIn, Description: "no user is signed in"}
)

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports a match for any *Error with the same code, so wrapped and
// freshly built errors compare equal to the predefined ones.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Err == e.Err
}

// RenewalRequired marks a silent acquisition failure that an interactive
// acquisition can resolve.
func RenewalRequired(cause error) error {
	return wrap(CodeRenewalRequired, cause)
}

// ProviderUnavailable marks a failure that no user interaction can resolve.
func ProviderUnavailable(cause error) error {
	return wrap(CodeProviderUnavailable, cause)
}

// FromOAuthCode classifies an error code returned by a token endpoint.
func FromOAuthCode(code string, cause error) error {
	switch Code(code) {
	case CodeInvalidGrant, CodeInvalidScope, CodeInteractionRequired, CodeLoginRequired, CodeConsentRequired:
		return RenewalRequired(cause)
	case CodeServerError, "temporarily_unavailable":
		return ProviderUnavailable(cause)
	default:
		return wrap(Code(code), cause)
	}
}

// IsRenewalRequired decides whether a failed silent acquisition may fall back to
// the interactive flow. Unclassified failures count as renewal required;
// cancellation and unavailable providers do not.
func IsRenewalRequired(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Err == CodeRenewalRequired
	}

	return true
}

func wrap(code Code, cause error) error {
	e := &Error{Err: code, cause: cause}
	if cause != nil {
		e.Description = cause.Error()
	}

	return e
}
