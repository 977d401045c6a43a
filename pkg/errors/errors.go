package errors

import (
	"errors"
	"fmt"
)

// Kind classifies errors for reporting and for the Group error bucket.
type Kind string

const (
	KindNetwork       Kind = "network"
	KindNotFound      Kind = "not_found"
	KindRateLimited   Kind = "rate_limited"
	KindExtraction    Kind = "extraction"
	KindPrivateAccess Kind = "private_access"
	KindLogin         Kind = "login"
	KindAuthRequired  Kind = "auth_required"
	KindDownload      Kind = "download"
	KindFilter        Kind = "filter"
	KindUnknown       Kind = "unknown"
)

// ExtractionError indicates that the expected data could not be extracted
// from an otherwise successful HTTP response.
type ExtractionError struct {
	Message string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract data from response (message: %q)", e.Message)
}

// PrivateAccessError indicates the requested data belongs to a private
// profile the current session is not permitted to view.
type PrivateAccessError struct{}

func (e *PrivateAccessError) Error() string {
	return "the user profile is private and not followed by you"
}

// RateLimitedError indicates the remote service returned 429 Too Many Requests.
type RateLimitedError struct{}

func (e *RateLimitedError) Error() string {
	return "(429) too many requests: rate limited by Instagram"
}

// NotFoundError indicates the remote service returned 404 Not Found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message == "" {
		return "(404) nothing found"
	}
	return "(404) " + e.Message
}

// LoginError indicates an authentication attempt was rejected.
// UserExists is false when the payload signalled that no such user exists,
// which lets callers distinguish a bad username from a wrong password.
type LoginError struct {
	Message    string
	UserExists bool
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("failed to log in (message: %q)", e.Message)
}

// TwoFactorRequiredError is a control-flow signal raised by Login when the
// account has two-factor authentication enabled. The caller should prompt
// for the security code and call Session.TwoFactorLogin.
type TwoFactorRequiredError struct {
	ObfuscatedPhone string
}

func (e *TwoFactorRequiredError) Error() string {
	return "two-factor authentication is required"
}

// CheckpointRequiredError is a control-flow signal raised by Login when the
// remote service demands an out-of-band checkpoint challenge. The caller
// should call Session.CheckpointLogin.
type CheckpointRequiredError struct {
	URL string
}

func (e *CheckpointRequiredError) Error() string {
	return "checkpoint challenge solving is required"
}

// AuthenticationRequiredError indicates an operation that needs an
// authenticated session was called on an anonymous one.
type AuthenticationRequiredError struct{}

func (e *AuthenticationRequiredError) Error() string {
	return "login is required in order to perform this action"
}

// DownloadError wraps a media download failure with the source URL attached.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed: %v (url: %q)", e.Err, e.URL)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// AttributeError indicates a filter expression referenced an attribute the
// target entity does not expose on its informational whitelist.
type AttributeError struct {
	Entity string
	Name   string
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("%s has no info attribute %q", e.Entity, e.Name)
}

// NetworkError wraps a transient transport-level failure (timeout,
// connection refused). It is the only class the query engine retries.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// KindOf maps an error to its Kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, new(*NotFoundError)):
		return KindNotFound
	case errors.As(err, new(*RateLimitedError)):
		return KindRateLimited
	case errors.As(err, new(*ExtractionError)):
		return KindExtraction
	case errors.As(err, new(*PrivateAccessError)):
		return KindPrivateAccess
	case errors.As(err, new(*TwoFactorRequiredError)),
		errors.As(err, new(*CheckpointRequiredError)),
		errors.As(err, new(*LoginError)):
		return KindLogin
	case errors.As(err, new(*AuthenticationRequiredError)):
		return KindAuthRequired
	case errors.As(err, new(*DownloadError)):
		return KindDownload
	case errors.As(err, new(*AttributeError)):
		return KindFilter
	case errors.As(err, new(*NetworkError)):
		return KindNetwork
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether the query engine should retry after err.
// Only transient network failures are retried; protocol errors (not found,
// rate limited, extraction, private access) and auth-flow signals are not.
func IsRetryable(err error) bool {
	return KindOf(err) == KindNetwork
}
