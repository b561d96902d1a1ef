package domain

import (
	"fmt"
	"strings"
)

// Error types for the refresh pipeline. Errors below the refresh boundary
// (token refresh, per-value computation) stay inside their component; errors
// at the boundary surface to the host as a single failed-refresh cause.

// ErrorCodeJWTExpired is the Kraken error code signalling an expired JWT.
const ErrorCodeJWTExpired = "KT-CT-1139"

// GraphQLError is one entry of a GraphQL response's errors array.
type GraphQLError struct {
	Message    string                 `json:"message"`
	Extensions GraphQLErrorExtensions `json:"extensions"`
}

// GraphQLErrorExtensions carries the provider's machine-readable error code.
type GraphQLErrorExtensions struct {
	ErrorCode string `json:"errorCode"`
}

// IsTokenExpirySignal reports whether this error indicates an expired
// session token, by message substring or by provider error code.
func (e GraphQLError) IsTokenExpirySignal() bool {
	return strings.Contains(e.Message, "JWT has expired") ||
		e.Extensions.ErrorCode == ErrorCodeJWTExpired
}

// ErrAuth indicates bad credentials, an unreachable auth endpoint, or a
// malformed token payload. Fatal during initial setup; on later refreshes it
// surfaces as a failed refresh and the next interval retries.
type ErrAuth struct {
	Reason string
	Err    error
}

func (e *ErrAuth) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *ErrAuth) Unwrap() error {
	return e.Err
}

// ErrAccountNotFound indicates the viewer query lacked the expected account
// field after the single expiry retry.
type ErrAccountNotFound struct {
	Detail string
}

func (e *ErrAccountNotFound) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("account number not found: %s", e.Detail)
	}
	return "account number not found in API response"
}

// ErrDataFetch indicates a GraphQL-level failure of the comprehensive query:
// either non-expiry provider errors, or expiry persisting after the single
// reauthenticate-and-retry.
type ErrDataFetch struct {
	Operation string
	Errors    []GraphQLError
	Err       error
}

func (e *ErrDataFetch) Error() string {
	if len(e.Errors) > 0 {
		msgs := make([]string, len(e.Errors))
		for i, ge := range e.Errors {
			msgs[i] = ge.Message
		}
		return fmt.Sprintf("data fetch failed [%s]: %s", e.Operation, strings.Join(msgs, "; "))
	}
	if e.Err != nil {
		return fmt.Sprintf("data fetch failed [%s]: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("data fetch failed [%s]", e.Operation)
}

func (e *ErrDataFetch) Unwrap() error {
	return e.Err
}

// ErrNetwork indicates a transport-level failure. Not retried locally; the
// coordinator reports it and the next interval tries again.
type ErrNetwork struct {
	Operation string
	Err       error
}

func (e *ErrNetwork) Error() string {
	return fmt.Sprintf("network error [%s]: %v", e.Operation, e.Err)
}

func (e *ErrNetwork) Unwrap() error {
	return e.Err
}

// ErrValueUnavailable indicates one sensor's computation failed (missing
// field, empty list, wrong shape). Isolated to that sensor; it never fails
// the refresh or the other sensors.
type ErrValueUnavailable struct {
	Sensor string
	Reason string
}

func (e *ErrValueUnavailable) Error() string {
	return fmt.Sprintf("value unavailable [%s]: %s", e.Sensor, e.Reason)
}
