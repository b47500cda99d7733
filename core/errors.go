package core

import (
	"errors"
	"fmt"
	"time"
)

// Auth service errors.
var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidChallenge = errors.New("invalid challenge")
	ErrNonceReused      = errors.New("nonce has already been used")
	ErrAddressMismatch  = errors.New("address does not match challenge")

	ErrInvalidTransition = errors.New("invalid connection state transition")
)

// Kind groups error codes into the families callers usually branch on.
type Kind string

const (
	KindConnection Kind = "connection"
	KindSigning    Kind = "signing"
	KindSession    Kind = "session"
	KindChain      Kind = "chain"
	KindNetwork    Kind = "network"
	KindRPC        Kind = "rpc"
	KindHTTP       Kind = "http"
)

// Code is the machine readable error code.
type Code string

const (
	CodeWalletNotInstalled    Code = "wallet_not_installed"
	CodeConnectionTimeout     Code = "connection_timeout"
	CodeUserRejected          Code = "user_rejected"
	CodePairingFailed         Code = "pairing_failed"
	CodeSigningFailed         Code = "signing_failed"
	CodeUnsupportedCapability Code = "unsupported_capability"
	CodeOperationInProgress   Code = "operation_in_progress"

	CodeSessionExpired       Code = "session_expired"
	CodeSessionInvalid       Code = "session_invalid"
	CodeSessionRestoreFailed Code = "session_restore_failed"

	CodeChainNotSupported Code = "chain_not_supported"
	CodeChainSwitchFailed Code = "chain_switch_failed"
	CodeChainNotAdded     Code = "chain_not_added"

	CodeNetworkError Code = "network_error"
	CodeDNSError     Code = "dns_error"
	CodeSSLError     Code = "ssl_error"

	CodeRPCError    Code = "rpc_error"
	CodeNodeSyncing Code = "node_syncing"

	CodeHTTPError   Code = "http_error"
	CodeRateLimited Code = "rate_limited"
	CodeServerError Code = "server_error"

	CodeAllEndpointsFailed Code = "all_endpoints_failed"
)

// RetryPolicy is attached to every Error so callers can decide whether and
// how to retry without inspecting the code.
type RetryPolicy struct {
	Retryable  bool
	Delay      time.Duration
	MaxRetries int
}

var (
	noRetry      = RetryPolicy{}
	defaultRetry = RetryPolicy{Retryable: true, Delay: 2 * time.Second, MaxRetries: 3}
)

var retryPolicies = map[Code]RetryPolicy{
	CodeRateLimited:       {Retryable: true, Delay: 5 * time.Second, MaxRetries: 5},
	CodeNodeSyncing:       {Retryable: true, Delay: 10 * time.Second, MaxRetries: 2},
	CodeNetworkError:      defaultRetry,
	CodeDNSError:          defaultRetry,
	CodeServerError:       defaultRetry,
	CodeConnectionTimeout: defaultRetry,
	CodePairingFailed:     defaultRetry,
}

// DefaultRetryPolicy returns the policy associated with code.
func DefaultRetryPolicy(code Code) RetryPolicy {
	if p, ok := retryPolicies[code]; ok {
		return p
	}
	return noRetry
}

// Error is the typed error raised by the transport and wallet layers.
// Signature verification never returns one, it reports a bool.
type Error struct {
	Kind       Kind
	Code       Code
	Message    string
	RPCCode    int // JSON-RPC error code, set for KindRPC
	HTTPStatus int // set for KindHTTP
	Retry      RetryPolicy
	Err        error
}

// NewError builds an Error with the default retry policy of code.
func NewError(kind Kind, code Code, msg string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: msg,
		Retry:   DefaultRetryPolicy(code),
		Err:     cause,
	}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	switch {
	case e.RPCCode != 0:
		msg = fmt.Sprintf("%s (code %d)", msg, e.RPCCode)
	case e.HTTPStatus != 0:
		msg = fmt.Sprintf("%s (status %d)", msg, e.HTTPStatus)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, and by kind when the target sets one.
// This lets the package level sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

// IsRetryable reports whether err carries a retryable policy.
func (e *Error) IsRetryable() bool { return e.Retry.Retryable }

// Sentinels for errors.Is. Their Kind is left empty so they match any kind
// carrying the code.
var (
	ErrWalletNotInstalled    = &Error{Code: CodeWalletNotInstalled}
	ErrConnectionTimeout     = &Error{Code: CodeConnectionTimeout}
	ErrUserRejected          = &Error{Code: CodeUserRejected}
	ErrPairingFailed         = &Error{Code: CodePairingFailed}
	ErrSigningFailed         = &Error{Code: CodeSigningFailed}
	ErrUnsupportedCapability = &Error{Code: CodeUnsupportedCapability}
	ErrOperationInProgress   = &Error{Code: CodeOperationInProgress}
	ErrSessionExpired        = &Error{Code: CodeSessionExpired}
	ErrSessionInvalid        = &Error{Code: CodeSessionInvalid}
	ErrChainNotSupported     = &Error{Code: CodeChainNotSupported}
	ErrChainSwitchFailed     = &Error{Code: CodeChainSwitchFailed}
	ErrChainNotAdded         = &Error{Code: CodeChainNotAdded}
	ErrNetwork               = &Error{Code: CodeNetworkError}
	ErrRPC                   = &Error{Code: CodeRPCError}
	ErrNodeSyncing           = &Error{Code: CodeNodeSyncing}
	ErrHTTP                  = &Error{Code: CodeHTTPError}
	ErrRateLimited           = &Error{Code: CodeRateLimited}
	ErrServerError           = &Error{Code: CodeServerError}
	ErrAllEndpointsFailed    = &Error{Code: CodeAllEndpointsFailed}
)

// AsError extracts the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// RetryPolicyOf returns the retry policy of err. Errors that are not *Error
// are not retried.
func RetryPolicyOf(err error) RetryPolicy {
	if e, ok := AsError(err); ok {
		return e.Retry
	}
	return noRetry
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	return RetryPolicyOf(err).Retryable
}
