package rpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/layer-3/chainauth/core"
)

// Standard JSON-RPC 2.0 error codes. -32000 to -32099 are reserved for
// implementation defined server errors.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerErrorMin = -32099
	CodeServerErrorMax = -32000
)

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func rpcErrorName(code int) string {
	switch {
	case code == CodeParseError:
		return "parse error"
	case code == CodeInvalidRequest:
		return "invalid request"
	case code == CodeMethodNotFound:
		return "method not found"
	case code == CodeInvalidParams:
		return "invalid params"
	case code == CodeInternalError:
		return "internal error"
	case code >= CodeServerErrorMin && code <= CodeServerErrorMax:
		return "server error"
	default:
		return "rpc error"
	}
}

func newRPCError(e *jsonRPCError) *core.Error {
	code := core.CodeRPCError
	if strings.Contains(strings.ToLower(e.Message), "syncing") {
		code = core.CodeNodeSyncing
	}
	err := core.NewError(core.KindRPC, code, e.Message, nil)
	if err.Message == "" {
		err.Message = rpcErrorName(e.Code)
	}
	err.RPCCode = e.Code
	return err
}

func newHTTPError(status int) *core.Error {
	code := core.CodeHTTPError
	switch {
	case status == http.StatusTooManyRequests:
		code = core.CodeRateLimited
	case status >= 500:
		code = core.CodeServerError
	}
	err := core.NewError(core.KindHTTP, code, http.StatusText(status), nil)
	err.HTTPStatus = status
	return err
}

// classifyTransportError maps an http.Client error. Per-attempt timeouts are
// network errors so they trigger failover.
func classifyTransportError(err error) *core.Error {
	var (
		dnsErr      *net.DNSError
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidCert x509.CertificateInvalidError
		recordErr   tls.RecordHeaderError
	)
	switch {
	case errors.As(err, &dnsErr):
		return core.NewError(core.KindNetwork, core.CodeDNSError, "could not resolve endpoint", err)
	case errors.As(err, &certErr), errors.As(err, &unknownAuth), errors.As(err, &hostErr),
		errors.As(err, &invalidCert), errors.As(err, &recordErr):
		return core.NewError(core.KindNetwork, core.CodeSSLError, "tls handshake failed", err)
	case errors.Is(err, context.DeadlineExceeded):
		return core.NewError(core.KindNetwork, core.CodeNetworkError, "request timed out", err)
	default:
		return core.NewError(core.KindNetwork, core.CodeNetworkError, "request failed", err)
	}
}

func allEndpointsFailed(n int, last error) *core.Error {
	return core.NewError(core.KindNetwork, core.CodeAllEndpointsFailed,
		fmt.Sprintf("all %d endpoints failed", n), last)
}
