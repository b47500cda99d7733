package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/chainauth/core"
	"github.com/layer-3/chainauth/internal/log"
	"github.com/layer-3/chainauth/rpc"
)

// DefaultProxyMethods are the read-only methods plus raw transaction
// submission. Anything touching node keys is refused.
var DefaultProxyMethods = []string{
	"eth_chainId",
	"net_version",
	"eth_blockNumber",
	"eth_gasPrice",
	"eth_maxPriorityFeePerGas",
	"eth_feeHistory",
	"eth_getBalance",
	"eth_getCode",
	"eth_getTransactionCount",
	"eth_getTransactionByHash",
	"eth_getTransactionReceipt",
	"eth_getBlockByNumber",
	"eth_getBlockByHash",
	"eth_getLogs",
	"eth_call",
	"eth_estimateGas",
	"eth_sendRawTransaction",
}

type proxyRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method" binding:"required"`
	Params  json.RawMessage `json:"params"`
}

type proxyError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type proxyResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *proxyError     `json:"error,omitempty"`
}

// RPCProxy forwards JSON-RPC requests of authenticated users to the
// configured chain clients, with their failover and caching.
type RPCProxy struct {
	clients map[string]*rpc.Client
	allowed map[string]struct{}
}

// NewRPCProxy builds a proxy over clients keyed by chain name. Empty methods
// means DefaultProxyMethods.
func NewRPCProxy(clients map[string]*rpc.Client, methods []string) *RPCProxy {
	if len(methods) == 0 {
		methods = DefaultProxyMethods
	}
	allowed := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		allowed[m] = struct{}{}
	}
	return &RPCProxy{clients: clients, allowed: allowed}
}

// Handle serves POST /api/chains/:chain/rpc
func (p *RPCProxy) Handle(c *gin.Context) {
	client, ok := p.clients[c.Param("chain")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown chain"})
		return
	}

	var req proxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, proxyResponse{
			JSONRPC: "2.0",
			ID:      json.RawMessage("null"),
			Error:   &proxyError{Code: rpc.CodeParseError, Message: "invalid request"},
		})
		return
	}
	if len(req.ID) == 0 {
		req.ID = json.RawMessage("null")
	}
	resp := proxyResponse{JSONRPC: "2.0", ID: req.ID}

	if _, ok := p.allowed[req.Method]; !ok {
		resp.Error = &proxyError{Code: rpc.CodeMethodNotFound, Message: "method not allowed"}
		c.JSON(http.StatusOK, resp)
		return
	}

	var params any
	if len(req.Params) > 0 {
		params = req.Params
	}
	result, err := client.Call(c.Request.Context(), req.Method, params, true)
	if err != nil {
		log.FromContext(c.Request.Context()).Warn("proxied call failed", "chain", c.Param("chain"), "rpc_method", req.Method, "error", err)
		resp.Error = toProxyError(err)
		c.JSON(http.StatusBadGateway, resp)
		return
	}

	resp.Result = result
	c.JSON(http.StatusOK, resp)
}

// toProxyError reports the node's own JSON-RPC error when there was one,
// otherwise a generic server error tagged with the failure code.
func toProxyError(err error) *proxyError {
	var e *core.Error
	for cause := err; errors.As(cause, &e); cause = e.Err {
		if e.Kind == core.KindRPC && e.RPCCode != 0 {
			return &proxyError{Code: e.RPCCode, Message: e.Message}
		}
		if e.Err == nil {
			break
		}
	}
	return &proxyError{Code: rpc.CodeInternalError, Message: "upstream unavailable", Data: core.CodeOf(err)}
}
