package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/chainauth/core"
)

type fakeNode struct {
	*httptest.Server
	calls atomic.Int64
}

// newNode starts a JSON-RPC server answering every request with result.
func newNode(t *testing.T, result string) *fakeNode {
	return newNodeFunc(t, func(w http.ResponseWriter, req request) {
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%s}`, req.ID, result)
	})
}

func newNodeFunc(t *testing.T, fn func(w http.ResponseWriter, req request)) *fakeNode {
	t.Helper()
	n := &fakeNode{}
	n.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		var req request
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fn(w, req)
	}))
	t.Cleanup(n.Close)
	return n
}

func failingNode(t *testing.T, status int) *fakeNode {
	return newNodeFunc(t, func(w http.ResponseWriter, _ request) {
		w.WriteHeader(status)
	})
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoEndpoints)

	_, err = New([]string{"not a url"})
	assert.Error(t, err)

	c, err := New([]string{"http://a.test", "http://b.test"})
	require.NoError(t, err)
	assert.Equal(t, "http://a.test", c.ActiveEndpoint())
}

func TestCall(t *testing.T) {
	var gotMethod string
	var gotParams string
	node := newNodeFunc(t, func(w http.ResponseWriter, req request) {
		gotMethod, gotParams = req.Method, string(req.Params)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":"0x10"}`, req.ID)
	})

	c, err := New([]string{node.URL})
	require.NoError(t, err)

	res, err := c.Call(context.Background(), "eth_getBalance", []any{"0xabc", "latest"}, true)
	require.NoError(t, err)
	assert.JSONEq(t, `"0x10"`, string(res))
	assert.Equal(t, "eth_getBalance", gotMethod)
	assert.JSONEq(t, `["0xabc","latest"]`, gotParams)

	_, err = c.Call(context.Background(), "eth_blockNumber", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "[]", gotParams)
}

func TestCall_Failover(t *testing.T) {
	a := failingNode(t, http.StatusBadGateway)
	b := newNodeFunc(t, func(w http.ResponseWriter, req request) {
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32603,"message":"boom"}}`, req.ID)
	})
	cNode := newNode(t, `"0x2a"`)

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	c, err := New([]string{a.URL, b.URL, cNode.URL}, WithMetrics(metrics), WithName("eth"))
	require.NoError(t, err)

	res, err := c.Call(context.Background(), "eth_getBalance", []any{"0x1"}, false)
	require.NoError(t, err)
	assert.JSONEq(t, `"0x2a"`, string(res))
	assert.Equal(t, cNode.URL, c.ActiveEndpoint())
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Failovers.WithLabelValues("eth")))

	// The pinned endpoint is tried first from now on.
	_, err = c.Call(context.Background(), "eth_getBalance", []any{"0x1"}, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, a.calls.Load())
	assert.EqualValues(t, 1, b.calls.Load())
	assert.EqualValues(t, 2, cNode.calls.Load())
}

func TestCall_FailoverWrapsFromPinned(t *testing.T) {
	a := newNode(t, `"a"`)
	flaky := atomic.Bool{}
	b := newNodeFunc(t, func(w http.ResponseWriter, req request) {
		if flaky.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":"b"}`, req.ID)
	})

	c, err := New([]string{a.URL, b.URL})
	require.NoError(t, err)
	c.current = 1

	res, err := c.Call(context.Background(), "net_peerCount", nil, false)
	require.NoError(t, err)
	assert.JSONEq(t, `"b"`, string(res))

	flaky.Store(true)
	res, err = c.Call(context.Background(), "net_peerCount", nil, false)
	require.NoError(t, err)
	assert.JSONEq(t, `"a"`, string(res))
	assert.Equal(t, a.URL, c.ActiveEndpoint())
}

func TestCall_AllEndpointsFailed(t *testing.T) {
	const timeout = 100 * time.Millisecond

	release := make(chan struct{})
	defer close(release)
	hang := func(w http.ResponseWriter, _ request) {
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
	}
	nodes := []*fakeNode{newNodeFunc(t, hang), newNodeFunc(t, hang), newNodeFunc(t, hang)}
	endpoints := make([]string, len(nodes))
	for i, n := range nodes {
		endpoints[i] = n.URL
	}

	c, err := New(endpoints, WithTimeout(timeout))
	require.NoError(t, err)

	started := time.Now()
	_, err = c.Call(context.Background(), "eth_gasPrice", []any{}, true)
	elapsed := time.Since(started)

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAllEndpointsFailed)
	assert.ErrorIs(t, err, core.ErrNetwork)
	assert.Less(t, elapsed, 3*timeout+200*time.Millisecond)
	for _, n := range nodes {
		assert.EqualValues(t, 1, n.calls.Load())
	}
	assert.Equal(t, endpoints[0], c.ActiveEndpoint())
}

func TestCall_ErrorNormalization(t *testing.T) {
	tcs := []struct {
		name    string
		handler func(w http.ResponseWriter, req request)
		code    core.Code
		rpcCode int
		status  int
	}{
		{
			name:    "rate limited",
			handler: func(w http.ResponseWriter, _ request) { w.WriteHeader(http.StatusTooManyRequests) },
			code:    core.CodeRateLimited,
			status:  http.StatusTooManyRequests,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, _ request) { w.WriteHeader(http.StatusInternalServerError) },
			code:    core.CodeServerError,
			status:  http.StatusInternalServerError,
		},
		{
			name:    "other status",
			handler: func(w http.ResponseWriter, _ request) { w.WriteHeader(http.StatusForbidden) },
			code:    core.CodeHTTPError,
			status:  http.StatusForbidden,
		},
		{
			name: "json-rpc error",
			handler: func(w http.ResponseWriter, req request) {
				fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"the method does not exist"}}`, req.ID)
			},
			code:    core.CodeRPCError,
			rpcCode: CodeMethodNotFound,
		},
		{
			name: "syncing",
			handler: func(w http.ResponseWriter, req request) {
				fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32000,"message":"node is syncing"}}`, req.ID)
			},
			code:    core.CodeNodeSyncing,
			rpcCode: -32000,
		},
		{
			name: "sync in an unrelated message",
			handler: func(w http.ResponseWriter, req request) {
				fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32000,"message":"async call failed"}}`, req.ID)
			},
			code:    core.CodeRPCError,
			rpcCode: -32000,
		},
		{
			name: "sync committee",
			handler: func(w http.ResponseWriter, req request) {
				fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32602,"message":"unknown sync committee period"}}`, req.ID)
			},
			code:    core.CodeRPCError,
			rpcCode: CodeInvalidParams,
		},
		{
			name:    "garbage body",
			handler: func(w http.ResponseWriter, _ request) { fmt.Fprint(w, "<html>") },
			code:    core.CodeRPCError,
			rpcCode: CodeParseError,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			node := newNodeFunc(t, tc.handler)
			c, err := New([]string{node.URL})
			require.NoError(t, err)

			_, err = c.Call(context.Background(), "eth_call", nil, false)
			require.ErrorIs(t, err, core.ErrAllEndpointsFailed)

			cause, ok := core.AsError(errors.Unwrap(err))
			require.True(t, ok)
			assert.Equal(t, tc.code, cause.Code)
			assert.Equal(t, tc.rpcCode, cause.RPCCode)
			assert.Equal(t, tc.status, cause.HTTPStatus)
		})
	}
}

func TestCall_NetworkError(t *testing.T) {
	node := newNode(t, `"0x1"`)
	url := node.URL
	node.Close()

	c, err := New([]string{url})
	require.NoError(t, err)

	_, err = c.Call(context.Background(), "eth_chainId", nil, true)
	require.Error(t, err)
	cause, ok := core.AsError(errors.Unwrap(err))
	require.True(t, ok)
	assert.Equal(t, core.CodeNetworkError, cause.Code)
	assert.True(t, cause.IsRetryable())
}

func TestCall_ContextCancelled(t *testing.T) {
	a := failingNode(t, http.StatusBadGateway)
	b := newNode(t, `"0x1"`)

	c, err := New([]string{a.URL, b.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Call(ctx, "eth_chainId", nil, false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, a.URL, c.ActiveEndpoint())
}

func TestCallResult(t *testing.T) {
	node := newNode(t, `{"number":"0x5"}`)
	c, err := New([]string{node.URL})
	require.NoError(t, err)

	var out struct {
		Number string `json:"number"`
	}
	require.NoError(t, c.CallResult(context.Background(), "eth_getBlockByNumber", []any{"latest", false}, &out))
	assert.Equal(t, "0x5", out.Number)

	var wrong int
	err = c.CallResult(context.Background(), "eth_getBlockByNumber", []any{"latest", false}, &wrong)
	assert.ErrorIs(t, err, core.ErrRPC)
}

func TestCallWithRetry(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		node := newNode(t, `"0x1"`)
		c, err := New([]string{node.URL})
		require.NoError(t, err)

		res, err := c.CallWithRetry(context.Background(), "eth_chainId", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `"0x1"`, string(res))
	})

	t.Run("non retryable cause stops after one pass", func(t *testing.T) {
		node := newNodeFunc(t, func(w http.ResponseWriter, req request) {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32602,"message":"invalid params"}}`, req.ID)
		})
		c, err := New([]string{node.URL})
		require.NoError(t, err)

		_, err = c.CallWithRetry(context.Background(), "eth_call", nil)
		assert.ErrorIs(t, err, core.ErrAllEndpointsFailed)
		assert.EqualValues(t, 1, node.calls.Load())
	})

	t.Run("cancelled while backing off", func(t *testing.T) {
		node := failingNode(t, http.StatusTooManyRequests)
		c, err := New([]string{node.URL})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		_, err = c.CallWithRetry(ctx, "eth_call", nil)
		assert.Error(t, err)
		assert.EqualValues(t, 1, node.calls.Load())
	})
}

func TestConcurrentCalls(t *testing.T) {
	node := newNode(t, `"0x1"`)
	c, err := New([]string{node.URL})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Call(context.Background(), "eth_getBalance", []any{i}, true)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 20, node.calls.Load())
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "mainnet.infura.io", redact("https://mainnet.infura.io/v3/secret-key"))
	assert.Equal(t, "node.test:8545", redact("http://node.test:8545?apikey=secret"))
	assert.Equal(t, "invalid", redact("::"))
}
