// Package rpc is a JSON-RPC 2.0 client over HTTP with endpoint failover and
// a per-method response cache.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/layer-3/chainauth/core"
	"github.com/layer-3/chainauth/internal/log"
)

const (
	DefaultTimeout = 10 * time.Second

	maxResponseSize = 10 << 20
)

var ErrNoEndpoints = errors.New("at least one endpoint is required")

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      uint64          `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonRPCError   `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Client talks to one chain through an ordered list of equivalent
// endpoints. The first is the primary, the rest are backups.
type Client struct {
	name      string
	endpoints []string
	timeout   time.Duration
	http      *http.Client
	cache     *responseCache
	metrics   *Metrics
	lg        log.Logger

	mu      sync.Mutex
	current int

	nextID atomic.Uint64
}

type Option func(*config)

type config struct {
	name        string
	timeout     time.Duration
	httpClient  *http.Client
	logger      log.Logger
	metrics     *Metrics
	cacheSize   int
	cachePolicy map[string]time.Duration
	now         func() time.Time
}

// WithName labels the client in logs and metrics, usually with the chain name.
func WithName(name string) Option { return func(c *config) { c.name = name } }

// WithTimeout bounds every single HTTP attempt.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

func WithHTTPClient(h *http.Client) Option { return func(c *config) { c.httpClient = h } }

func WithLogger(lg log.Logger) Option { return func(c *config) { c.logger = lg } }

func WithMetrics(m *Metrics) Option { return func(c *config) { c.metrics = m } }

func WithCacheSize(n int) Option { return func(c *config) { c.cacheSize = n } }

// WithCachePolicy replaces DefaultCachePolicy.
func WithCachePolicy(p map[string]time.Duration) Option {
	return func(c *config) { c.cachePolicy = p }
}

// WithClock overrides the clock used for cache expiry.
func WithClock(now func() time.Time) Option { return func(c *config) { c.now = now } }

func New(endpoints []string, opts ...Option) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	for _, e := range endpoints {
		if _, err := url.ParseRequestURI(e); err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", e, err)
		}
	}

	conf := config{
		name:        "default",
		timeout:     DefaultTimeout,
		logger:      log.NewNoopLogger(),
		cacheSize:   DefaultCacheSize,
		cachePolicy: DefaultCachePolicy,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&conf)
	}
	if conf.httpClient == nil {
		conf.httpClient = &http.Client{}
	}
	if conf.metrics == nil {
		conf.metrics = NewMetrics(nil)
	}

	cache, err := newResponseCache(conf.cacheSize, conf.cachePolicy, conf.now)
	if err != nil {
		return nil, err
	}

	return &Client{
		name:      conf.name,
		endpoints: append([]string(nil), endpoints...),
		timeout:   conf.timeout,
		http:      conf.httpClient,
		cache:     cache,
		metrics:   conf.metrics,
		lg:        conf.logger.WithName("rpc").WithKV("client", conf.name),
	}, nil
}

// ActiveEndpoint is the endpoint the next call starts with.
func (c *Client) ActiveEndpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoints[c.current]
}

func (c *Client) Endpoints() []string { return append([]string(nil), c.endpoints...) }

// ClearCache drops every cached response.
func (c *Client) ClearCache() { c.cache.purge() }

// Call invokes method with params (any JSON encodable value, nil for no
// params). When useCache is set and the method has a TTL in the cache
// policy, a fresh cached result is returned without any network traffic.
//
// On failure the call moves on to the next endpoint, trying each at most
// once. A success pins that endpoint for subsequent calls.
func (c *Client) Call(ctx context.Context, method string, params any, useCache bool) (json.RawMessage, error) {
	rawParams, err := encodeParams(params)
	if err != nil {
		return nil, err
	}

	ttl := c.cache.ttl(method)
	cacheable := useCache && ttl > 0
	key := cacheKey(method, rawParams)
	if cacheable {
		if v, ok := c.cache.get(key); ok {
			c.metrics.CacheHits.WithLabelValues(c.name, method).Inc()
			return v, nil
		}
		c.metrics.CacheMisses.WithLabelValues(c.name, method).Inc()
	}

	c.mu.Lock()
	start := c.current
	c.mu.Unlock()

	n := len(c.endpoints)
	var lastErr error
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if i > 0 {
			c.metrics.Failovers.WithLabelValues(c.name).Inc()
		}

		result, err := c.attempt(ctx, c.endpoints[idx], method, rawParams)
		if err == nil {
			c.mu.Lock()
			c.current = idx
			c.mu.Unlock()
			if cacheable {
				c.cache.put(key, result, ttl)
			}
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", method, ctx.Err())
		}

		lastErr = err
		c.lg.Warn("rpc attempt failed", "method", method, "endpoint", redact(c.endpoints[idx]), "error", err)
	}

	c.metrics.Exhausted.WithLabelValues(c.name).Inc()
	return nil, allEndpointsFailed(n, lastErr)
}

// CallResult is Call followed by decoding the result into out.
func (c *Client) CallResult(ctx context.Context, method string, params any, out any) error {
	raw, err := c.Call(ctx, method, params, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return core.NewError(core.KindRPC, core.CodeRPCError, "decode "+method+" result", err)
	}
	return nil
}

// CallWithRetry repeats whole failover passes according to the retry
// policy of the last endpoint error, e.g. backing off while rate limited.
func (c *Client) CallWithRetry(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var (
		result json.RawMessage
		final  error
	)
	err := core.Retry(ctx, func(ctx context.Context) error {
		res, err := c.Call(ctx, method, params, true)
		if err != nil {
			final = err
			return lastEndpointError(err)
		}
		result, final = res, nil
		return nil
	})
	if err != nil {
		return nil, final
	}
	return result, nil
}

// lastEndpointError unwraps a failover error to the cause reported by the
// last endpoint tried, which carries the retry policy.
func lastEndpointError(err error) error {
	if e, ok := core.AsError(err); ok && e.Code == core.CodeAllEndpointsFailed && e.Err != nil {
		return e.Err
	}
	return err
}

func (c *Client) attempt(ctx context.Context, endpoint, method string, params json.RawMessage) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	result, err := c.do(ctx, endpoint, method, params)
	c.metrics.Latency.WithLabelValues(c.name, method).Observe(time.Since(started).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = string(core.CodeOf(err))
	}
	c.metrics.Requests.WithLabelValues(c.name, method, redact(endpoint), outcome).Inc()
	return result, err
}

func (c *Client) do(ctx context.Context, endpoint, method string, params json.RawMessage) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		return nil, core.NewError(core.KindRPC, core.CodeRPCError, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, core.NewError(core.KindNetwork, core.CodeNetworkError, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newHTTPError(resp.StatusCode)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		e := core.NewError(core.KindRPC, core.CodeRPCError, "malformed response", err)
		e.RPCCode = CodeParseError
		return nil, e
	}
	if rpcResp.Error != nil {
		return nil, newRPCError(rpcResp.Error)
	}
	if rpcResp.Result == nil {
		e := core.NewError(core.KindRPC, core.CodeRPCError, "response has neither result nor error", nil)
		e.RPCCode = CodeInvalidRequest
		return nil, e
	}
	return rpcResp.Result, nil
}

func encodeParams(params any) (json.RawMessage, error) {
	if params == nil {
		return json.RawMessage("[]"), nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, core.NewError(core.KindRPC, core.CodeRPCError, "encode params", err)
	}
	return b, nil
}

// redact keeps only the host so API keys in paths or queries stay out of
// logs and metric labels.
func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "invalid"
	}
	return u.Host
}
