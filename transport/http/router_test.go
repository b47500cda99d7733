package http

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/chainauth/adapters/events"
	"github.com/layer-3/chainauth/adapters/store"
	"github.com/layer-3/chainauth/adapters/tokenizer"
	"github.com/layer-3/chainauth/rpc"
	"github.com/layer-3/chainauth/service"
	"github.com/layer-3/chainauth/verifier"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router   *gin.Engine
	wallet   *ecdsa.PrivateKey
	address  string
	registry *prometheus.Registry
}

func newTestServer(t *testing.T, chains map[string]*rpc.Client) *testServer {
	t.Helper()

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	wallet, err := crypto.GenerateKey()
	require.NoError(t, err)

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })

	authService := service.NewAuthService(
		tokenizer.NewJWTTokenizer(signKey),
		store.NewMemoryStore(),
		events.NewWatermillPublisher(pubsub),
		verifier.New(),
		service.Config{Domain: "app.test"},
		nil,
	)

	registry := prometheus.NewRegistry()
	return &testServer{
		router:   SetupRouter(authService, RouterConfig{Chains: chains, Gatherer: registry}),
		wallet:   wallet,
		address:  crypto.PubkeyToAddress(wallet.PublicKey).Hex(),
		registry: registry,
	}
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) (int, map[string]any) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" && bytes.HasPrefix(bytes.TrimSpace(w.Body.Bytes()), []byte("{")) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func (s *testServer) sign(t *testing.T, text string) string {
	t.Helper()
	sig, err := crypto.Sign(verifier.EIP191Hash([]byte(text)), s.wallet)
	require.NoError(t, err)
	sig[64] += 27
	return hexutil.Encode(sig)
}

func (s *testServer) login(t *testing.T) (string, string) {
	t.Helper()

	code, challenge := s.do(t, http.MethodPost, "/auth/challenge", "", gin.H{"address": s.address})
	require.Equal(t, http.StatusOK, code)

	code, tokens := s.do(t, http.MethodPost, "/auth/login", "", gin.H{
		"challenge_token": challenge["token"],
		"signature":       s.sign(t, challenge["message"].(string)),
		"address":         s.address,
	})
	require.Equal(t, http.StatusOK, code, tokens)
	return tokens["access_token"].(string), tokens["refresh_token"].(string)
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, nil)
	access, refresh := s.login(t)

	code, me := s.do(t, http.MethodGet, "/api/me", access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, s.address, me["address"])
	assert.Equal(t, "evm", me["chain"])
	assert.Equal(t, "1", me["chain_id"])

	code, authz := s.do(t, http.MethodGet, "/api/authorize", access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, authz["authorized"])

	code, rotated := s.do(t, http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Bearer", rotated["token_type"])
	assert.InDelta(t, 300, rotated["expires_in"], 2)

	code, _ = s.do(t, http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodPost, "/auth/logout", "", gin.H{"refresh_token": rotated["refresh_token"]})
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodGet, "/api/me", rotated["access_token"].(string), nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestChallengeErrors(t *testing.T) {
	s := newTestServer(t, nil)

	code, _ := s.do(t, http.MethodPost, "/auth/challenge", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := s.do(t, http.MethodPost, "/auth/challenge", "", gin.H{"address": s.address, "chain": "cosmos"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Unsupported chain", body["error"])

	code, _ = s.do(t, http.MethodPost, "/auth/challenge", "", gin.H{"address": "0xdeadbeef"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodPost, "/auth/challenge", "", gin.H{
		"address":  "7EcDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV",
		"chain":    "solana",
		"chain_id": "devnet",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "solana", body["chain"])
	assert.Equal(t, "devnet", body["chain_id"])
	assert.Contains(t, body["message"], "7EcDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV")
}

func TestLoginErrors(t *testing.T) {
	s := newTestServer(t, nil)

	code, challenge := s.do(t, http.MethodPost, "/auth/challenge", "", gin.H{"address": s.address})
	require.Equal(t, http.StatusOK, code)
	text := challenge["message"].(string)

	code, body := s.do(t, http.MethodPost, "/auth/login", "", gin.H{
		"challenge_token": challenge["token"],
		"signature":       s.sign(t, text+"x"),
	})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid signature", body["error"])

	code, body = s.do(t, http.MethodPost, "/auth/login", "", gin.H{
		"challenge_token": "garbage",
		"signature":       s.sign(t, text),
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid challenge token", body["error"])

	good := gin.H{"challenge_token": challenge["token"], "signature": s.sign(t, text)}
	code, _ = s.do(t, http.MethodPost, "/auth/login", "", good)
	require.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodPost, "/auth/login", "", good)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Challenge already used", body["error"])
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid authorization header", body["error"])

	code, body = s.do(t, http.MethodGet, "/api/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid token", body["error"])
}

func newNode(t *testing.T, handle func(method string) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64 `json:"id"`
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,%s}`, req.ID, handle(req.Method))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRPCProxy(t *testing.T) {
	node := newNode(t, func(method string) string {
		switch method {
		case "eth_chainId":
			return `"result":"0x1"`
		default:
			return `"error":{"code":-32000,"message":"execution reverted"}`
		}
	})

	registry := prometheus.NewRegistry()
	client, err := rpc.New([]string{node.URL}, rpc.WithName("ethereum"), rpc.WithMetrics(rpc.NewMetrics(registry)), rpc.WithTimeout(time.Second))
	require.NoError(t, err)

	s := newTestServer(t, map[string]*rpc.Client{"ethereum": client})
	access, _ := s.login(t)

	code, body := s.do(t, http.MethodPost, "/api/chains/ethereum/rpc", access, gin.H{"jsonrpc": "2.0", "id": 7, "method": "eth_chainId"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0x1", body["result"])
	assert.EqualValues(t, 7, body["id"])

	code, body = s.do(t, http.MethodPost, "/api/chains/ethereum/rpc", access, gin.H{"jsonrpc": "2.0", "id": 8, "method": "eth_call", "params": []any{}})
	assert.Equal(t, http.StatusBadGateway, code)
	rpcErr := body["error"].(map[string]any)
	assert.EqualValues(t, -32000, rpcErr["code"])
	assert.Equal(t, "execution reverted", rpcErr["message"])

	code, body = s.do(t, http.MethodPost, "/api/chains/ethereum/rpc", access, gin.H{"jsonrpc": "2.0", "id": 9, "method": "eth_sign"})
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, rpc.CodeMethodNotFound, body["error"].(map[string]any)["code"])

	code, _ = s.do(t, http.MethodPost, "/api/chains/solana/rpc", access, gin.H{"method": "getSlot"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/api/chains/ethereum/rpc", "", gin.H{"method": "eth_chainId"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRPCProxyUpstreamDown(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)

	client, err := rpc.New([]string{down.URL}, rpc.WithTimeout(time.Second))
	require.NoError(t, err)

	s := newTestServer(t, map[string]*rpc.Client{"ethereum": client})
	access, _ := s.login(t)

	code, body := s.do(t, http.MethodPost, "/api/chains/ethereum/rpc", access, gin.H{"id": 1, "method": "eth_blockNumber"})
	assert.Equal(t, http.StatusBadGateway, code)
	rpcErr := body["error"].(map[string]any)
	assert.EqualValues(t, rpc.CodeInternalError, rpcErr["code"])
	assert.Equal(t, "all_endpoints_failed", rpcErr["data"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.registry.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "chainauth_test_total"}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chainauth_test_total 0")
}
