// Package wallet drives external wallet apps through deep links: connect,
// sign and send, with one state machine shared by all chain families.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/chainauth/core"
	"github.com/layer-3/chainauth/internal/log"
	"github.com/layer-3/chainauth/rpc"
)

const (
	DefaultConnectTimeout = 2 * time.Minute
	DefaultSignTimeout    = 5 * time.Minute

	callbackRequestParam = "request_id"
)

var (
	ErrUnknownCallback = errors.New("callback does not match a pending request")
	errNotConnected    = core.NewError(core.KindSession, core.CodeSessionInvalid, "wallet is not connected", nil)
	errDisconnected    = core.NewError(core.KindSession, core.CodeSessionInvalid, "adapter was disconnected", nil)
)

// StateListener observes state transitions.
type StateListener func(from, to core.ConnectionState)

type Config struct {
	App AppMetadata
	// RedirectURL is the app URL wallets return to, e.g. "myapp://wallet".
	RedirectURL string
	// Network is the chain id or cluster requested on connect.
	Network        string
	ConnectTimeout time.Duration
	SignTimeout    time.Duration
}

type Option func(*Adapter)

func WithLogger(lg log.Logger) Option { return func(a *Adapter) { a.lg = lg } }

// WithRPC lets an EVM adapter confirm the transactions it sends.
func WithRPC(c *rpc.Client) Option { return func(a *Adapter) { a.rpc = c } }

func WithStateListener(l StateListener) Option { return func(a *Adapter) { a.listener = l } }

// WithProtocol overrides the protocol picked from the wallet family.
func WithProtocol(p Protocol) Option { return func(a *Adapter) { a.protocol = p } }

func WithClock(now func() time.Time) Option { return func(a *Adapter) { a.now = now } }

// Adapter is a connection to one wallet app. Operations are serialized:
// starting one while another is in flight fails with operation_in_progress.
// Disconnect is always allowed and aborts whatever is pending.
type Adapter struct {
	info       WalletInfo
	conf       Config
	protocol   Protocol
	launcher   Launcher
	correlator *Correlator
	rpc        *rpc.Client
	listener   StateListener
	lg         log.Logger
	now        func() time.Time

	busy atomic.Bool
	// generation is bumped by Disconnect; a round trip started in an older
	// generation may not touch adapter state.
	generation atomic.Uint64

	mu         sync.Mutex
	state      core.ConnectionState
	connection *core.WalletConnectionResult
}

func NewAdapter(info WalletInfo, launcher Launcher, conf Config, opts ...Option) (*Adapter, error) {
	if launcher == nil {
		return nil, errors.New("launcher is required")
	}
	if _, err := url.Parse(conf.RedirectURL); err != nil || conf.RedirectURL == "" {
		return nil, fmt.Errorf("invalid redirect url %q", conf.RedirectURL)
	}
	if conf.ConnectTimeout <= 0 {
		conf.ConnectTimeout = DefaultConnectTimeout
	}
	if conf.SignTimeout <= 0 {
		conf.SignTimeout = DefaultSignTimeout
	}

	a := &Adapter{
		info:       info,
		conf:       conf,
		launcher:   launcher,
		correlator: NewCorrelator(),
		lg:         log.NewNoopLogger(),
		now:        time.Now,
		state:      core.StateDisconnected,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.protocol == nil {
		p, err := NewProtocol(info, conf.Network)
		if err != nil {
			return nil, err
		}
		a.protocol = p
	}
	a.lg = a.lg.WithName("wallet").WithKV("wallet", info.ID)
	return a, nil
}

func (a *Adapter) Info() WalletInfo { return a.info }

func (a *Adapter) BlockchainType() core.BlockchainType { return a.protocol.BlockchainType() }

func (a *Adapter) Capabilities() []Capability { return a.protocol.Capabilities() }

func (a *Adapter) State() core.ConnectionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Connection returns the current session, or nil when not connected.
func (a *Adapter) Connection() *core.WalletConnectionResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connection == nil {
		return nil
	}
	c := *a.connection
	return &c
}

// IsInstalled reports whether the wallet app can handle its deep link.
func (a *Adapter) IsInstalled(ctx context.Context) bool {
	return a.launcher.CanOpen(ctx, a.info.DeepLink)
}

// HandleCallback feeds a deep-link return URL to the request waiting for
// it. Late and unknown callbacks are rejected with ErrUnknownCallback.
func (a *Adapter) HandleCallback(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse callback: %w", err)
	}
	params := u.Query()
	id := params.Get(callbackRequestParam)
	if id == "" || !a.correlator.Resolve(id, params) {
		a.lg.Debug("dropping callback", "request_id", id)
		return ErrUnknownCallback
	}
	return nil
}

// Connect pairs with the wallet. It returns the existing session when
// already connected.
func (a *Adapter) Connect(ctx context.Context) (*core.WalletConnectionResult, error) {
	if !a.busy.CompareAndSwap(false, true) {
		return nil, core.NewError(core.KindConnection, core.CodeOperationInProgress, "another wallet operation is in flight", nil)
	}
	defer a.busy.Store(false)

	if c := a.Connection(); c != nil {
		return c, nil
	}

	gen := a.generation.Load()
	a.mu.Lock()
	if a.state == core.StateError {
		_ = a.transitionLocked(core.StateDisconnected)
	}
	err := a.transitionLocked(core.StateConnecting)
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if !a.IsInstalled(ctx) {
		a.fail(gen)
		return nil, core.NewError(core.KindConnection, core.CodeWalletNotInstalled, a.info.Name+" is not installed", nil)
	}
	if a.generation.Load() != gen {
		return nil, errDisconnected
	}

	resp, err := a.roundTrip(ctx, gen, &Request{Op: CapConnect}, a.conf.ConnectTimeout, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.generation.Load() == gen {
			_ = a.transitionLocked(core.StateAwaitingApproval)
		}
	})
	if err != nil {
		a.fail(gen)
		return nil, err
	}
	if resp.Connection == nil {
		a.fail(gen)
		return nil, opFailure(CapConnect, "wallet returned no account", nil)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation.Load() != gen {
		return nil, errDisconnected
	}
	if err := a.transitionLocked(core.StateConnected); err != nil {
		return nil, err
	}
	conn := *resp.Connection
	a.connection = &conn
	a.lg.Info("wallet connected", "address", conn.Address, "chain_id", conn.ChainID)
	return resp.Connection, nil
}

// Disconnect drops the session and aborts any pending request.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.generation.Add(1)
	a.correlator.CancelAll()

	a.mu.Lock()
	conn := a.connection
	a.connection = nil
	switch a.state {
	case core.StateConnecting, core.StateAwaitingApproval:
		_ = a.transitionLocked(core.StateError)
		_ = a.transitionLocked(core.StateDisconnected)
	case core.StateConnected, core.StateError:
		_ = a.transitionLocked(core.StateDisconnected)
	}
	a.mu.Unlock()

	if conn != nil {
		req := &Request{ID: uuid.NewString(), Op: CapDisconnect, Session: conn, App: a.conf.App}
		req.Redirect = a.redirect(req.ID)
		if uri := a.protocol.DisconnectURI(a.info, req); uri != "" {
			if openErr := a.launcher.Open(ctx, uri); openErr != nil {
				a.lg.Warn("could not notify wallet of disconnect", "error", openErr)
			}
		}
	}
	a.protocol.Reset()
	return nil
}

// SignMessage asks the wallet to sign message with the connected account.
func (a *Adapter) SignMessage(ctx context.Context, message string) (core.WalletSignature, error) {
	resp, conn, err := a.operate(ctx, CapSignMessage, &Request{Message: []byte(message)}, a.conf.SignTimeout)
	if err != nil {
		return core.WalletSignature{}, err
	}
	return a.signature(resp, conn, message, nil), nil
}

// SignTypedData signs EIP-712 typed data. Only EVM wallets support it.
func (a *Adapter) SignTypedData(ctx context.Context, typedData json.RawMessage) (core.WalletSignature, error) {
	if !json.Valid(typedData) {
		return core.WalletSignature{}, opFailure(CapSignTypedData, "typed data is not valid JSON", nil)
	}
	resp, conn, err := a.operate(ctx, CapSignTypedData, &Request{TypedData: typedData}, a.conf.SignTimeout)
	if err != nil {
		return core.WalletSignature{}, err
	}
	return a.signature(resp, conn, string(typedData), map[string]string{"method": "eth_signTypedData_v4"}), nil
}

// SendTransaction asks the wallet to sign and broadcast tx. It returns the
// transaction hash or signature the chain identifies it by.
func (a *Adapter) SendTransaction(ctx context.Context, tx Transaction) (string, error) {
	resp, _, err := a.operate(ctx, CapSendTransaction, &Request{Tx: &tx}, a.conf.SignTimeout)
	if err != nil {
		return "", err
	}
	if resp.TxHash == "" {
		return "", missingParam(CapSendTransaction, "transaction hash")
	}
	return resp.TxHash, nil
}

// SwitchChain moves an EVM wallet to chainID (decimal).
func (a *Adapter) SwitchChain(ctx context.Context, chainID string) error {
	if a.protocol.BlockchainType() != core.BlockchainEVM {
		return core.NewError(core.KindConnection, core.CodeUnsupportedCapability,
			a.info.Name+" cannot switch networks, reconnect instead", nil)
	}
	resp, _, err := a.operate(ctx, CapSwitchChain, &Request{ChainID: chainID}, a.conf.ConnectTimeout)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connection != nil {
		a.connection.ChainID = chainID
		if resp.ChainID != "" {
			a.connection.ChainID = resp.ChainID
		}
	}
	return nil
}

// ConfirmTransaction waits for an EVM transaction sent through this
// adapter to be mined.
func (a *Adapter) ConfirmTransaction(ctx context.Context, txHash string, pollInterval time.Duration) (*rpc.Receipt, error) {
	if a.protocol.BlockchainType() != core.BlockchainEVM || a.rpc == nil {
		return nil, core.NewError(core.KindConnection, core.CodeUnsupportedCapability, "transaction confirmation needs an EVM adapter with an RPC client", nil)
	}
	hash, err := parseTxHash(txHash)
	if err != nil {
		return nil, err
	}
	return a.rpc.WaitForReceipt(ctx, hash, pollInterval)
}

// operate runs a request that needs a connected session.
func (a *Adapter) operate(ctx context.Context, op Capability, req *Request, timeout time.Duration) (*Response, *core.WalletConnectionResult, error) {
	if !hasCapability(a.protocol, op) {
		return nil, nil, core.NewError(core.KindConnection, core.CodeUnsupportedCapability,
			fmt.Sprintf("%s does not support %s", a.info.Name, op), nil)
	}
	if !a.busy.CompareAndSwap(false, true) {
		return nil, nil, core.NewError(core.KindConnection, core.CodeOperationInProgress, "another wallet operation is in flight", nil)
	}
	defer a.busy.Store(false)

	conn := a.Connection()
	if conn == nil {
		return nil, nil, errNotConnected
	}
	gen := a.generation.Load()

	req.Op = op
	req.Session = conn
	resp, err := a.roundTrip(ctx, gen, req, timeout, nil)
	if err != nil {
		return nil, nil, err
	}
	if a.generation.Load() != gen {
		return nil, nil, errDisconnected
	}
	return resp, conn, nil
}

// roundTrip opens the request URI in the wallet and waits for its callback.
// launched runs once the wallet app has been opened.
func (a *Adapter) roundTrip(ctx context.Context, gen uint64, req *Request, timeout time.Duration, launched func()) (*Response, error) {
	req.ID = uuid.NewString()
	req.Redirect = a.redirect(req.ID)
	req.App = a.conf.App

	uri, err := a.protocol.BuildURI(a.info, req)
	if err != nil {
		return nil, err
	}

	ch := a.correlator.Register(req.ID)
	defer a.correlator.Forget(req.ID)
	// A Disconnect that ran before Register has already cancelled every
	// waiter and would never reach this one.
	if a.generation.Load() != gen {
		return nil, errDisconnected
	}

	lg := a.lg.WithKV("request_id", req.ID).WithKV("op", req.Op)
	lg.Debug("opening wallet")
	if err := a.launcher.Open(ctx, uri); err != nil {
		return nil, opFailure(req.Op, "could not open wallet", err)
	}
	if launched != nil {
		launched()
	}

	params, err := a.correlator.Wait(ctx, req.ID, ch, timeout)
	switch {
	case errors.Is(err, errWaitTimeout):
		lg.Warn("wallet did not respond", "timeout", timeout)
		return nil, timeoutError(req.Op)
	case errors.Is(err, errCancelled):
		return nil, errDisconnected
	case err != nil:
		return nil, err
	}
	if a.generation.Load() != gen {
		return nil, errDisconnected
	}

	if err := walletError(req.Op, params); err != nil {
		lg.Info("wallet returned error", "error", err)
		return nil, err
	}
	return a.protocol.ParseResponse(req, params)
}

func (a *Adapter) signature(resp *Response, conn *core.WalletConnectionResult, message string, meta map[string]string) core.WalletSignature {
	return core.WalletSignature{
		Signature:      resp.Signature,
		SignerAddress:  conn.Address,
		Message:        message,
		Timestamp:      a.now().UTC(),
		Format:         resp.SignatureFormat,
		BlockchainType: a.protocol.BlockchainType(),
		Metadata:       meta,
	}
}

// fail moves a connect attempt of generation gen to the error state.
func (a *Adapter) fail(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation.Load() != gen {
		return
	}
	_ = a.transitionLocked(core.StateError)
}

// transitionLocked requires a.mu. The listener runs under the lock and must
// not call back into the adapter.
func (a *Adapter) transitionLocked(next core.ConnectionState) error {
	prev := a.state
	state, err := prev.Transition(next)
	if err != nil {
		return err
	}
	a.state = state
	if a.listener != nil {
		a.listener(prev, next)
	}
	return nil
}

func (a *Adapter) redirect(id string) string {
	u, _ := url.Parse(a.conf.RedirectURL)
	q := u.Query()
	q.Set(callbackRequestParam, id)
	u.RawQuery = q.Encode()
	return u.String()
}
