// Package chainauth is the entry point of the multi-chain wallet
// authentication SDK. An SDK value owns the signature verifier, one RPC
// client per configured chain and the defaults for sign-in messages and
// wallet adapters. There is no package level state, create one SDK per
// application and pass it around.
package chainauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/layer-3/chainauth/authmsg"
	"github.com/layer-3/chainauth/core"
	"github.com/layer-3/chainauth/internal/log"
	"github.com/layer-3/chainauth/rpc"
	"github.com/layer-3/chainauth/verifier"
	"github.com/layer-3/chainauth/wallet"
)

var ErrUnknownChain = errors.New("unknown chain")

// ChainConfig is one RPC backed chain.
type ChainConfig struct {
	Name      string
	Type      core.BlockchainType
	ChainID   string
	Endpoints []string
	Timeout   time.Duration
}

// Config holds the application identity used in sign-in messages and
// wallet requests.
type Config struct {
	Domain    string
	URI       string
	Statement string
	// MessageExpiry defaults to authmsg.DefaultExpiry.
	MessageExpiry time.Duration

	App         wallet.AppMetadata
	RedirectURL string

	Chains []ChainConfig
	// HederaMirrorURL enables Hedera verification when no resolver option
	// is given.
	HederaMirrorURL string
}

type options struct {
	logger     log.Logger
	registry   prometheus.Registerer
	httpClient *http.Client
	resolver   verifier.HederaKeyResolver
}

type Option func(*options)

func WithLogger(lg log.Logger) Option { return func(o *options) { o.logger = lg } }

// WithRegistry registers the RPC metrics of every chain on r.
func WithRegistry(r prometheus.Registerer) Option { return func(o *options) { o.registry = r } }

func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

func WithHederaResolver(r verifier.HederaKeyResolver) Option {
	return func(o *options) { o.resolver = r }
}

// SDK is the explicit handle replacing any global singleton.
type SDK struct {
	conf     Config
	lg       log.Logger
	verifier *verifier.Verifier
	clients  map[string]*rpc.Client
	chains   map[string]ChainConfig
}

// New validates conf and builds the verifier and RPC clients. RPC clients
// share one metrics set but nothing else, each chain has its own endpoint
// index and cache.
func New(conf Config, opts ...Option) (*SDK, error) {
	o := options{logger: log.NewNoopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if conf.Domain == "" {
		return nil, authmsg.ErrMissingDomain
	}
	if conf.MessageExpiry <= 0 {
		conf.MessageExpiry = authmsg.DefaultExpiry
	}

	vopts := []verifier.Option{verifier.WithLogger(o.logger)}
	switch {
	case o.resolver != nil:
		vopts = append(vopts, verifier.WithHederaResolver(o.resolver))
	case conf.HederaMirrorURL != "":
		vopts = append(vopts, verifier.WithHederaResolver(verifier.NewMirrorNodeResolver(conf.HederaMirrorURL)))
	}

	sdk := &SDK{
		conf:     conf,
		lg:       o.logger.WithName("chainauth"),
		verifier: verifier.New(vopts...),
		clients:  make(map[string]*rpc.Client, len(conf.Chains)),
		chains:   make(map[string]ChainConfig, len(conf.Chains)),
	}

	metrics := rpc.NewMetrics(o.registry)
	for _, c := range conf.Chains {
		if _, dup := sdk.clients[c.Name]; dup {
			return nil, fmt.Errorf("duplicate chain %q", c.Name)
		}
		if !c.Type.Valid() {
			return nil, fmt.Errorf("chain %q: %w", c.Name, core.ErrChainNotSupported)
		}

		ropts := []rpc.Option{rpc.WithName(c.Name), rpc.WithLogger(o.logger), rpc.WithMetrics(metrics)}
		if c.Timeout > 0 {
			ropts = append(ropts, rpc.WithTimeout(c.Timeout))
		}
		if o.httpClient != nil {
			ropts = append(ropts, rpc.WithHTTPClient(o.httpClient))
		}
		client, err := rpc.New(c.Endpoints, ropts...)
		if err != nil {
			return nil, fmt.Errorf("chain %q: %w", c.Name, err)
		}
		sdk.clients[c.Name] = client
		sdk.chains[c.Name] = c
	}

	return sdk, nil
}

// Verifier returns the shared signature verifier.
func (s *SDK) Verifier() *verifier.Verifier { return s.verifier }

// NewMessage builds a sign-in message for address with the SDK's domain,
// URI, statement and expiry. An empty chainID selects the family default.
func (s *SDK) NewMessage(address string, chain core.BlockchainType, chainID string) (*authmsg.AuthMessage, error) {
	return authmsg.Create(authmsg.Options{
		Domain:         s.conf.Domain,
		URI:            s.conf.URI,
		Statement:      s.conf.Statement,
		Address:        address,
		BlockchainType: chain,
		ChainID:        chainID,
		ExpiresIn:      s.conf.MessageExpiry,
	})
}

// Verify checks sig over msg for expectedAddress. It never errors, any
// failure is reported as false.
func (s *SDK) Verify(ctx context.Context, sig core.WalletSignature, msg *authmsg.AuthMessage, expectedAddress string) bool {
	return s.verifier.Verify(ctx, sig, msg, expectedAddress)
}

// RPC returns the client of the named chain.
func (s *SDK) RPC(name string) (*rpc.Client, error) {
	c, ok := s.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChain, name)
	}
	return c, nil
}

// RPCClients returns a copy of the client map keyed by chain name.
func (s *SDK) RPCClients() map[string]*rpc.Client {
	out := make(map[string]*rpc.Client, len(s.clients))
	for k, v := range s.clients {
		out[k] = v
	}
	return out
}

// ChainNames lists configured chains in name order.
func (s *SDK) ChainNames() []string {
	names := make([]string, 0, len(s.chains))
	for n := range s.chains {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewWalletAdapter creates an adapter for a catalogue wallet. chain names
// the configured chain whose RPC client and chain id the adapter uses, it
// may be empty for wallets that never touch an RPC node.
func (s *SDK) NewWalletAdapter(walletID, chain string, launcher wallet.Launcher, opts ...wallet.Option) (*wallet.Adapter, error) {
	info, err := wallet.Lookup(walletID)
	if err != nil {
		return nil, err
	}

	conf := wallet.Config{
		App:         s.conf.App,
		RedirectURL: s.conf.RedirectURL,
	}
	base := []wallet.Option{wallet.WithLogger(s.lg)}

	if chain != "" {
		c, ok := s.chains[chain]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChain, chain)
		}
		if c.Type != info.BlockchainType {
			return nil, fmt.Errorf("wallet %s is %s, chain %q is %s: %w", info.ID, info.BlockchainType, chain, c.Type, core.ErrChainNotSupported)
		}
		conf.Network = c.ChainID
		base = append(base, wallet.WithRPC(s.clients[chain]))
	}

	return wallet.NewAdapter(info, launcher, conf, append(base, opts...)...)
}
