package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/chainauth/authmsg"
	"github.com/layer-3/chainauth/core"
	"github.com/layer-3/chainauth/internal/log"
	"github.com/layer-3/chainauth/ports"
)

// Config holds the sign-in message defaults and token lifetimes.
type Config struct {
	Domain    string `yaml:"domain" env:"CHAINAUTH_DOMAIN" env-required:"true"`
	URI       string `yaml:"uri" env:"CHAINAUTH_URI"`
	Statement string `yaml:"statement" env:"CHAINAUTH_STATEMENT" env-default:"Sign in with your wallet"`

	ChallengeTTL time.Duration `yaml:"challenge_ttl" env:"CHAINAUTH_CHALLENGE_TTL" env-default:"5m"`
	AccessTTL    time.Duration `yaml:"access_ttl" env:"CHAINAUTH_ACCESS_TTL" env-default:"5m"`
	RefreshTTL   time.Duration `yaml:"refresh_ttl" env:"CHAINAUTH_REFRESH_TTL" env-default:"120h"`
}

func (c Config) withDefaults() Config {
	if c.ChallengeTTL <= 0 {
		c.ChallengeTTL = authmsg.DefaultExpiry
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = 5 * time.Minute
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 5 * 24 * time.Hour // 5 days
	}
	return c
}

// ChallengeRequest describes the wallet asking to sign in.
type ChallengeRequest struct {
	Address        string
	BlockchainType core.BlockchainType
	ChainID        string
	// Statement overrides Config.Statement when set.
	Statement string
	Resources []string
}

// LoginRequest carries a signed challenge back.
type LoginRequest struct {
	ChallengeToken string
	Signature      string
	// SignatureFormat is optional, the chain's usual encoding is tried first.
	SignatureFormat core.SignatureFormat
	Address         string
}

// Tokens is the access and refresh pair issued on login and refresh.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	Session      *core.Session
}

// AuthService handles authentication business logic
type AuthService struct {
	tokenizer ports.Tokenizer
	store     ports.Store
	eventPub  ports.EventPublisher
	verifier  ports.SignatureVerifier
	lg        log.Logger

	conf Config
	now  func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	store ports.Store,
	eventPub ports.EventPublisher,
	verifier ports.SignatureVerifier,
	conf Config,
	lg log.Logger,
) *AuthService {
	if lg == nil {
		lg = log.NewNoopLogger()
	}
	return &AuthService{
		tokenizer: tokenizer,
		store:     store,
		eventPub:  eventPub,
		verifier:  verifier,
		lg:        lg.WithName("auth"),
		conf:      conf.withDefaults(),
		now:       time.Now,
	}
}

// CreateChallenge builds a sign-in message for the wallet and wraps it in a
// challenge token. The message is returned so the caller can show the exact
// text to sign.
func (s *AuthService) CreateChallenge(ctx context.Context, req ChallengeRequest) (string, *authmsg.AuthMessage, error) {
	if req.BlockchainType == "" {
		req.BlockchainType = core.BlockchainEVM
	}
	statement := req.Statement
	if statement == "" {
		statement = s.conf.Statement
	}

	msg, err := authmsg.Create(authmsg.Options{
		Domain:         s.conf.Domain,
		URI:            s.conf.URI,
		Address:        req.Address,
		ChainID:        req.ChainID,
		BlockchainType: req.BlockchainType,
		Statement:      statement,
		ExpiresIn:      s.conf.ChallengeTTL,
		RequestID:      uuid.New().String(),
		Resources:      req.Resources,
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", core.ErrInvalidChallenge, err)
	}

	// Convert to token
	token, err := s.tokenizer.ChallengeToToken(msg)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create token: %w", err)
	}

	s.lg.Debug("challenge created", "address", msg.Address, "chain", msg.BlockchainType, "request_id", msg.RequestID)
	return token, msg, nil
}

// Login authenticates a user using their signed challenge. Each challenge
// nonce is accepted at most once.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*Tokens, error) {
	// Parse challenge token
	msg, err := s.tokenizer.TokenToChallenge(req.ChallengeToken)
	if errors.Is(err, core.ErrTokenExpired) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("invalid challenge token: %w", err)
	}

	address := strings.TrimSpace(req.Address)
	if address == "" {
		address = msg.Address
	}

	sig := core.WalletSignature{
		Signature:      req.Signature,
		SignerAddress:  address,
		Message:        msg.ToSignableMessage(),
		Timestamp:      s.now(),
		Format:         req.SignatureFormat,
		BlockchainType: msg.BlockchainType,
	}
	if !s.verifier.Verify(ctx, sig, msg, address) {
		s.lg.Info("signature rejected", "address", address, "chain", msg.BlockchainType)
		return nil, core.ErrInvalidSignature
	}

	// The nonce record only has to outlive the challenge itself.
	ttl := s.conf.ChallengeTTL
	if msg.ExpiresAt != nil {
		ttl = msg.ExpiresAt.Sub(s.now()) + time.Minute
	}
	fresh, err := s.store.ConsumeNonce(ctx, msg.Nonce, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to consume nonce: %w", err)
	}
	if !fresh {
		s.lg.Warn("challenge replayed", "address", address, "nonce", msg.Nonce)
		return nil, core.ErrNonceReused
	}

	// Create new session
	now := s.now()
	session := &core.Session{
		ID:             uuid.New().String(),
		Address:        msg.Address,
		BlockchainType: msg.BlockchainType,
		ChainID:        msg.ChainID,
		IssuedAt:       now,
		RefreshExpiry:  now.Add(s.conf.RefreshTTL),
		AccessExpiry:   now.Add(s.conf.AccessTTL),
		RefreshID:      uuid.New().String(),
	}

	tokens, err := s.issue(session)
	if err != nil {
		return nil, err
	}

	if err := s.eventPub.PublishLogin(ctx, session); err != nil {
		s.lg.Warn("failed to publish login event", "session", session.ID, "error", err)
	}
	s.lg.Info("wallet logged in", "address", session.Address, "chain", session.BlockchainType, "session", session.ID)

	return tokens, nil
}

// Refresh rotates the refresh token and issues new access and refresh tokens
func (s *AuthService) Refresh(ctx context.Context, refreshTokenStr string) (*Tokens, error) {
	// Parse and validate the refresh token
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if errors.Is(err, core.ErrTokenExpired) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	// Check if the token has expired
	if s.now().After(session.RefreshExpiry) {
		return nil, core.ErrTokenExpired
	}

	// Check if the token has been invalidated
	invalidated, err := s.store.IsTokenInvalidated(ctx, session.RefreshID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token invalidation: %w", err)
	}

	if invalidated {
		s.lg.Warn("invalidated refresh token presented", "address", session.Address, "refresh_id", session.RefreshID)
		return nil, core.ErrTokenInvalidated
	}

	// Invalidate the old refresh token
	// We use the remaining time from the original token's expiry to set the TTL
	remainingTime := session.RefreshExpiry.Sub(s.now())
	if err := s.store.InvalidateToken(ctx, session.RefreshID, remainingTime); err != nil {
		return nil, fmt.Errorf("failed to invalidate old token: %w", err)
	}

	// Create new refresh and access tokens
	now := s.now()
	newSession := &core.Session{
		ID:             uuid.New().String(),
		Address:        session.Address,
		BlockchainType: session.BlockchainType,
		ChainID:        session.ChainID,
		IssuedAt:       now,
		RefreshExpiry:  now.Add(s.conf.RefreshTTL),
		AccessExpiry:   now.Add(s.conf.AccessTTL),
		RefreshID:      uuid.New().String(),
	}

	return s.issue(newSession)
}

// Logout invalidates a refresh token
func (s *AuthService) Logout(ctx context.Context, refreshTokenStr string) error {
	// Parse the refresh token. Expired tokens cannot be parsed and need no
	// invalidation.
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return fmt.Errorf("invalid refresh token: %w", err)
	}

	remainingTime := session.RefreshExpiry.Sub(s.now())
	if remainingTime <= 0 {
		// keep a record for a while in case instance clocks disagree
		remainingTime = time.Hour
	}

	// Invalidate the refresh token
	if err := s.store.InvalidateToken(ctx, session.RefreshID, remainingTime); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	// The token is already invalidated in the store, a lost event only
	// delays other instances.
	if err := s.eventPub.PublishLogout(ctx, session.Address, session.RefreshID); err != nil {
		s.lg.Warn("failed to publish logout event", "refresh_id", session.RefreshID, "error", err)
	}

	return nil
}

// ValidateAccessToken returns the session of a live access token whose
// refresh token has not been invalidated.
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	// Parse and validate the access token
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if errors.Is(err, core.ErrTokenExpired) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	// Check if the token has expired
	if s.now().After(session.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}

	// Logging out invalidates the access tokens of the same refresh token
	if session.RefreshID != "" {
		invalidated, err := s.store.IsTokenInvalidated(ctx, session.RefreshID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token invalidation: %w", err)
		}

		if invalidated {
			return nil, core.ErrTokenInvalidated
		}
	}

	return session, nil
}

func (s *AuthService) issue(session *core.Session) (*Tokens, error) {
	accessToken, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := s.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return &Tokens{AccessToken: accessToken, RefreshToken: refreshToken, Session: session}, nil
}
