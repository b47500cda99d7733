package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/layer-3/chainauth/authmsg"
	"github.com/layer-3/chainauth/core"
	"github.com/layer-3/chainauth/ports"
)

const AudienceChallenge = "session:challenge"
const AudienceAccess = "session:access"
const AudienceRefresh = "session:refresh"

// JWTTokenizer implements the Tokenizer interface using JWT
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) ports.Tokenizer {
	return &JWTTokenizer{signKey: signKey}
}

// ChallengeToToken converts a sign-in message to a JWT token. The message
// must expire, the token expires with it.
func (j *JWTTokenizer) ChallengeToToken(msg *authmsg.AuthMessage) (string, error) {
	if msg.ExpiresAt == nil {
		return "", fmt.Errorf("challenge without expiry: %w", core.ErrInvalidChallenge)
	}

	claims := ChallengeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   msg.Address,
			ID:        msg.Nonce,
			ExpiresAt: jwt.NewNumericDate(*msg.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(msg.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceChallenge},
		},
		Message: *msg,
	}
	return j.sign(claims)
}

// TokenToChallenge converts a JWT token back to the sign-in message
func (j *JWTTokenizer) TokenToChallenge(tokenStr string) (*authmsg.AuthMessage, error) {
	claims := &ChallengeClaims{}
	if err := j.parse(tokenStr, claims, AudienceChallenge); err != nil {
		return nil, err
	}

	msg := claims.Message
	if msg.Nonce != claims.ID || msg.Address != claims.Subject {
		return nil, core.ErrInvalidChallenge
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidChallenge, err)
	}

	return &msg, nil
}

// SessionToAccessToken converts a Session to an access JWT token
func (j *JWTTokenizer) SessionToAccessToken(session *core.Session) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Address,
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.AccessExpiry),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		RefreshID:      session.RefreshID,
		BlockchainType: session.BlockchainType,
		ChainID:        session.ChainID,
	}

	return j.sign(claims)
}

// SessionToRefreshToken converts a Session to a refresh JWT token
func (j *JWTTokenizer) SessionToRefreshToken(session *core.Session) (string, error) {
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Address,
			ID:        session.RefreshID, // Use RefreshID as the JWT ID for the refresh token
			ExpiresAt: jwt.NewNumericDate(session.RefreshExpiry),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceRefresh},
		},
		BlockchainType: session.BlockchainType,
		ChainID:        session.ChainID,
	}

	return j.sign(claims)
}

// AccessTokenToSession parses an access token and returns the associated session
func (j *JWTTokenizer) AccessTokenToSession(tokenStr string) (*core.Session, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, AudienceAccess); err != nil {
		return nil, err
	}

	return &core.Session{
		ID:             claims.ID,
		Address:        claims.Subject,
		BlockchainType: claims.BlockchainType,
		ChainID:        claims.ChainID,
		IssuedAt:       claims.IssuedAt.Time,
		AccessExpiry:   claims.ExpiresAt.Time,
		RefreshID:      claims.RefreshID,
	}, nil
}

// RefreshTokenToSession parses a refresh token and returns the associated session.
// AccessExpiry is left zero, refresh handling does not use it.
func (j *JWTTokenizer) RefreshTokenToSession(tokenStr string) (*core.Session, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, AudienceRefresh); err != nil {
		return nil, err
	}

	return &core.Session{
		Address:        claims.Subject,
		BlockchainType: claims.BlockchainType,
		ChainID:        claims.ChainID,
		IssuedAt:       claims.IssuedAt.Time,
		RefreshExpiry:  claims.ExpiresAt.Time,
		RefreshID:      claims.ID, // The JWT ID is the refresh token ID
	}, nil
}

func (j *JWTTokenizer) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// parse validates signature, audience and time claims. Expired tokens map
// to core.ErrTokenExpired, everything else to core.ErrInvalidToken.
func (j *JWTTokenizer) parse(tokenStr string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(audience), jwt.WithExpirationRequired())

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", core.ErrTokenExpired, err)
	case err != nil:
		return fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	case !token.Valid:
		return core.ErrInvalidToken
	}
	return nil
}
