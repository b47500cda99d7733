package ports

import (
	"github.com/layer-3/chainauth/authmsg"
	"github.com/layer-3/chainauth/core"
)

// Tokenizer converts between domain objects and tokens
type Tokenizer interface {
	// Challenge token operations
	ChallengeToToken(msg *authmsg.AuthMessage) (string, error)
	TokenToChallenge(token string) (*authmsg.AuthMessage, error)

	// Session tokens operations
	SessionToAccessToken(session *core.Session) (string, error)
	AccessTokenToSession(token string) (*core.Session, error)
	SessionToRefreshToken(session *core.Session) (string, error)
	RefreshTokenToSession(token string) (*core.Session, error)
}
