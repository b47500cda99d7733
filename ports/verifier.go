package ports

import (
	"context"

	"github.com/layer-3/chainauth/authmsg"
	"github.com/layer-3/chainauth/core"
)

// SignatureVerifier checks a wallet signature over a sign-in message.
type SignatureVerifier interface {
	Verify(ctx context.Context, sig core.WalletSignature, msg *authmsg.AuthMessage, expectedAddress string) bool
}
