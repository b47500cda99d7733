package ports

import (
	"context"

	"github.com/layer-3/chainauth/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishLogin(ctx context.Context, session *core.Session) error
	PublishLogout(ctx context.Context, address string, tokenID string) error
}
