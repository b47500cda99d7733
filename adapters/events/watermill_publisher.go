package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/chainauth/core"
	"github.com/layer-3/chainauth/ports"
)

const (
	TopicLogin  = "chainauth.login"
	TopicLogout = "chainauth.logout"
)

// LoginEvent is published after a successful wallet login
type LoginEvent struct {
	SessionID      string              `json:"session_id"`
	Address        string              `json:"address"`
	BlockchainType core.BlockchainType `json:"chain"`
	ChainID        string              `json:"chain_id,omitempty"`
	IssuedAt       time.Time           `json:"issued_at"`
}

// LogoutEvent represents a logout event
type LogoutEvent struct {
	Address string `json:"address"`
	TokenID string `json:"token_id"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher   message.Publisher
	loginTopic  string
	logoutTopic string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher:   publisher,
		loginTopic:  TopicLogin,
		logoutTopic: TopicLogout,
	}
}

// PublishLogin publishes a login event keyed by the session id
func (p *WatermillPublisher) PublishLogin(ctx context.Context, session *core.Session) error {
	event := LoginEvent{
		SessionID:      session.ID,
		Address:        session.Address,
		BlockchainType: session.BlockchainType,
		ChainID:        session.ChainID,
		IssuedAt:       session.IssuedAt,
	}
	return p.publish(ctx, p.loginTopic, session.ID, event)
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address string, tokenID string) error {
	event := LogoutEvent{
		Address: address,
		TokenID: tokenID,
	}
	return p.publish(ctx, p.logoutTopic, tokenID, event)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, id string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
