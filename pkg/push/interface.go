package push

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoTarget          = errors.New("notification has no device token or topic")
	ErrTopicsUnsupported = errors.New("provider cannot deliver to topics")
)

type PushProvider interface {
	Send(ctx context.Context, notification *Notification) (*Result, error)
	Name() string
}

// TopicSubscriber is implemented by providers that fan out by topic.
type TopicSubscriber interface {
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) error
}

// Notification targets Token when set, otherwise Topic.
type Notification struct {
	Token        string
	Topic        string
	Title        string
	Body         string
	Data         map[string]string
	Sound        string
	HighPriority bool
	TTL          time.Duration
	CollapseKey  string
}

func (n *Notification) validate() error {
	if n.Token == "" && n.Topic == "" {
		return ErrNoTarget
	}
	return nil
}

type Result struct {
	Provider  string
	MessageID string
}
