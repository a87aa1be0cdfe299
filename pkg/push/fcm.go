package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
)

type FCMProvider struct {
	client *messaging.Client
}

// NewFCMProvider shares the process-wide Firebase app with token verification.
func NewFCMProvider(ctx context.Context, app *firebase.App) (*FCMProvider, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	return &FCMProvider{
		client: client,
	}, nil
}

func (f *FCMProvider) Name() string {
	return "fcm"
}

func (f *FCMProvider) Send(ctx context.Context, notification *Notification) (*Result, error) {
	if err := notification.validate(); err != nil {
		return nil, err
	}

	messageID, err := f.client.Send(ctx, buildFCMMessage(notification))
	if err != nil {
		return nil, fmt.Errorf("failed to send FCM message: %w", err)
	}

	return &Result{Provider: f.Name(), MessageID: messageID}, nil
}

func (f *FCMProvider) SubscribeToTopic(ctx context.Context, tokens []string, topic string) error {
	response, err := f.client.SubscribeToTopic(ctx, tokens, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	if response.FailureCount > 0 {
		return fmt.Errorf("failed to subscribe %d of %d tokens to topic %s", response.FailureCount, len(tokens), topic)
	}
	return nil
}

func buildFCMMessage(notification *Notification) *messaging.Message {
	message := &messaging.Message{
		Data: notification.Data,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
	}

	// Set target
	if notification.Token != "" {
		message.Token = notification.Token
	} else {
		message.Topic = notification.Topic
	}

	android := &messaging.AndroidConfig{
		CollapseKey: notification.CollapseKey,
		Priority:    "normal",
	}
	if notification.HighPriority {
		android.Priority = "high"
	}
	if notification.TTL > 0 {
		ttl := notification.TTL
		android.TTL = &ttl
	}
	if notification.Sound != "" {
		android.Notification = &messaging.AndroidNotification{Sound: notification.Sound}
	}
	message.Android = android

	if notification.Sound != "" {
		message.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: notification.Sound},
			},
		}
	}

	return message
}
