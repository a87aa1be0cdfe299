package push

import (
	"context"
	"fmt"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

type APNSProvider struct {
	client *apns2.Client
	topic  string
}

func NewAPNSProvider(keyFile, keyID, teamID, topic string, production bool) (*APNSProvider, error) {
	authKey, err := token.AuthKeyFromFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load auth key: %w", err)
	}

	tokenProvider := &token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	}

	client := apns2.NewTokenClient(tokenProvider)
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNSProvider{
		client: client,
		topic:  topic,
	}, nil
}

func (a *APNSProvider) Name() string {
	return "apns"
}

// Send delivers to a device token. APNs has no topic fan-out.
func (a *APNSProvider) Send(ctx context.Context, notification *Notification) (*Result, error) {
	if err := notification.validate(); err != nil {
		return nil, err
	}
	if notification.Token == "" {
		return nil, ErrTopicsUnsupported
	}

	response, err := a.client.PushWithContext(ctx, buildAPNSNotification(a.topic, notification, time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to push APNs notification: %w", err)
	}
	if !response.Sent() {
		return nil, fmt.Errorf("APNS error: %d %s", response.StatusCode, response.Reason)
	}

	return &Result{Provider: a.Name(), MessageID: response.ApnsID}, nil
}

func buildAPNSNotification(topic string, notification *Notification, now time.Time) *apns2.Notification {
	body := payload.NewPayload().
		AlertTitle(notification.Title).
		AlertBody(notification.Body)
	if notification.Sound != "" {
		body = body.Sound(notification.Sound)
	}
	for key, value := range notification.Data {
		body = body.Custom(key, value)
	}

	apnsNotification := &apns2.Notification{
		DeviceToken: notification.Token,
		Topic:       topic,
		Payload:     body,
		CollapseID:  notification.CollapseKey,
		Priority:    apns2.PriorityLow,
	}
	if notification.HighPriority {
		apnsNotification.Priority = apns2.PriorityHigh
	}
	if notification.TTL > 0 {
		apnsNotification.Expiration = now.Add(notification.TTL)
	}

	return apnsNotification
}
