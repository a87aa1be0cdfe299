package push

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFCMMessage_PrefersToken(t *testing.T) {
	message := buildFCMMessage(&Notification{
		Token:        "device-1",
		Topic:        "rider_r",
		Title:        "ZoomGo",
		Body:         "Ride confirmed and approved.",
		HighPriority: true,
		TTL:          time.Hour,
	})

	assert.Equal(t, "device-1", message.Token)
	assert.Empty(t, message.Topic)
	assert.Equal(t, "Ride confirmed and approved.", message.Notification.Body)
	require.NotNil(t, message.Android)
	assert.Equal(t, "high", message.Android.Priority)
	require.NotNil(t, message.Android.TTL)
	assert.Equal(t, time.Hour, *message.Android.TTL)
	assert.Nil(t, message.APNS)
}

func TestBuildFCMMessage_Topic(t *testing.T) {
	message := buildFCMMessage(&Notification{Topic: "rider_r", Sound: "default"})

	assert.Equal(t, "rider_r", message.Topic)
	assert.Equal(t, "normal", message.Android.Priority)
	require.NotNil(t, message.APNS)
	assert.Equal(t, "default", message.APNS.Payload.Aps.Sound)
}

func TestBuildAPNSNotification(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	notification := buildAPNSNotification("com.zoomgo.rider", &Notification{
		Token:        "abc123",
		Title:        "ZoomGo",
		Body:         "Ride confirmed and approved.",
		Data:         map[string]string{"bookingId": "b-1"},
		HighPriority: true,
		TTL:          time.Minute,
		CollapseKey:  "booking-b-1",
	}, now)

	assert.Equal(t, "abc123", notification.DeviceToken)
	assert.Equal(t, "com.zoomgo.rider", notification.Topic)
	assert.Equal(t, apns2.PriorityHigh, notification.Priority)
	assert.Equal(t, now.Add(time.Minute), notification.Expiration)
	assert.Equal(t, "booking-b-1", notification.CollapseID)

	raw, err := json.Marshal(notification.Payload)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"body":"Ride confirmed and approved."`)
	assert.Contains(t, string(raw), `"bookingId":"b-1"`)
}

func TestAPNSProvider_RejectsTopicOnly(t *testing.T) {
	provider := &APNSProvider{topic: "com.zoomgo.rider"}

	_, err := provider.Send(context.Background(), &Notification{Topic: "rider_r"})
	assert.ErrorIs(t, err, ErrTopicsUnsupported)

	_, err = provider.Send(context.Background(), &Notification{})
	assert.ErrorIs(t, err, ErrNoTarget)
}
