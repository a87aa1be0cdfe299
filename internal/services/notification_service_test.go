package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"zoomgo/internal/models"
	"zoomgo/internal/repositories/memory"
	"zoomgo/internal/services"
	"zoomgo/pkg/logger"
	"zoomgo/pkg/push"
	"zoomgo/pkg/sms"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePush struct {
	lock       sync.Mutex
	name       string
	sent       []*push.Notification
	subscribed map[string][]string
	err        error
	tokensOnly bool
}

func (p *fakePush) Name() string {
	return p.name
}

func (p *fakePush) Send(_ context.Context, notification *push.Notification) (*push.Result, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.tokensOnly && notification.Token == "" {
		return nil, push.ErrTopicsUnsupported
	}
	if p.err != nil {
		return nil, p.err
	}
	p.sent = append(p.sent, notification)
	return &push.Result{Provider: p.name, MessageID: "m-1"}, nil
}

func (p *fakePush) SubscribeToTopic(_ context.Context, tokens []string, topic string) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.subscribed == nil {
		p.subscribed = map[string][]string{}
	}
	p.subscribed[topic] = append(p.subscribed[topic], tokens...)
	return nil
}

type fakeSMS struct {
	lock sync.Mutex
	sent []*sms.SMSRequest
	err  error
}

func (s *fakeSMS) Name() string {
	return "fake_sms"
}

func (s *fakeSMS) SendSMS(_ context.Context, request *sms.SMSRequest) (*sms.SMSResponse, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, request)
	return &sms.SMSResponse{Provider: "fake_sms", MessageID: "s-1"}, nil
}

func approvedBooking() *models.Booking {
	price := 42.5
	return &models.Booking{
		ID:      "b-1",
		RiderID: riderR,
		Status:  models.BookingStatusApproved,
		Price:   &price,
	}
}

func newNotifierFixture(t *testing.T) (services.ProfileService, *fakePush, *fakePush, *fakeSMS, services.BookingNotifier) {
	t.Helper()
	profiles := services.NewProfileService(memory.NewDocumentStore(), &fakeAuthenticator{userID: riderR}, services.StandardProfilePolicy(), logger.Discard())
	fcm := &fakePush{name: "fcm"}
	apns := &fakePush{name: "apns", tokensOnly: true}
	text := &fakeSMS{}
	notifier := services.NewBookingNotifier(profiles, services.StandardProfilePolicy(), text, logger.Discard(), fcm, apns)
	return profiles, fcm, apns, text, notifier
}

func TestNotifyApproved_PushesToRiderTopic(t *testing.T) {
	_, fcm, apns, text, notifier := newNotifierFixture(t)

	require.NoError(t, notifier.NotifyApproved(context.Background(), approvedBooking()))

	require.Len(t, fcm.sent, 1)
	assert.Equal(t, "rider_"+riderR, fcm.sent[0].Topic)
	assert.Empty(t, fcm.sent[0].Token)
	assert.Equal(t, "Ride confirmed and approved.", fcm.sent[0].Body)
	assert.Equal(t, "42.50", fcm.sent[0].Data["price"])
	assert.Empty(t, apns.sent, "apns needs a device token")
	assert.Empty(t, text.sent, "no phone on the default profile")
}

func TestNotifyApproved_UsesProfileContact(t *testing.T) {
	profiles, fcm, apns, text, notifier := newNotifierFixture(t)
	ctx := context.Background()

	_, err := profiles.CreateProfile(ctx, "Ada", "ada@example.com")
	require.NoError(t, err)
	require.NoError(t, profiles.UpdateContact(ctx, "+15550100", "device-1"))

	require.NoError(t, notifier.NotifyApproved(ctx, approvedBooking()))

	require.Len(t, fcm.sent, 1)
	assert.Equal(t, "device-1", fcm.sent[0].Token)
	require.Len(t, apns.sent, 1)
	require.Len(t, text.sent, 1)
	assert.Equal(t, "+15550100", text.sent[0].To)
	assert.Equal(t, "Ride confirmed and approved.", text.sent[0].Message)
}

func TestNotifyApproved_JoinsFailures(t *testing.T) {
	profiles, fcm, _, text, notifier := newNotifierFixture(t)
	ctx := context.Background()

	require.NoError(t, profiles.UpdateContact(ctx, "+15550100", ""))
	pushErr := errors.New("fcm down")
	smsErr := errors.New("twilio down")
	fcm.err = pushErr
	text.err = smsErr

	err := notifier.NotifyApproved(ctx, approvedBooking())
	assert.ErrorIs(t, err, pushErr)
	assert.ErrorIs(t, err, smsErr)
}

func TestNotifyApproved_IgnoresPendingBookings(t *testing.T) {
	_, fcm, _, _, notifier := newNotifierFixture(t)

	require.NoError(t, notifier.NotifyApproved(context.Background(), &models.Booking{ID: "b-2", RiderID: riderR, Status: models.BookingStatusPending}))
	assert.Empty(t, fcm.sent)
}

func TestRegisterDevice_SubscribesRiderTopic(t *testing.T) {
	_, fcm, apns, _, notifier := newNotifierFixture(t)

	require.NoError(t, notifier.RegisterDevice(context.Background(), riderR, "device-1"))

	assert.Equal(t, []string{"device-1"}, fcm.subscribed[services.RiderTopic(riderR)])
	assert.Equal(t, []string{"device-1"}, apns.subscribed[services.RiderTopic(riderR)])
}
