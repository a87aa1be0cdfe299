package services

import (
	"context"
	"errors"
	"fmt"

	"zoomgo/internal/models"
	"zoomgo/pkg/logger"
	"zoomgo/pkg/push"
	"zoomgo/pkg/sms"
)

const approvalMessage = "Ride confirmed and approved."

// RiderTopic is the push topic every device of a rider is subscribed to.
func RiderTopic(riderID string) string {
	return "rider_" + riderID
}

// ProfileLookup is the slice of ProfileService the notifier reads contact
// details from.
type ProfileLookup interface {
	ProfileByUID(ctx context.Context, uid string) (*models.Profile, error)
}

// BookingNotifier signals riders after their booking is approved. Delivery
// is best effort and never changes the approval outcome.
type BookingNotifier interface {
	NotifyApproved(ctx context.Context, booking *models.Booking) error
	RegisterDevice(ctx context.Context, riderID, pushToken string) error
}

type bookingNotifier struct {
	pushProviders []push.PushProvider
	smsProvider   sms.SMSProvider
	profiles      ProfileLookup
	policy        DefaultProfilePolicy
	logger        *logger.Logger
}

// NewBookingNotifier accepts nil smsProvider and no push providers; a
// notifier with neither does nothing.
func NewBookingNotifier(profiles ProfileLookup, policy DefaultProfilePolicy, smsProvider sms.SMSProvider, log *logger.Logger, pushProviders ...push.PushProvider) BookingNotifier {
	if log == nil {
		log = logger.Discard()
	}
	return &bookingNotifier{
		pushProviders: pushProviders,
		smsProvider:   smsProvider,
		profiles:      profiles,
		policy:        policy,
		logger:        log,
	}
}

func (n *bookingNotifier) NotifyApproved(ctx context.Context, booking *models.Booking) error {
	if booking == nil || booking.Status != models.BookingStatusApproved {
		return nil
	}
	log := n.logger.WithContext(ctx).WithBookingID(booking.ID).WithUserID(booking.RiderID)

	var profile *models.Profile
	if n.profiles != nil {
		p, err := n.profiles.ProfileByUID(ctx, booking.RiderID)
		if err != nil {
			log.WithError(err).Warn("Failed to load rider profile for notification")
		}
		profile = p
	}

	var errs []error
	for _, provider := range n.pushProviders {
		result, err := provider.Send(ctx, n.approvalPush(booking, profile))
		if errors.Is(err, push.ErrTopicsUnsupported) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
			continue
		}
		log.WithField("provider", result.Provider).WithField("message_id", result.MessageID).Info("Approval push sent")
	}

	if n.smsProvider != nil && n.policy.HasPhone(profile) {
		result, err := n.smsProvider.SendSMS(ctx, &sms.SMSRequest{
			To:      profile.Phone,
			Message: approvalMessage,
			Type:    "transactional",
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.smsProvider.Name(), err))
		} else {
			log.WithField("provider", result.Provider).WithField("message_id", result.MessageID).
				WithField("phone", profile.Phone).Info("Approval sms sent")
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		log.WithError(err).Warn("Approval notification partially failed")
	}
	return err
}

// RegisterDevice subscribes a device token to the rider's topic on every
// provider that supports topics.
func (n *bookingNotifier) RegisterDevice(ctx context.Context, riderID, pushToken string) error {
	if riderID == "" || pushToken == "" {
		return nil
	}

	var errs []error
	for _, provider := range n.pushProviders {
		subscriber, ok := provider.(push.TopicSubscriber)
		if !ok {
			continue
		}
		if err := subscriber.SubscribeToTopic(ctx, []string{pushToken}, RiderTopic(riderID)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		n.logger.WithContext(ctx).WithUserID(riderID).WithError(err).Warn("Failed to register device for rider topic")
	}
	return err
}

func (n *bookingNotifier) approvalPush(booking *models.Booking, profile *models.Profile) *push.Notification {
	notification := &push.Notification{
		Topic: RiderTopic(booking.RiderID),
		Title: "ZoomGo",
		Body:  approvalMessage,
		Data: map[string]string{
			"bookingId": booking.ID,
			"status":    string(booking.Status),
		},
		Sound:        "default",
		HighPriority: true,
		CollapseKey:  "booking-" + booking.ID,
	}
	if booking.Price != nil {
		notification.Data["price"] = fmt.Sprintf("%.2f", *booking.Price)
	}
	if profile != nil && profile.PushToken != "" {
		notification.Token = profile.PushToken
	}
	return notification
}
