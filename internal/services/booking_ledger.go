package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"zoomgo/internal/models"
	"zoomgo/internal/repositories/interfaces"
	"zoomgo/pkg/logger"
)

// Authenticator reports who is making the current call.
type Authenticator interface {
	CurrentUserID(ctx context.Context) (string, bool)
}

// CancelFunc ends a booking subscription. It is safe to call more than once.
type CancelFunc func()

type BookingLedger interface {
	// Booking lifecycle
	RequestBooking(ctx context.Context, riderID, pickup, destination string, rideType models.RideType) (*models.Booking, error)
	Approve(ctx context.Context, bookingID string, price float64) (*models.Booking, error)

	// Owner-partitioned reads
	ListBookings(ctx context.Context, riderID string) ([]models.Booking, error)
	Subscribe(ctx context.Context, riderID string, onChange func([]models.Booking)) (CancelFunc, error)
}

type bookingLedger struct {
	store  interfaces.DocumentStore
	auth   Authenticator
	logger *logger.Logger
}

func NewBookingLedger(store interfaces.DocumentStore, auth Authenticator, log *logger.Logger) BookingLedger {
	if log == nil {
		log = logger.Discard()
	}
	return &bookingLedger{
		store:  store,
		auth:   auth,
		logger: log,
	}
}

func (l *bookingLedger) RequestBooking(ctx context.Context, riderID, pickup, destination string, rideType models.RideType) (*models.Booking, error) {
	if err := l.authorizeRider(ctx, riderID); err != nil {
		return nil, err
	}

	pickup = strings.TrimSpace(pickup)
	destination = strings.TrimSpace(destination)
	if pickup == "" {
		return nil, newError(ErrInvalidInput, "pickup location is required")
	}
	if destination == "" {
		return nil, newError(ErrInvalidInput, "destination is required")
	}
	if !rideType.IsValid() {
		return nil, newError(ErrInvalidRideType, "ride type must be one of Standard, Premium or XL")
	}

	doc, err := l.store.Create(ctx, models.BookingsCollection, interfaces.Fields{
		models.BookingFieldRiderID:     riderID,
		models.BookingFieldPickup:      pickup,
		models.BookingFieldDestination: destination,
		models.BookingFieldRideType:    string(rideType),
		models.BookingFieldStatus:      string(models.BookingStatusPending),
	})
	if err != nil {
		l.logger.WithContext(ctx).WithError(err).Error("Failed to create booking")
		return nil, storeError("failed to create booking", err)
	}

	booking := decodeBooking(doc)
	l.logger.WithContext(ctx).LogBookingEvent(booking.ID, "requested", map[string]interface{}{
		"rider_id":  booking.RiderID,
		"ride_type": booking.RideType,
	})

	return &booking, nil
}

func (l *bookingLedger) Approve(ctx context.Context, bookingID string, price float64) (*models.Booking, error) {
	callerID, ok := l.auth.CurrentUserID(ctx)
	if !ok {
		return nil, newError(ErrUnauthenticated, "sign in to approve a booking")
	}
	if err := validatePrice(price); err != nil {
		return nil, err
	}

	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, newError(ErrNotFound, "booking not found")
	}

	doc, err := l.store.Get(ctx, models.BookingsCollection, bookingID)
	if err != nil {
		if errors.Is(err, interfaces.ErrDocumentNotFound) {
			return nil, newError(ErrNotFound, "booking not found")
		}
		l.logger.WithContext(ctx).WithBookingID(bookingID).WithError(err).Error("Failed to load booking")
		return nil, storeError("failed to load booking", err)
	}

	booking := decodeBooking(doc)
	if booking.RiderID != callerID {
		return nil, newError(ErrNotFound, "booking not found")
	}
	if !booking.IsPending() {
		return nil, newError(ErrInvalidTransition, "booking is already approved")
	}

	// Two approvals racing on one booking both pass the pending check above
	// and the later write wins.
	err = l.store.Update(ctx, models.BookingsCollection, bookingID, interfaces.Fields{
		models.BookingFieldStatus: string(models.BookingStatusApproved),
		models.BookingFieldPrice:  price,
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrDocumentNotFound) {
			return nil, newError(ErrNotFound, "booking not found")
		}
		l.logger.WithContext(ctx).WithBookingID(bookingID).WithError(err).Error("Failed to approve booking")
		return nil, storeError("failed to approve booking", err)
	}

	booking.Status = models.BookingStatusApproved
	booking.Price = &price

	l.logger.WithContext(ctx).LogBookingEvent(booking.ID, "approved", map[string]interface{}{
		"rider_id": booking.RiderID,
		"price":    price,
	})

	return &booking, nil
}

func (l *bookingLedger) ListBookings(ctx context.Context, riderID string) ([]models.Booking, error) {
	if err := l.authorizeRider(ctx, riderID); err != nil {
		return nil, err
	}

	docs, err := l.store.Query(ctx, models.BookingsCollection, interfaces.Eq(models.BookingFieldRiderID, riderID))
	if err != nil {
		l.logger.WithContext(ctx).WithError(err).Error("Failed to list bookings")
		return nil, storeError("failed to list bookings", err)
	}

	return riderBookings(docs, riderID), nil
}

func (l *bookingLedger) Subscribe(ctx context.Context, riderID string, onChange func([]models.Booking)) (CancelFunc, error) {
	if err := l.authorizeRider(ctx, riderID); err != nil {
		return nil, err
	}
	if onChange == nil {
		return nil, newError(ErrInvalidInput, "subscription callback is required")
	}

	var cancelled atomic.Bool
	unsubscribe, err := l.store.Watch(ctx, models.BookingsCollection, interfaces.Eq(models.BookingFieldRiderID, riderID),
		func(docs []interfaces.Document) {
			if cancelled.Load() {
				return
			}
			onChange(riderBookings(docs, riderID))
		})
	if err != nil {
		l.logger.WithContext(ctx).WithError(err).Error("Failed to watch bookings")
		return nil, storeError("failed to watch bookings", err)
	}

	l.logger.WithContext(ctx).WithUserID(riderID).Debug("Booking subscription started")

	var once sync.Once
	return func() {
		once.Do(func() {
			cancelled.Store(true)
			unsubscribe()
			l.logger.WithUserID(riderID).Debug("Booking subscription cancelled")
		})
	}, nil
}

// authorizeRider checks that the caller is signed in and acts for riderID.
func (l *bookingLedger) authorizeRider(ctx context.Context, riderID string) error {
	callerID, ok := l.auth.CurrentUserID(ctx)
	if !ok {
		return newError(ErrUnauthenticated, "sign in to manage bookings")
	}
	if riderID == "" {
		return newError(ErrUnauthenticated, "rider id is required")
	}
	if riderID != callerID {
		l.logger.WithContext(ctx).LogSecurityEvent("cross_rider_access", "medium", map[string]interface{}{
			"caller_id": callerID,
			"rider_id":  riderID,
		})
		return newError(ErrForbidden, "bookings belong to another rider")
	}
	return nil
}

// ParsePrice converts a human-entered amount such as "25.00" or "$25" into
// an approval price.
func ParsePrice(text string) (float64, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimSpace(strings.TrimPrefix(text, "$"))
	if text == "" {
		return 0, newError(ErrInvalidPrice, "price is required")
	}

	price, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, &LedgerError{Kind: ErrInvalidPrice, Message: "price must be a number", Err: err}
	}
	if err := validatePrice(price); err != nil {
		return 0, err
	}
	return price, nil
}

func validatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return newError(ErrInvalidPrice, "price must be a finite number")
	}
	if price <= 0 {
		return newError(ErrInvalidPrice, "price must be greater than zero")
	}
	return nil
}

// riderBookings decodes docs, drops any not owned by riderID and orders the
// rest by request time. Bookings requested at the same instant keep the
// store's insertion order.
func riderBookings(docs []interfaces.Document, riderID string) []models.Booking {
	bookings := make([]models.Booking, 0, len(docs))
	for _, doc := range docs {
		booking := decodeBooking(doc)
		if booking.RiderID != riderID {
			continue
		}
		bookings = append(bookings, booking)
	}

	sort.SliceStable(bookings, func(i, j int) bool {
		return bookings[i].RequestedAt.Before(bookings[j].RequestedAt)
	})

	return bookings
}

func decodeBooking(doc interfaces.Document) models.Booking {
	booking := models.Booking{
		ID:          doc.ID,
		RiderID:     stringField(doc.Fields, models.BookingFieldRiderID),
		Pickup:      stringField(doc.Fields, models.BookingFieldPickup),
		Destination: stringField(doc.Fields, models.BookingFieldDestination),
		RideType:    models.RideType(stringField(doc.Fields, models.BookingFieldRideType)),
		Status:      models.BookingStatus(stringField(doc.Fields, models.BookingFieldStatus)),
		RequestedAt: doc.CreatedAt,
	}
	if booking.Status == models.BookingStatusApproved {
		if price, ok := floatField(doc.Fields, models.BookingFieldPrice); ok {
			booking.Price = &price
		}
	}
	return booking
}

func stringField(fields interfaces.Fields, key string) string {
	value, _ := fields[key].(string)
	return value
}

// floatField reads a number whichever numeric type the backing store
// decoded it as.
func floatField(fields interfaces.Fields, key string) (float64, bool) {
	switch v := fields[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
