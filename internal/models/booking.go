package models

import (
	"time"
)

type BookingStatus string
type RideType string

const (
	BookingStatusPending  BookingStatus = "Pending"
	BookingStatusApproved BookingStatus = "Approved"

	RideTypeStandard RideType = "Standard"
	RideTypePremium  RideType = "Premium"
	RideTypeXL       RideType = "XL"
)

// BookingsCollection is the store collection holding ride requests.
const BookingsCollection = "rideRequests"

// Document field names of a booking record.
const (
	BookingFieldRiderID     = "riderId"
	BookingFieldPickup      = "pickup"
	BookingFieldDestination = "destination"
	BookingFieldRideType    = "rideType"
	BookingFieldStatus      = "status"
	BookingFieldPrice       = "price"
)

// RideTypes lists the ride types a rider can request, in display order.
var RideTypes = []RideType{RideTypeStandard, RideTypePremium, RideTypeXL}

func (t RideType) IsValid() bool {
	for _, known := range RideTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Booking is a single ride request and its approval state. Price is nil
// while the booking is pending.
type Booking struct {
	ID          string        `json:"id"`
	RiderID     string        `json:"riderId"`
	Pickup      string        `json:"pickup"`
	Destination string        `json:"destination"`
	RideType    RideType      `json:"rideType"`
	Status      BookingStatus `json:"status"`
	Price       *float64      `json:"price,omitempty"`
	RequestedAt time.Time     `json:"requestedAt"`
}

func (b *Booking) IsPending() bool {
	return b.Status == BookingStatusPending
}
