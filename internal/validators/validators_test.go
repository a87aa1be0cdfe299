package validators

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBookingRequest(t *testing.T) {
	errs := ValidateBookingRequest(&BookingRequest{Pickup: "5th Ave", Destination: "Airport", RideType: "Standard"})
	assert.Empty(t, errs)

	errs = ValidateBookingRequest(&BookingRequest{Pickup: "  ", Destination: "Airport", RideType: "Luxury"})
	require.Len(t, errs, 2)
	assert.Equal(t, "pickup is required", errs.Details()["pickup"])
	assert.True(t, errs.HasTag("ride_type"))
	assert.Contains(t, errs.Details(), "rideType")
}

func TestPriceInput_AcceptsNumbersAndStrings(t *testing.T) {
	testCases := map[string]string{
		`{"price": 42.5}`:    "42.5",
		`{"price": "25.00"}`: "25.00",
		`{"price": "$12"}`:   "$12",
		`{"price": null}`:    "",
		`{}`:                 "",
		`{"price": 1e2}`:     "1e2",
	}

	for body, want := range testCases {
		var req ApproveBookingRequest
		require.NoError(t, json.Unmarshal([]byte(body), &req), body)
		assert.Equal(t, want, req.Price.Text, body)
	}
}

func TestPriceInput_RejectsOtherTypes(t *testing.T) {
	for _, body := range []string{`{"price": true}`, `{"price": [1]}`, `{"price": {"amount": 1}}`} {
		var req ApproveBookingRequest
		assert.Error(t, json.Unmarshal([]byte(body), &req), body)
	}
}

func TestValidateUpdateContact(t *testing.T) {
	assert.Empty(t, ValidateUpdateContact(&UpdateContactRequest{Phone: "+15550100"}))
	assert.Empty(t, ValidateUpdateContact(&UpdateContactRequest{PushToken: "token"}))

	errs := ValidateUpdateContact(&UpdateContactRequest{Phone: "555-0100"})
	assert.Equal(t, "Invalid phone number format", errs.Details()["phone"])

	errs = ValidateUpdateContact(&UpdateContactRequest{})
	assert.True(t, errs.HasTag("required_without"))
}

func TestCreateProfileRequest(t *testing.T) {
	assert.Empty(t, ValidateStruct(&CreateProfileRequest{Name: "Ada", Email: "ada@example.com"}))

	errs := ValidateStruct(&CreateProfileRequest{Name: "Ada", Email: "not-an-email"})
	assert.Equal(t, "Invalid email format", errs.Details()["email"])
}
