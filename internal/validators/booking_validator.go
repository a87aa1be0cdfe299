package validators

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type BookingRequest struct {
	Pickup      string `json:"pickup" validate:"not_blank,max=200"`
	Destination string `json:"destination" validate:"not_blank,max=200"`
	RideType    string `json:"rideType" validate:"required,ride_type"`
}

type ApproveBookingRequest struct {
	Price PriceInput `json:"price"`
}

// PriceInput accepts a price sent as a JSON number or as the text the
// rider typed, such as "25.00" or "$25".
type PriceInput struct {
	Text string
}

func (p *PriceInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		p.Text = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &p.Text)
	}

	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("price must be a number or a string")
	}
	if _, err := strconv.ParseFloat(number.String(), 64); err != nil {
		return fmt.Errorf("price must be a number or a string")
	}
	p.Text = number.String()
	return nil
}

func ValidateBookingRequest(req *BookingRequest) ValidationErrors {
	return ValidateStruct(req)
}
