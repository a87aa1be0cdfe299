package sms

import (
	"context"
	"errors"
)

var ErrNoRecipient = errors.New("sms has no recipient")

type SMSProvider interface {
	SendSMS(ctx context.Context, request *SMSRequest) (*SMSResponse, error)
	Name() string
}

type SMSRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
	Type    string `json:"type"` // transactional, promotional
}

type SMSResponse struct {
	Provider  string `json:"provider"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}
