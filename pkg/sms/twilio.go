package sms

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type TwilioProvider struct {
	client     *twilio.RestClient
	fromNumber string
}

func NewTwilioProvider(accountSID, authToken, fromNumber string) *TwilioProvider {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioProvider{
		client:     client,
		fromNumber: fromNumber,
	}
}

func (t *TwilioProvider) Name() string {
	return "twilio"
}

func (t *TwilioProvider) SendSMS(ctx context.Context, request *SMSRequest) (*SMSResponse, error) {
	if request.To == "" {
		return nil, ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := t.client.Api.CreateMessage(t.messageParams(request))
	if err != nil {
		return nil, fmt.Errorf("failed to send twilio message: %w", err)
	}

	response := &SMSResponse{Provider: t.Name(), Status: "queued"}
	if resp.Sid != nil {
		response.MessageID = *resp.Sid
	}
	if resp.Status != nil {
		response.Status = string(*resp.Status)
	}
	return response, nil
}

func (t *TwilioProvider) messageParams(request *SMSRequest) *api.CreateMessageParams {
	from := request.From
	if from == "" {
		from = t.fromNumber
	}

	params := &api.CreateMessageParams{}
	params.SetTo(request.To)
	params.SetFrom(from)
	params.SetBody(request.Message)
	return params
}
