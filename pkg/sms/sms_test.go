package sms

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSNSPublishInput_CarriesMessage(t *testing.T) {
	provider := &AWSSNSProvider{senderID: "ZoomGo"}

	input := provider.publishInput(&SMSRequest{To: "+15550100", Message: "Ride confirmed and approved."})

	assert.Equal(t, "+15550100", aws.ToString(input.PhoneNumber))
	assert.Equal(t, "Ride confirmed and approved.", aws.ToString(input.Message))
	assert.Equal(t, "Transactional", aws.ToString(input.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue))
	assert.Equal(t, "ZoomGo", aws.ToString(input.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue))
}

func TestSNSPublishInput_Promotional(t *testing.T) {
	provider := &AWSSNSProvider{}

	input := provider.publishInput(&SMSRequest{To: "+15550100", Message: "hi", Type: "promotional"})

	assert.Equal(t, "Promotional", aws.ToString(input.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue))
	_, ok := input.MessageAttributes["AWS.SNS.SMS.SenderID"]
	assert.False(t, ok)
}

func TestTwilioMessageParams_DefaultsFromNumber(t *testing.T) {
	provider := NewTwilioProvider("AC123", "token", "+15550199")

	params := provider.messageParams(&SMSRequest{To: "+15550100", Message: "hi"})
	require.NotNil(t, params.From)
	assert.Equal(t, "+15550199", *params.From)
	assert.Equal(t, "hi", *params.Body)

	params = provider.messageParams(&SMSRequest{To: "+15550100", From: "+15550142", Message: "hi"})
	assert.Equal(t, "+15550142", *params.From)
}

func TestProviders_RequireRecipient(t *testing.T) {
	_, err := NewTwilioProvider("AC123", "token", "+15550199").SendSMS(context.Background(), &SMSRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrNoRecipient)

	_, err = (&AWSSNSProvider{}).SendSMS(context.Background(), &SMSRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrNoRecipient)
}
