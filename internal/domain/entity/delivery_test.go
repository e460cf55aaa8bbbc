package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryRequest_WithDestination_DoesNotMutateOriginal(t *testing.T) {
	orig := DeliveryRequest{MessageID: "m1", RecipientID: 42, Body: "hi"}

	copy1 := orig.WithDestination("+15550001", "Ana")
	copy2 := orig.WithDestination("+15550002", "Ana (work)")

	assert.Nil(t, orig.Destination)
	assert.Equal(t, "+15550001", copy1.Destination.Phone)
	assert.Equal(t, "+15550002", copy2.Destination.Phone)
	assert.Equal(t, "Ana (work)", copy2.Destination.DisplayName)
	assert.Equal(t, "m1", copy2.MessageID)
}

func TestDeliveryRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     DeliveryRequest
		wantErr bool
	}{
		{"valid", DeliveryRequest{RecipientID: 1, Body: "x"}, false},
		{"title only", DeliveryRequest{RecipientID: 1, Title: "x"}, false},
		{"missing recipient", DeliveryRequest{Body: "x"}, true},
		{"empty content", DeliveryRequest{RecipientID: 1}, true},
		{"bad channel", DeliveryRequest{RecipientID: 1, Body: "x", PreferredChannel: "FAX"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResultConstructors(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	sent := SentResult(ChannelEmail, "smtp-1", now)
	assert.True(t, sent.Success)
	assert.Equal(t, ResultStatusSent, sent.Status)
	assert.False(t, sent.Recorded())

	failed := FailedResult(ChannelSMS, "gateway down", now)
	assert.False(t, failed.Success)
	assert.Equal(t, ResultStatusFailed, failed.Status)
	assert.Equal(t, "gateway down", failed.Error)

	rec := RecordedResult(ChannelChatDevice, "abc", now)
	assert.True(t, rec.Success)
	assert.Equal(t, "CHAT_APP_DEVICE_RECORDED", rec.Status)
	assert.Equal(t, "MANUAL-abc", rec.ProviderID)
	assert.True(t, rec.Recorded())
}
