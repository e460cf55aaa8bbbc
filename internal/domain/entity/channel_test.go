package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannel(t *testing.T) {
	tests := []struct {
		in      string
		want    Channel
		wantErr bool
	}{
		{"", "", false},
		{"email", ChannelEmail, false},
		{" SMS ", ChannelSMS, false},
		{"chat_app_cloud", ChannelChatCloud, false},
		{"CHAT_APP_DEVICE", ChannelChatDevice, false},
		{"internal", ChannelInternal, false},
		{"external", ChannelExternal, false},
		{"fax", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChannel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidationFailed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChannel_Properties(t *testing.T) {
	tests := []struct {
		ch             Channel
		phoneAddressed bool
		autoSelectable bool
	}{
		{ChannelEmail, false, true},
		{ChannelSMS, true, true},
		{ChannelChatCloud, true, true},
		{ChannelChatDevice, true, false},
		{ChannelInternal, false, true},
		{ChannelExternal, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.ch), func(t *testing.T) {
			assert.True(t, tt.ch.Valid())
			assert.Equal(t, tt.phoneAddressed, tt.ch.PhoneAddressed())
			assert.Equal(t, tt.autoSelectable, tt.ch.AutoSelectable())
		})
	}
}

func TestChannel_RecordedStatus(t *testing.T) {
	assert.Equal(t, "SMS_RECORDED", ChannelSMS.RecordedStatus())
	assert.Equal(t, "CHAT_APP_DEVICE_RECORDED", ChannelChatDevice.RecordedStatus())
}

func TestFallbackOrder_NeverIncludesManualChannels(t *testing.T) {
	for _, ch := range FallbackOrder {
		assert.True(t, ch.AutoSelectable(), "%s must not be a fallback target", ch)
	}
	assert.Equal(t, []Channel{ChannelEmail, ChannelSMS}, FallbackOrder)
}

func TestParseMessageKind(t *testing.T) {
	k, err := ParseMessageKind("")
	require.NoError(t, err)
	assert.Equal(t, KindMessage, k)

	k, err = ParseMessageKind("invitation")
	require.NoError(t, err)
	assert.Equal(t, KindInvitation, k)

	_, err = ParseMessageKind("postcard")
	assert.Error(t, err)
}
