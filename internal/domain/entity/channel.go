package entity

import (
	"fmt"
	"strings"
)

// Channel is a delivery mode. The set is closed; providers are registered per channel.
type Channel string

const (
	ChannelEmail      Channel = "EMAIL"
	ChannelSMS        Channel = "SMS"
	ChannelChatCloud  Channel = "CHAT_APP_CLOUD"
	ChannelChatDevice Channel = "CHAT_APP_DEVICE"
	ChannelInternal   Channel = "INTERNAL"
	ChannelExternal   Channel = "EXTERNAL"
)

// AllChannels lists every channel in a stable order.
var AllChannels = []Channel{
	ChannelEmail,
	ChannelSMS,
	ChannelChatCloud,
	ChannelChatDevice,
	ChannelInternal,
	ChannelExternal,
}

// FallbackOrder is the order channels are probed when no preference is deliverable.
// The internal channel is the final default and is not probed.
var FallbackOrder = []Channel{ChannelEmail, ChannelSMS}

// ParseChannel converts user input (case-insensitive) into a Channel.
// An empty string yields the empty Channel, meaning "no preference".
func ParseChannel(s string) (Channel, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	c := Channel(s)
	if !c.Valid() {
		return "", &ValidationError{Field: "channel", Message: fmt.Sprintf("unknown channel %q", s)}
	}
	return c, nil
}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	for _, known := range AllChannels {
		if c == known {
			return true
		}
	}
	return false
}

// PhoneAddressed reports whether delivery on c targets phone numbers and therefore
// fans out across every registered number of the recipient.
func (c Channel) PhoneAddressed() bool {
	switch c {
	case ChannelSMS, ChannelChatCloud, ChannelChatDevice:
		return true
	default:
		return false
	}
}

// AutoSelectable reports whether the resolver may pick c without an explicit request.
// The device bridge needs a physically connected phone and external delivery is a
// human action, so both must be asked for.
func (c Channel) AutoSelectable() bool {
	return c != ChannelChatDevice && c != ChannelExternal
}

// RecordedStatus is the status reported when a provider is not configured and the
// send is recorded for manual follow-up.
func (c Channel) RecordedStatus() string {
	return string(c) + "_RECORDED"
}

// MessageKind distinguishes invitations from free-form messages.
type MessageKind string

const (
	KindInvitation MessageKind = "INVITATION"
	KindMessage    MessageKind = "MESSAGE"
)

// ParseMessageKind converts input into a MessageKind, defaulting to KindMessage.
func ParseMessageKind(s string) (MessageKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(KindMessage):
		return KindMessage, nil
	case string(KindInvitation):
		return KindInvitation, nil
	default:
		return "", &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown message kind %q", s)}
	}
}
