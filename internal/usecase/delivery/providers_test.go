package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/infra/notifier"
)

func TestEmailProvider(t *testing.T) {
	mailer := &fakeMailer{configured: true}
	p := NewEmailProvider(mailer)
	p.now = fixedNow
	env := Envelope{
		Request:   entity.DeliveryRequest{Body: "See you"},
		Recipient: &entity.Recipient{Email: "ana@example.com"},
		Event:     &entity.Event{Name: "Spring Gala"},
	}

	assert.True(t, p.IsConfigured())
	assert.True(t, p.CanDeliver(env))
	assert.False(t, p.CanDeliver(Envelope{Recipient: &entity.Recipient{Email: "not-an-address"}}))

	res := p.Deliver(context.Background(), env)
	assert.True(t, res.Success)
	assert.Equal(t, "<mail-1@example.com>", res.ProviderID)
	assert.Equal(t, []string{"ana@example.com|Message from Spring Gala"}, mailer.sent)
}

func TestSMSProvider_PermanentErrorsDoNotOpenCircuit(t *testing.T) {
	sender := &fakeTextSender{configured: true, err: &notifier.ClientError{Provider: "twilio", StatusCode: 400, Message: "invalid number"}}
	p := NewSMSProvider(sender)
	env := Envelope{Request: entity.DeliveryRequest{Body: "x"}, Recipient: threePhoneRecipient()}

	for i := 0; i < 20; i++ {
		res := p.Deliver(context.Background(), env)
		require.False(t, res.Success)
		assert.Contains(t, res.Error, "invalid number")
	}
	assert.False(t, p.Circuit().IsOpen())
	assert.Len(t, sender.to, 20)
}

func TestSMSProvider_UsesDestination(t *testing.T) {
	sender := &fakeTextSender{configured: true}
	p := NewSMSProvider(sender)
	req := entity.DeliveryRequest{Body: "x"}.WithDestination("+1 (555) 000-0002", "")

	res := p.Deliver(context.Background(), Envelope{Request: req, Recipient: threePhoneRecipient()})

	assert.True(t, res.Success)
	assert.Equal(t, []string{"+15550000002"}, sender.to)
}

func TestChatCloudProvider(t *testing.T) {
	sender := &fakeChatSender{}
	p := NewChatCloudProvider(sender, "pt_BR")
	event := &entity.Event{ChatCloudEnabled: true, ChatCloudToken: "tok", ChatCloudPhoneID: "1055"}
	env := Envelope{
		Request:   entity.DeliveryRequest{Title: "Gala", TemplateName: "gala_invite"}.WithDestination("+15550000001", "Ana"),
		Recipient: threePhoneRecipient(),
		Event:     event,
	}

	require.True(t, p.CanDeliver(env))
	res := p.Deliver(context.Background(), env)

	assert.True(t, res.Success)
	assert.Equal(t, notifier.ChatCredentials{Token: "tok", PhoneNumberID: "1055"}, sender.creds[0])
	assert.Equal(t, "gala_invite", sender.msgs[0].TemplateName)
	assert.Equal(t, "pt_BR", sender.msgs[0].Language)

	env.Event = &entity.Event{}
	assert.False(t, p.CanDeliver(env))
	res = p.Deliver(context.Background(), env)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not enabled")
}

func TestChatDeviceProvider_OpenCircuitIsRecorded(t *testing.T) {
	bridge := &fakeBridge{configured: true, err: errors.New("device offline")}
	p := NewChatDeviceProvider(bridge)
	env := Envelope{Request: entity.DeliveryRequest{MessageID: "m1", RecipientID: 42, Body: "x"}, Recipient: threePhoneRecipient()}

	d := newTestDispatcher(p)
	first := d.Dispatch(context.Background(), env, entity.ChannelChatDevice)
	assert.False(t, first.Success)
	assert.Equal(t, 3, bridge.calls)
	require.True(t, p.Circuit().IsOpen())
	assert.False(t, p.IsConfigured())

	second := d.Dispatch(context.Background(), env, entity.ChannelChatDevice)
	assert.True(t, second.Recorded())
	assert.Equal(t, "CHAT_APP_DEVICE_RECORDED", second.Status)
	assert.Equal(t, 3, bridge.calls, "no calls while the bridge is unreachable")
}

func TestNoticeProvider(t *testing.T) {
	store := &fakeNotices{}
	p := NewNoticeProvider(store)
	p.now = fixedNow

	res := p.Deliver(context.Background(), Envelope{Request: entity.DeliveryRequest{MessageID: "m1", RecipientID: 3, Title: "t"}})

	assert.True(t, res.Success)
	require.Len(t, store.saved, 1)
	assert.Equal(t, res.ProviderID, store.saved[0].ID)
	assert.Equal(t, entity.ChannelInternal, store.saved[0].Channel)

	store.err = errors.New("disk full")
	res = p.Deliver(context.Background(), Envelope{Request: entity.DeliveryRequest{MessageID: "m2", RecipientID: 3}})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "disk full")
}

func TestRegistry_ChannelHealth(t *testing.T) {
	reg := NewRegistry(
		NewNoticeProvider(&fakeNotices{}),
		NewSMSProvider(&fakeTextSender{}),
		NewEmailProvider(&fakeMailer{configured: true}),
		nil,
	)

	health := reg.ChannelHealth()

	require.Len(t, health, 3)
	assert.Equal(t, entity.ChannelEmail, health[0].Channel)
	assert.True(t, health[0].Configured)
	assert.Equal(t, "closed", health[0].Circuit)
	assert.Equal(t, entity.ChannelSMS, health[1].Channel)
	assert.False(t, health[1].Configured)
	assert.Equal(t, entity.ChannelInternal, health[2].Channel)
	assert.Empty(t, health[2].Circuit)
	assert.True(t, reg.Healthy())
}
