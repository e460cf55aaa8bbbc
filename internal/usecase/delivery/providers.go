package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/infra/notifier"
	"guest-delivery/internal/observability/logging"
	"guest-delivery/internal/observability/metrics"
	"guest-delivery/internal/repository"
	"guest-delivery/internal/resilience/circuitbreaker"
)

// breakerBase runs transport calls through a circuit breaker and converts the outcome
// into a DeliveryResult.
type breakerBase struct {
	channel entity.Channel
	cb      *circuitbreaker.CircuitBreaker
	now     func() time.Time
}

func newBreakerBase(ch entity.Channel, cfg circuitbreaker.Config) breakerBase {
	cfg.IgnoreError = notifier.IsPermanent
	return breakerBase{channel: ch, cb: circuitbreaker.New(cfg), now: time.Now}
}

// Channel implements Provider.
func (b *breakerBase) Channel() entity.Channel { return b.channel }

// Circuit exposes the breaker to the registry health report.
func (b *breakerBase) Circuit() *circuitbreaker.CircuitBreaker { return b.cb }

func (b *breakerBase) attempt(ctx context.Context, send func() (string, error)) entity.DeliveryResult {
	start := time.Now()
	out, err := b.cb.Execute(func() (interface{}, error) { return send() })
	metrics.RecordDeliveryDuration(b.channel, time.Since(start))

	if err != nil {
		msg := logging.SanitizeError(err)
		if circuitbreaker.IsOpenError(err) {
			msg = fmt.Sprintf("%s provider unavailable: circuit %s", b.channel, b.cb.State())
		}
		logging.FromContext(ctx).Warn("provider attempt failed",
			slog.String("channel", string(b.channel)),
			slog.Bool("permanent", notifier.IsPermanent(err)),
			slog.String("error", msg))
		return entity.FailedResult(b.channel, msg, b.now())
	}
	id, _ := out.(string)
	return entity.SentResult(b.channel, id, b.now())
}

func (b *breakerBase) fail(msg string) entity.DeliveryResult {
	return entity.FailedResult(b.channel, msg, b.now())
}

// EmailProvider delivers over SMTP to the recipient's mail address.
type EmailProvider struct {
	breakerBase
	mailer notifier.Mailer
}

// NewEmailProvider wraps mailer.
func NewEmailProvider(mailer notifier.Mailer) *EmailProvider {
	return &EmailProvider{breakerBase: newBreakerBase(entity.ChannelEmail, circuitbreaker.MailConfig()), mailer: mailer}
}

func (p *EmailProvider) IsConfigured() bool { return p.mailer != nil && p.mailer.Configured() }

// CanDeliver requires a syntactically valid mail address on file.
func (p *EmailProvider) CanDeliver(env Envelope) bool {
	return env.Recipient.HasEmail() && entity.ValidateEmail(env.Recipient.Email) == nil
}

func (p *EmailProvider) Deliver(ctx context.Context, env Envelope) entity.DeliveryResult {
	if !p.CanDeliver(env) {
		return p.fail("recipient has no valid email address")
	}
	subject := env.Request.Title
	if subject == "" && env.Event != nil {
		subject = "Message from " + env.Event.Name
	}
	return p.attempt(ctx, func() (string, error) {
		return p.mailer.SendMail(ctx, env.Recipient.Email, subject, env.Request.Body)
	})
}

// SMSProvider delivers text messages to one phone number per call.
type SMSProvider struct {
	breakerBase
	sender notifier.TextSender
}

// NewSMSProvider wraps sender.
func NewSMSProvider(sender notifier.TextSender) *SMSProvider {
	return &SMSProvider{breakerBase: newBreakerBase(entity.ChannelSMS, circuitbreaker.SMSConfig()), sender: sender}
}

func (p *SMSProvider) IsConfigured() bool { return p.sender != nil && p.sender.Configured() }

func (p *SMSProvider) CanDeliver(env Envelope) bool {
	return env.Phone() != ""
}

func (p *SMSProvider) Deliver(ctx context.Context, env Envelope) entity.DeliveryResult {
	to := env.Phone()
	if to == "" {
		return p.fail(noPhoneNumbersMessage)
	}
	return p.attempt(ctx, func() (string, error) {
		return p.sender.SendText(ctx, entity.NormalizePhoneNumber(to), env.Text())
	})
}

// ChatCloudProvider delivers through the chat-app cloud API with the event's credentials.
type ChatCloudProvider struct {
	breakerBase
	sender   notifier.ChatSender
	language string
}

// NewChatCloudProvider wraps sender. language is the template language code ("en" when empty).
func NewChatCloudProvider(sender notifier.ChatSender, language string) *ChatCloudProvider {
	return &ChatCloudProvider{
		breakerBase: newBreakerBase(entity.ChannelChatCloud, circuitbreaker.ChatCloudConfig()),
		sender:      sender,
		language:    language,
	}
}

// IsConfigured reports whether a client exists. Credentials are per event and checked by CanDeliver.
func (p *ChatCloudProvider) IsConfigured() bool { return p.sender != nil }

func (p *ChatCloudProvider) CanDeliver(env Envelope) bool {
	return env.Event.ChatCloudReady() && env.Phone() != ""
}

func (p *ChatCloudProvider) Deliver(ctx context.Context, env Envelope) entity.DeliveryResult {
	if !env.Event.ChatCloudReady() {
		return p.fail("chat-app cloud API is not enabled for this event")
	}
	to := env.Phone()
	if to == "" {
		return p.fail(noPhoneNumbersMessage)
	}
	creds := notifier.ChatCredentials{Token: env.Event.ChatCloudToken, PhoneNumberID: env.Event.ChatCloudPhoneID}
	msg := notifier.ChatMessage{
		To:           entity.NormalizePhoneNumber(to),
		Body:         env.Text(),
		TemplateName: env.Request.TemplateName,
		Language:     p.language,
	}
	return p.attempt(ctx, func() (string, error) {
		return p.sender.SendChat(ctx, creds, msg)
	})
}

// ChatDeviceProvider delivers through a phone paired with the device bridge.
type ChatDeviceProvider struct {
	breakerBase
	sender notifier.BridgeSender
}

// NewChatDeviceProvider wraps sender.
func NewChatDeviceProvider(sender notifier.BridgeSender) *ChatDeviceProvider {
	return &ChatDeviceProvider{
		breakerBase: newBreakerBase(entity.ChannelChatDevice, circuitbreaker.DeviceBridgeConfig()),
		sender:      sender,
	}
}

// IsConfigured is false while the bridge circuit is open: the paired phone is treated as
// unreachable and sends are recorded for manual follow-up.
func (p *ChatDeviceProvider) IsConfigured() bool {
	return p.sender != nil && p.sender.Configured() && !p.cb.IsOpen()
}

func (p *ChatDeviceProvider) CanDeliver(env Envelope) bool {
	return env.Phone() != ""
}

func (p *ChatDeviceProvider) Deliver(ctx context.Context, env Envelope) entity.DeliveryResult {
	to := env.Phone()
	if to == "" {
		return p.fail(noPhoneNumbersMessage)
	}
	return p.attempt(ctx, func() (string, error) {
		return p.sender.SendViaDevice(ctx, entity.NormalizePhoneNumber(to), env.Text())
	})
}

// NoticeProvider delivers to the in-app notice store. It is the guaranteed fallback.
type NoticeProvider struct {
	store repository.NoticeStore
	now   func() time.Time
}

// NewNoticeProvider writes notices to store.
func NewNoticeProvider(store repository.NoticeStore) *NoticeProvider {
	return &NoticeProvider{store: store, now: time.Now}
}

func (p *NoticeProvider) Channel() entity.Channel { return entity.ChannelInternal }

func (p *NoticeProvider) IsConfigured() bool { return p.store != nil }

// CanDeliver is always true: every recipient can see in-app notices.
func (p *NoticeProvider) CanDeliver(Envelope) bool { return true }

func (p *NoticeProvider) Deliver(ctx context.Context, env Envelope) entity.DeliveryResult {
	now := p.now()
	n := &entity.Notice{
		ID:          uuid.NewString(),
		MessageID:   env.Request.MessageID,
		RecipientID: env.Request.RecipientID,
		EventID:     env.Request.EventID,
		Title:       env.Request.Title,
		Body:        env.Request.Body,
		Channel:     entity.ChannelInternal,
		Status:      entity.ResultStatusSent,
		CreatedAt:   now,
	}
	if err := p.store.SaveNotice(ctx, n); err != nil {
		return entity.FailedResult(entity.ChannelInternal, "save notice: "+logging.SanitizeError(err), now)
	}
	return entity.SentResult(entity.ChannelInternal, n.ID, now)
}
