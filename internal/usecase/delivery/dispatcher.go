package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/observability/logging"
	"guest-delivery/internal/observability/metrics"
	"guest-delivery/internal/observability/tracing"
)

// Dispatcher sends an envelope over an already chosen channel.
type Dispatcher struct {
	registry *Registry
	now      func() time.Time
	newID    func() string
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry, now: time.Now, newID: uuid.NewString}
}

// Dispatch delivers env over ch and returns exactly one result.
//
// Single-destination channels call the provider once with the envelope as given.
// Phone-addressed channels call it once per registered number, in registration order,
// each time with a copy addressed to that number. Every number is attempted. The aggregate
// succeeds when at least one number succeeded; it is the last successful attempt's result,
// or the last failure when none succeeded, and lists every attempt in Attempts.
//
// A channel whose provider is not configured yields a RECORDED result for manual follow-up.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope, ch entity.Channel) entity.DeliveryResult {
	ctx, span := tracing.StartSpan(ctx, "delivery.dispatch",
		attribute.String("channel", string(ch)),
		attribute.String("message_id", env.Request.MessageID))
	defer span.End()

	result := d.dispatch(ctx, env, ch)
	result.MessageID = env.Request.MessageID
	if !result.Success {
		span.SetAttributes(attribute.String("error", result.Error))
	}
	span.SetAttributes(attribute.String("status", result.Status))
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, env Envelope, ch entity.Channel) entity.DeliveryResult {
	logger := logging.FromContext(ctx).With(slog.String("channel", string(ch)))

	p, ok := d.registry.Get(ch)
	if !ok {
		metrics.RecordDeliveryAttempt(ch, entity.ResultStatusFailed)
		return entity.FailedResult(ch, fmt.Sprintf("%v: %s", ErrNoProvider, ch), d.now())
	}

	if !ch.PhoneAddressed() {
		if !p.IsConfigured() {
			return d.recorded(ctx, ch, nil)
		}
		res := p.Deliver(ctx, env)
		metrics.RecordDeliveryAttempt(ch, res.Status)
		return res
	}

	if !env.Recipient.HasPhones() && env.Request.Destination == nil {
		logger.Info("phone channel chosen for recipient without numbers",
			slog.Int64("recipient_id", env.Request.RecipientID))
		metrics.RecordDeliveryAttempt(ch, entity.ResultStatusFailed)
		return entity.FailedResult(ch, noPhoneNumbersMessage, d.now())
	}

	targets := d.targets(env)
	if !p.IsConfigured() {
		return d.recorded(ctx, ch, targets)
	}

	metrics.RecordFanout(len(targets))
	var lastOK, lastFail *entity.DeliveryResult
	attempts := make([]entity.DestinationAttempt, 0, len(targets))
	for _, t := range targets {
		res := p.Deliver(ctx, env.withRequest(env.Request.WithDestination(t.phone.Number, t.name)))
		metrics.RecordDeliveryAttempt(ch, res.Status)
		attempts = append(attempts, attemptFor(t.phone, res))

		logger.Debug("fan-out attempt",
			slog.String("phone_category", t.phone.Category),
			slog.Bool("primary", t.phone.Primary),
			slog.Bool("success", res.Success))

		r := res
		if res.Success {
			lastOK = &r
		} else {
			lastFail = &r
		}
	}

	var agg entity.DeliveryResult
	if lastOK != nil {
		agg = *lastOK
	} else {
		agg = *lastFail
	}
	agg.Attempts = attempts
	if lastOK != nil && lastFail != nil {
		logger.Warn("fan-out partially failed",
			slog.Int("numbers", len(targets)),
			slog.String("last_error", lastFail.Error))
	}
	return agg
}

type fanoutTarget struct {
	phone entity.PhoneNumber
	name  string
}

// targets lists the numbers to contact. A pre-addressed envelope targets only its destination.
func (d *Dispatcher) targets(env Envelope) []fanoutTarget {
	if dst := env.Request.Destination; dst != nil {
		phone, ok := env.Recipient.FindPhone(dst.Phone)
		if !ok {
			phone = entity.PhoneNumber{Number: dst.Phone}
		}
		return []fanoutTarget{{phone: phone, name: dst.DisplayName}}
	}
	out := make([]fanoutTarget, 0, len(env.Recipient.Phones))
	for _, p := range env.Recipient.Phones {
		out = append(out, fanoutTarget{phone: p, name: env.Recipient.DisplayNameFor(p)})
	}
	return out
}

// recorded builds the manual-follow-up result, with one attempt per targeted number.
func (d *Dispatcher) recorded(ctx context.Context, ch entity.Channel, targets []fanoutTarget) entity.DeliveryResult {
	res := entity.RecordedResult(ch, d.newID(), d.now())
	for _, t := range targets {
		res.Attempts = append(res.Attempts, attemptFor(t.phone, res))
	}
	metrics.RecordDeliveryAttempt(ch, res.Status)
	logging.FromContext(ctx).Info("provider not configured, recorded for manual delivery",
		slog.String("channel", string(ch)),
		slog.String("provider_id", res.ProviderID))
	return res
}

func attemptFor(p entity.PhoneNumber, res entity.DeliveryResult) entity.DestinationAttempt {
	return entity.DestinationAttempt{
		Phone:      p.Number,
		WasPrimary: p.Primary,
		Category:   p.Category,
		Success:    res.Success,
		ProviderID: res.ProviderID,
		Status:     res.Status,
		Error:      res.Error,
		Timestamp:  res.Timestamp,
	}
}
