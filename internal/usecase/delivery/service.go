package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/observability/logging"
	"guest-delivery/internal/observability/metrics"
	"guest-delivery/internal/observability/tracing"
	"guest-delivery/internal/repository"
)

// Service is the synchronous delivery path.
type Service struct {
	registry   *Registry
	resolver   *Resolver
	dispatcher *Dispatcher
	templater  Templater
	recipients repository.RecipientDirectory
	events     repository.EventDirectory
	notices    repository.NoticeStore
	now        func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithTemplater replaces the default Substitutor.
func WithTemplater(t Templater) Option {
	return func(s *Service) { s.templater = t }
}

// WithNoticeStore sets the store outcomes are mirrored into. Without one, mirroring is skipped.
func WithNoticeStore(n repository.NoticeStore) Option {
	return func(s *Service) { s.notices = n }
}

// NewService wires resolver and dispatcher over registry.
func NewService(registry *Registry, recipients repository.RecipientDirectory, events repository.EventDirectory, opts ...Option) *Service {
	s := &Service{
		registry:   registry,
		resolver:   NewResolver(registry),
		dispatcher: NewDispatcher(registry),
		templater:  NewSubstitutor(),
		recipients: recipients,
		events:     events,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the provider registry, for health reporting.
func (s *Service) Registry() *Registry { return s.registry }

// Send substitutes placeholders, resolves a channel, dispatches, and mirrors the outcome
// into the notice store. It always returns one result; failures are FAILED results.
func (s *Service) Send(ctx context.Context, req entity.DeliveryRequest) entity.DeliveryResult {
	return s.send(ctx, req, true)
}

// Deliver is Send without substitution, for requests whose text is already final
// (queued rows).
func (s *Service) Deliver(ctx context.Context, req entity.DeliveryRequest) entity.DeliveryResult {
	return s.send(ctx, req, false)
}

func (s *Service) send(ctx context.Context, req entity.DeliveryRequest, substitute bool) entity.DeliveryResult {
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}
	logger := logging.WithMessageID(logging.FromContext(ctx), req.MessageID).
		With(slog.Int64("recipient_id", req.RecipientID))
	ctx = logging.WithLogger(ctx, logger)

	ctx, span := tracing.StartSpan(ctx, "delivery.send",
		attribute.String("message_id", req.MessageID),
		attribute.Int64("recipient_id", req.RecipientID))
	defer span.End()

	env, err := s.envelope(ctx, req)
	if err != nil {
		tracing.RecordError(span, err)
		logger.Warn("delivery precondition failed", slog.String("error", logging.SanitizeError(err)))
		res := entity.FailedResult(req.PreferredChannel, logging.SanitizeError(err), s.now())
		res.MessageID = req.MessageID
		s.mirror(ctx, req, res)
		return res
	}
	if substitute {
		env.Request = s.apply(ctx, env)
	}

	ch, reason := s.resolver.Resolve(env)
	logger.Debug("channel resolved", slog.String("channel", string(ch)), slog.String("reason", reason))

	res := s.dispatcher.Dispatch(ctx, env, ch)
	span.SetAttributes(attribute.String("channel", string(res.Channel)), attribute.String("status", res.Status))

	s.mirror(ctx, env.Request, res)

	logger.Info("delivery finished",
		slog.String("channel", string(res.Channel)),
		slog.String("status", res.Status),
		slog.Bool("success", res.Success),
		slog.Int("numbers", len(res.Attempts)))
	return res
}

// DeliverOn sends req over ch without resolution or mirroring. The invitation ledger uses it
// to send on its configured chat channel.
func (s *Service) DeliverOn(ctx context.Context, req entity.DeliveryRequest, ch entity.Channel) entity.DeliveryResult {
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}
	ctx = logging.WithLogger(ctx, logging.WithMessageID(logging.FromContext(ctx), req.MessageID))

	env, err := s.envelope(ctx, req)
	if err != nil {
		res := entity.FailedResult(ch, logging.SanitizeError(err), s.now())
		res.MessageID = req.MessageID
		return res
	}
	return s.dispatcher.Dispatch(ctx, env, ch)
}

// Substitute returns req with placeholders filled, or req unchanged when the recipient or
// event cannot be loaded or substitution fails.
func (s *Service) Substitute(ctx context.Context, req entity.DeliveryRequest) entity.DeliveryRequest {
	env, err := s.envelope(ctx, req)
	if err != nil {
		logging.FromContext(ctx).Warn("substitution skipped",
			slog.Int64("recipient_id", req.RecipientID),
			slog.String("error", logging.SanitizeError(err)))
		return req
	}
	return s.apply(ctx, env)
}

// SendBatch sends every request independently. A panic while handling one request becomes
// a FAILED result for that request only. Results are in input order.
func (s *Service) SendBatch(ctx context.Context, reqs []entity.DeliveryRequest) []entity.DeliveryResult {
	results := make([]entity.DeliveryResult, len(reqs))
	for i, req := range reqs {
		results[i] = s.sendIsolated(ctx, req)
	}
	return results
}

func (s *Service) sendIsolated(ctx context.Context, req entity.DeliveryRequest) (res entity.DeliveryResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("panic while sending batch item",
				slog.String("message_id", req.MessageID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			res = entity.FailedResult(req.PreferredChannel, fmt.Sprintf("internal error: %v", r), s.now())
			res.MessageID = req.MessageID
		}
	}()
	return s.Send(ctx, req)
}

func (s *Service) envelope(ctx context.Context, req entity.DeliveryRequest) (Envelope, error) {
	if err := req.Validate(); err != nil {
		return Envelope{}, err
	}
	recipient, err := s.recipients.GetRecipient(ctx, req.RecipientID)
	if err != nil {
		return Envelope{}, fmt.Errorf("load recipient %d: %w", req.RecipientID, err)
	}
	if recipient == nil {
		return Envelope{}, fmt.Errorf("%w: %d", ErrRecipientNotFound, req.RecipientID)
	}

	eventID := req.EventID
	if eventID == 0 {
		eventID = recipient.EventID
	}
	var event *entity.Event
	if eventID != 0 && s.events != nil {
		// A missing event only disables event-scoped channels and placeholders.
		event, err = s.events.GetEvent(ctx, eventID)
		if err != nil {
			logging.FromContext(ctx).Warn("event lookup failed",
				slog.Int64("event_id", eventID),
				slog.String("error", logging.SanitizeError(err)))
			event = nil
		}
	}
	if req.EventID == 0 {
		req.EventID = eventID
	}
	return Envelope{Request: req, Recipient: recipient, Event: event}, nil
}

func (s *Service) apply(ctx context.Context, env Envelope) entity.DeliveryRequest {
	out, err := s.templater.Apply(env.Request, env.Recipient, env.Event)
	if err != nil {
		logging.FromContext(ctx).Warn("substitution failed, sending original text",
			slog.String("error", err.Error()))
		return env.Request
	}
	return out
}

// mirror writes the outcome into the notice store. Failures are logged and counted only.
func (s *Service) mirror(ctx context.Context, req entity.DeliveryRequest, res entity.DeliveryResult) {
	if s.notices == nil || req.RecipientID <= 0 {
		return
	}
	n := &entity.Notice{
		ID:          uuid.NewString(),
		MessageID:   req.MessageID,
		RecipientID: req.RecipientID,
		EventID:     req.EventID,
		Title:       req.Title,
		Body:        req.Body,
		Channel:     res.Channel,
		Status:      res.Status,
		Error:       res.Error,
		CreatedAt:   s.now(),
	}
	if err := s.notices.SaveNotice(ctx, n); err != nil {
		metrics.RecordNoticeMirrorFailure()
		logging.FromContext(ctx).Warn("notice mirror failed",
			slog.String("error", logging.SanitizeError(err)))
	}
}
