// Package ledger keeps the invitation delivery ledger: one entry per (invitation, recipient),
// which makes automated invitation sends idempotent, plus the per-number contact records
// written under each entry.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/observability/logging"
	"guest-delivery/internal/observability/metrics"
	"guest-delivery/internal/observability/tracing"
	"guest-delivery/internal/repository"
)

// Sender delivers a request on a fixed channel.
type Sender interface {
	DeliverOn(ctx context.Context, req entity.DeliveryRequest, ch entity.Channel) entity.DeliveryResult
}

// DefaultPendingLease is how long a PENDING entry may wait for its outcome before Retry
// treats the claim as abandoned.
const DefaultPendingLease = 15 * time.Minute

// Service implements invitation sends, retries and manual logging on top of the ledger.
type Service struct {
	repo         repository.LedgerRepository
	invitations  repository.InvitationRepository
	recipients   repository.RecipientDirectory
	sender       Sender
	channel      entity.Channel
	pendingLease time.Duration
	now          func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithChannel sets the channel automated invitation sends use.
func WithChannel(ch entity.Channel) Option {
	return func(s *Service) { s.channel = ch }
}

// WithPendingLease overrides DefaultPendingLease. Non-positive values are ignored.
func WithPendingLease(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pendingLease = d
		}
	}
}

// NewService creates a ledger service sending on CHAT_APP_CLOUD unless WithChannel says otherwise.
func NewService(repo repository.LedgerRepository, invitations repository.InvitationRepository,
	recipients repository.RecipientDirectory, sender Sender, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		invitations:  invitations,
		recipients:   recipients,
		sender:       sender,
		channel:      entity.ChannelChatCloud,
		pendingLease: DefaultPendingLease,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers invitationID to every recipient that has no ledger entry yet, in order, and
// returns the entries it created. Recipients with an entry of any status are skipped.
//
// The invitation and every recipient are checked before anything is written: a missing
// record or a template invitation without a template name fails the whole call. After that,
// a failure for one recipient is recorded on its entry and does not stop the others. Entries
// whose outcome could not be stored are still returned, and the call then also returns an
// error wrapping ErrOutcomeNotSaved.
func (s *Service) Send(ctx context.Context, invitationID int64, recipientIDs []int64, sentBy string) ([]*entity.InvitationLedgerEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.send",
		attribute.Int64("invitation_id", invitationID),
		attribute.Int("recipients", len(recipientIDs)))
	defer span.End()

	inv, err := s.invitation(ctx, invitationID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	for _, rid := range recipientIDs {
		if err := s.requireRecipient(ctx, rid); err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
	}

	logger := logging.FromContext(ctx).With(slog.Int64("invitation_id", invitationID))
	var (
		created []*entity.InvitationLedgerEntry
		unsaved []error
	)
	for _, rid := range recipientIDs {
		rlog := logger.With(slog.Int64("recipient_id", rid))

		existing, err := s.repo.Find(ctx, invitationID, rid)
		if err != nil {
			rlog.Error("ledger lookup failed", slog.String("error", logging.SanitizeError(err)))
			continue
		}
		if existing != nil {
			metrics.RecordLedgerSkipped()
			rlog.Info("invitation already ledgered, skipping",
				slog.Int64("ledger_id", existing.ID),
				slog.String("status", string(existing.Status)))
			continue
		}

		now := s.now()
		entry := &entity.InvitationLedgerEntry{
			InvitationID: invitationID,
			RecipientID:  rid,
			Status:       entity.LedgerPending,
			Method:       entity.MethodChatApp,
			Channel:      s.channel,
			SentBy:       sentBy,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.Create(ctx, entry); err != nil {
			if errors.Is(err, entity.ErrAlreadyExists) {
				metrics.RecordLedgerSkipped()
				rlog.Info("invitation claimed concurrently, skipping")
				continue
			}
			rlog.Error("ledger insert failed", slog.String("error", logging.SanitizeError(err)))
			continue
		}

		if err := s.attempt(ctx, inv, entry); err != nil {
			unsaved = append(unsaved, err)
		}
		created = append(created, entry)
	}

	span.SetAttributes(attribute.Int("created", len(created)))
	if len(unsaved) > 0 {
		err := errors.Join(unsaved...)
		tracing.RecordError(span, err)
		return created, err
	}
	return created, nil
}

// Retry re-sends a FAILED entry, or a PENDING one whose claim is older than the pending
// lease, and updates it in place. Any other entry is returned unchanged with ErrNotRetryable.
func (s *Service) Retry(ctx context.Context, entryID int64) (*entity.InvitationLedgerEntry, error) {
	entry, err := s.entry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !s.retryable(entry) {
		return entry, fmt.Errorf("ledger entry %d is %s: %w", entryID, entry.Status, ErrNotRetryable)
	}
	inv, err := s.invitation(ctx, entry.InvitationID)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("retrying ledger entry",
		slog.Int64("ledger_id", entry.ID),
		slog.Int64("invitation_id", entry.InvitationID),
		slog.Int64("recipient_id", entry.RecipientID),
		slog.String("status", string(entry.Status)))
	if err := s.attempt(ctx, inv, entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// retryable reports whether entry may be sent again. A PENDING entry only qualifies once its
// lease has run out, so an in-flight send is never duplicated.
func (s *Service) retryable(entry *entity.InvitationLedgerEntry) bool {
	switch entry.Status {
	case entity.LedgerFailed:
		return true
	case entity.LedgerPending:
		return s.now().Sub(entry.UpdatedAt) >= s.pendingLease
	default:
		return false
	}
}

// MarkSentExternally logs a delivery done outside the engine, such as a phone call. No
// provider is called. A pair that already has an entry returns ErrAlreadyLogged.
func (s *Service) MarkSentExternally(ctx context.Context, invitationID, recipientID int64, description, sentBy string) (*entity.InvitationLedgerEntry, error) {
	if _, err := s.invitation(ctx, invitationID); err != nil {
		return nil, err
	}
	if err := s.requireRecipient(ctx, recipientID); err != nil {
		return nil, err
	}

	existing, err := s.repo.Find(ctx, invitationID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("find ledger entry: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("invitation %d, recipient %d (entry %d): %w",
			invitationID, recipientID, existing.ID, ErrAlreadyLogged)
	}

	now := s.now()
	entry := &entity.InvitationLedgerEntry{
		InvitationID:      invitationID,
		RecipientID:       recipientID,
		Status:            entity.LedgerSent,
		Method:            entity.MethodExternal,
		MethodDescription: description,
		Channel:           entity.ChannelExternal,
		SentBy:            sentBy,
		SentAt:            &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		if errors.Is(err, entity.ErrAlreadyExists) {
			return nil, fmt.Errorf("invitation %d, recipient %d: %w", invitationID, recipientID, ErrAlreadyLogged)
		}
		return nil, fmt.Errorf("create ledger entry: %w", err)
	}

	metrics.RecordLedgerEntry(entry.Status, entry.Method)
	logging.FromContext(ctx).Info("invitation logged as sent externally",
		slog.Int64("ledger_id", entry.ID),
		slog.Int64("invitation_id", invitationID),
		slog.Int64("recipient_id", recipientID),
		slog.String("method", description))
	return entry, nil
}

// ListByInvitation returns every ledger entry of an invitation.
func (s *Service) ListByInvitation(ctx context.Context, invitationID int64) ([]*entity.InvitationLedgerEntry, error) {
	entries, err := s.repo.ListByInvitation(ctx, invitationID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}

// attempt sends inv for entry's recipient and records the outcome on entry. The in-memory
// entry always reflects the delivery outcome; a failed outcome write is returned wrapped in
// ErrOutcomeNotSaved. Contact record failures are only logged.
func (s *Service) attempt(ctx context.Context, inv *entity.Invitation, entry *entity.InvitationLedgerEntry) error {
	logger := logging.FromContext(ctx).With(
		slog.Int64("ledger_id", entry.ID),
		slog.Int64("recipient_id", entry.RecipientID))

	req := entity.DeliveryRequest{
		MessageID:    messageID(inv.ID, entry.RecipientID),
		Kind:         entity.KindInvitation,
		Title:        inv.Title,
		Body:         inv.Body,
		RecipientID:  entry.RecipientID,
		EventID:      inv.EventID,
		SenderID:     entry.SentBy,
		TemplateName: inv.TemplateName,
	}
	res := s.sender.DeliverOn(ctx, req, s.channel)

	now := s.now()
	if res.Success {
		entry.MarkSent(res.ProviderID, now)
	} else {
		entry.MarkFailed(res.Error, now)
	}
	entry.Channel = s.channel
	var saveErr error
	if err := s.repo.UpdateOutcome(ctx, entry); err != nil {
		logger.Error("ledger outcome update failed", slog.String("error", logging.SanitizeError(err)))
		saveErr = fmt.Errorf("ledger entry %d (recipient %d): %w: %w",
			entry.ID, entry.RecipientID, ErrOutcomeNotSaved, err)
	}

	if len(res.Attempts) > 0 {
		records := make([]entity.PhoneContactRecord, 0, len(res.Attempts))
		for _, a := range res.Attempts {
			records = append(records, contactFromAttempt(a, now))
		}
		if err := s.repo.AddPhoneContacts(ctx, entry.ID, records); err != nil {
			logger.Error("phone contact records not saved", slog.String("error", logging.SanitizeError(err)))
		}
	}

	metrics.RecordLedgerEntry(entry.Status, entry.Method)
	if entry.Status == entity.LedgerSent {
		logger.Info("invitation sent",
			slog.String("channel", string(s.channel)),
			slog.String("provider_id", entry.ProviderID),
			slog.Int("numbers", len(res.Attempts)))
	} else {
		logger.Warn("invitation delivery failed",
			slog.String("channel", string(s.channel)),
			slog.String("error", entry.Error))
	}
	return saveErr
}

func (s *Service) invitation(ctx context.Context, id int64) (*entity.Invitation, error) {
	inv, err := s.invitations.GetInvitation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load invitation %d: %w", id, err)
	}
	if inv == nil {
		return nil, fmt.Errorf("invitation %d: %w", id, ErrInvitationNotFound)
	}
	if inv.RequiresTemplate() && inv.TemplateName == "" {
		return nil, fmt.Errorf("invitation %d: %w", id, ErrTemplateNameRequired)
	}
	return inv, nil
}

func (s *Service) requireRecipient(ctx context.Context, id int64) error {
	_, err := s.recipient(ctx, id)
	return err
}

func (s *Service) recipient(ctx context.Context, id int64) (*entity.Recipient, error) {
	r, err := s.recipients.GetRecipient(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load recipient %d: %w", id, err)
	}
	if r == nil {
		return nil, fmt.Errorf("recipient %d: %w", id, ErrRecipientNotFound)
	}
	return r, nil
}

func (s *Service) entry(ctx context.Context, id int64) (*entity.InvitationLedgerEntry, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load ledger entry %d: %w", id, err)
	}
	if entry == nil {
		return nil, fmt.Errorf("ledger entry %d: %w", id, ErrEntryNotFound)
	}
	return entry, nil
}

// messageID is stable per pair so provider-side logs of a retry line up with the first send.
func messageID(invitationID, recipientID int64) string {
	return fmt.Sprintf("invitation-%d-%d", invitationID, recipientID)
}

func contactFromAttempt(a entity.DestinationAttempt, fallback time.Time) entity.PhoneContactRecord {
	status := entity.LedgerFailed
	if a.Success {
		status = entity.LedgerSent
	}
	at := a.Timestamp
	if at.IsZero() {
		at = fallback
	}
	return entity.PhoneContactRecord{
		Phone:       a.Phone,
		WasPrimary:  a.WasPrimary,
		Category:    a.Category,
		Method:      entity.MethodChatApp,
		Status:      status,
		ContactedAt: at,
	}
}
