package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/observability/logging"
)

// RecordForAllPhones writes one contact record per registered number of the entry's
// recipient. It only records; nothing is sent.
func (s *Service) RecordForAllPhones(ctx context.Context, entryID int64) ([]entity.PhoneContactRecord, error) {
	entry, err := s.entry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	r, err := s.recipient(ctx, entry.RecipientID)
	if err != nil {
		return nil, err
	}
	if !r.HasPhones() {
		return nil, fmt.Errorf("recipient %d: %w", r.ID, ErrNoPhoneNumbers)
	}
	records := make([]entity.PhoneContactRecord, 0, len(r.Phones))
	for _, p := range r.Phones {
		records = append(records, s.contact(entry, p))
	}
	return s.saveContacts(ctx, entry, records)
}

// RecordForSelectedPhones writes one contact record per given number. Numbers the recipient
// has registered keep their primary flag and category; others are recorded as given.
// Duplicates are recorded once.
func (s *Service) RecordForSelectedPhones(ctx context.Context, entryID int64, phones []string) ([]entity.PhoneContactRecord, error) {
	if len(phones) == 0 {
		return nil, ErrNoPhoneNumbers
	}
	for _, p := range phones {
		if err := entity.ValidatePhoneNumber(p); err != nil {
			return nil, err
		}
	}
	entry, err := s.entry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	r, err := s.recipient(ctx, entry.RecipientID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(phones))
	records := make([]entity.PhoneContactRecord, 0, len(phones))
	for _, raw := range phones {
		number := entity.NormalizePhoneNumber(raw)
		if seen[number] {
			continue
		}
		seen[number] = true
		p, ok := r.FindPhone(number)
		if !ok {
			p = entity.PhoneNumber{Number: number}
		}
		records = append(records, s.contact(entry, p))
	}
	return s.saveContacts(ctx, entry, records)
}

// PhoneContacts lists the contact records of an entry.
func (s *Service) PhoneContacts(ctx context.Context, entryID int64) ([]entity.PhoneContactRecord, error) {
	records, err := s.repo.ListPhoneContacts(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("list phone contacts: %w", err)
	}
	return records, nil
}

func (s *Service) contact(entry *entity.InvitationLedgerEntry, p entity.PhoneNumber) entity.PhoneContactRecord {
	return entity.PhoneContactRecord{
		LedgerEntryID: entry.ID,
		Phone:         p.Number,
		WasPrimary:    p.Primary,
		Category:      p.Category,
		Method:        entry.Method,
		Status:        entry.Status,
		ContactedAt:   s.now(),
	}
}

func (s *Service) saveContacts(ctx context.Context, entry *entity.InvitationLedgerEntry, records []entity.PhoneContactRecord) ([]entity.PhoneContactRecord, error) {
	if err := s.repo.AddPhoneContacts(ctx, entry.ID, records); err != nil {
		return nil, fmt.Errorf("save phone contacts: %w", err)
	}
	logging.FromContext(ctx).Info("phone contacts recorded",
		slog.Int64("ledger_id", entry.ID),
		slog.Int("numbers", len(records)))
	return records, nil
}
