package repository

import (
	"context"

	"guest-delivery/internal/domain/entity"
)

// LedgerRepository stores invitation ledger entries and their phone contact records.
// Create returns entity.ErrAlreadyExists when the (invitation, recipient) pair is taken.
type LedgerRepository interface {
	Find(ctx context.Context, invitationID, recipientID int64) (*entity.InvitationLedgerEntry, error)
	Get(ctx context.Context, id int64) (*entity.InvitationLedgerEntry, error)
	Create(ctx context.Context, entry *entity.InvitationLedgerEntry) error
	UpdateOutcome(ctx context.Context, entry *entity.InvitationLedgerEntry) error
	ListByInvitation(ctx context.Context, invitationID int64) ([]*entity.InvitationLedgerEntry, error)
	AddPhoneContacts(ctx context.Context, entryID int64, records []entity.PhoneContactRecord) error
	ListPhoneContacts(ctx context.Context, entryID int64) ([]entity.PhoneContactRecord, error)
}
