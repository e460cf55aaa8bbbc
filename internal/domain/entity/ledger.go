package entity

import "time"

// LedgerStatus is the delivery status of an invitation ledger entry.
type LedgerStatus string

const (
	LedgerPending LedgerStatus = "PENDING"
	LedgerSent    LedgerStatus = "SENT"
	LedgerFailed  LedgerStatus = "FAILED"
)

// LedgerMethod tags how an invitation reached the recipient.
type LedgerMethod string

const (
	MethodChatApp  LedgerMethod = "CHAT_APP"
	MethodExternal LedgerMethod = "EXTERNAL"
)

// InvitationLedgerEntry records the delivery of one invitation to one recipient.
// There is at most one entry per (InvitationID, RecipientID).
type InvitationLedgerEntry struct {
	ID                int64
	InvitationID      int64
	RecipientID       int64
	Status            LedgerStatus
	Method            LedgerMethod
	MethodDescription string
	Channel           Channel
	ProviderID        string
	Error             string
	SentBy            string
	SentAt            *time.Time
	DeliveredAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// MarkSent records a successful delivery at t.
func (e *InvitationLedgerEntry) MarkSent(providerID string, t time.Time) {
	e.Status = LedgerSent
	e.ProviderID = providerID
	e.Error = ""
	e.SentAt = &t
	e.UpdatedAt = t
}

// MarkFailed records a failed attempt at t.
func (e *InvitationLedgerEntry) MarkFailed(errMsg string, t time.Time) {
	e.Status = LedgerFailed
	e.Error = errMsg
	e.UpdatedAt = t
}

// PhoneContactRecord is one contacted number under a ledger entry. Records are
// deleted together with their entry.
type PhoneContactRecord struct {
	ID            int64
	LedgerEntryID int64
	Phone         string
	WasPrimary    bool
	Category      string
	Method        LedgerMethod
	Status        LedgerStatus
	ContactedAt   time.Time
}
