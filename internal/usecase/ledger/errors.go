package ledger

import "errors"

var (
	// ErrTemplateNameRequired is returned when a template invitation has no template name.
	ErrTemplateNameRequired = errors.New("invitation requires a template name")

	// ErrAlreadyLogged is returned when an operator logs a pair that already has an entry.
	ErrAlreadyLogged = errors.New("invitation already logged for this recipient")

	// ErrNotRetryable is returned when retrying an entry that is neither FAILED nor a
	// PENDING claim older than the pending lease.
	ErrNotRetryable = errors.New("only failed or stalled pending ledger entries can be retried")

	// ErrOutcomeNotSaved is returned when a delivery happened but its outcome could not be
	// written; the stored entry stays PENDING until Retry picks it up after the lease.
	ErrOutcomeNotSaved = errors.New("ledger outcome not saved")

	// ErrInvitationNotFound and ErrRecipientNotFound abort an operation before any write.
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrRecipientNotFound  = errors.New("recipient not found")

	// ErrEntryNotFound is returned for an unknown ledger entry id.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrNoPhoneNumbers is returned when there is no number to record.
	ErrNoPhoneNumbers = errors.New("no phone numbers to record")
)
