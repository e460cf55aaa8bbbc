package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/repository"
)

type LedgerRepo struct{ db *sql.DB }

func NewLedgerRepo(db *sql.DB) repository.LedgerRepository {
	return &LedgerRepo{db: db}
}

const ledgerColumns = `id, invitation_id, recipient_id, status, method, method_description, channel,
provider_id, error_message, sent_by, sent_at, delivered_at, created_at, updated_at`

func scanLedgerEntry(s rowScanner) (*entity.InvitationLedgerEntry, error) {
	var (
		e                       entity.InvitationLedgerEntry
		status, method, channel string
		sentAt, deliveredAt     sql.NullTime
	)
	if err := s.Scan(
		&e.ID, &e.InvitationID, &e.RecipientID, &status, &method, &e.MethodDescription, &channel,
		&e.ProviderID, &e.Error, &e.SentBy, &sentAt, &deliveredAt, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.Status = entity.LedgerStatus(status)
	e.Method = entity.LedgerMethod(method)
	e.Channel = entity.Channel(channel)
	e.SentAt = timePtr(sentAt)
	e.DeliveredAt = timePtr(deliveredAt)
	return &e, nil
}

func (repo *LedgerRepo) Find(ctx context.Context, invitationID, recipientID int64) (*entity.InvitationLedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + `
FROM invitation_ledger
WHERE invitation_id = $1 AND recipient_id = $2
LIMIT 1`
	e, err := scanLedgerEntry(repo.db.QueryRowContext(ctx, query, invitationID, recipientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Find: %w", err)
	}
	return e, nil
}

func (repo *LedgerRepo) Get(ctx context.Context, id int64) (*entity.InvitationLedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + `
FROM invitation_ledger
WHERE id = $1`
	e, err := scanLedgerEntry(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return e, nil
}

// Create inserts entry and fills ID and CreatedAt. The (invitation_id, recipient_id) unique
// constraint is the arbiter between concurrent senders.
func (repo *LedgerRepo) Create(ctx context.Context, e *entity.InvitationLedgerEntry) error {
	const query = `
INSERT INTO invitation_ledger
    (invitation_id, recipient_id, status, method, method_description, channel,
     provider_id, error_message, sent_by, sent_at, delivered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id, created_at, updated_at`
	err := repo.db.QueryRowContext(ctx, query,
		e.InvitationID, e.RecipientID, string(e.Status), string(e.Method), e.MethodDescription,
		string(e.Channel), e.ProviderID, e.Error, e.SentBy, nullTime(e.SentAt), nullTime(e.DeliveredAt),
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", entity.ErrAlreadyExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *LedgerRepo) UpdateOutcome(ctx context.Context, e *entity.InvitationLedgerEntry) error {
	const query = `
UPDATE invitation_ledger
SET status = $2, channel = $3, provider_id = $4, error_message = $5,
    sent_at = $6, delivered_at = $7, updated_at = $8
WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query,
		e.ID, string(e.Status), string(e.Channel), e.ProviderID, e.Error,
		nullTime(e.SentAt), nullTime(e.DeliveredAt), e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("UpdateOutcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateOutcome: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("UpdateOutcome: %w", entity.ErrNotFound)
	}
	return nil
}

func (repo *LedgerRepo) ListByInvitation(ctx context.Context, invitationID int64) ([]*entity.InvitationLedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + `
FROM invitation_ledger
WHERE invitation_id = $1
ORDER BY id ASC`
	rows, err := repo.db.QueryContext(ctx, query, invitationID)
	if err != nil {
		return nil, fmt.Errorf("ListByInvitation: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*entity.InvitationLedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByInvitation: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddPhoneContacts writes all records in one transaction and fills their IDs.
func (repo *LedgerRepo) AddPhoneContacts(ctx context.Context, entryID int64, records []entity.PhoneContactRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("AddPhoneContacts: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `
INSERT INTO phone_contact_records
    (ledger_entry_id, phone, was_primary, category, method, status, contacted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	for i := range records {
		r := &records[i]
		r.LedgerEntryID = entryID
		if err = tx.QueryRowContext(ctx, query,
			entryID, r.Phone, r.WasPrimary, r.Category, string(r.Method), string(r.Status), r.ContactedAt,
		).Scan(&r.ID); err != nil {
			return fmt.Errorf("AddPhoneContacts: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("AddPhoneContacts: commit: %w", err)
	}
	return nil
}

func (repo *LedgerRepo) ListPhoneContacts(ctx context.Context, entryID int64) ([]entity.PhoneContactRecord, error) {
	const query = `
SELECT id, ledger_entry_id, phone, was_primary, category, method, status, contacted_at
FROM phone_contact_records
WHERE ledger_entry_id = $1
ORDER BY id ASC`
	rows, err := repo.db.QueryContext(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("ListPhoneContacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []entity.PhoneContactRecord
	for rows.Next() {
		var (
			r              entity.PhoneContactRecord
			method, status string
		)
		if err := rows.Scan(&r.ID, &r.LedgerEntryID, &r.Phone, &r.WasPrimary, &r.Category,
			&method, &status, &r.ContactedAt); err != nil {
			return nil, fmt.Errorf("ListPhoneContacts: %w", err)
		}
		r.Method = entity.LedgerMethod(method)
		r.Status = entity.LedgerStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}
