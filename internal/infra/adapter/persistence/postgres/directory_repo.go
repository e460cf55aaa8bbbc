package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/repository"
)

// DirectoryRepo reads recipients, events and invitations owned by the guest management side.
type DirectoryRepo struct{ db *sql.DB }

func NewDirectoryRepo(db *sql.DB) *DirectoryRepo {
	return &DirectoryRepo{db: db}
}

var (
	_ repository.RecipientDirectory   = (*DirectoryRepo)(nil)
	_ repository.EventDirectory       = (*DirectoryRepo)(nil)
	_ repository.InvitationRepository = (*DirectoryRepo)(nil)
)

func (repo *DirectoryRepo) GetRecipient(ctx context.Context, id int64) (*entity.Recipient, error) {
	const query = `
SELECT id, event_id, name, email
FROM recipients
WHERE id = $1`
	var r entity.Recipient
	err := repo.db.QueryRowContext(ctx, query, id).Scan(&r.ID, &r.EventID, &r.Name, &r.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetRecipient: %w", err)
	}

	const phones = `
SELECT number, is_primary, category, label
FROM recipient_phones
WHERE recipient_id = $1
ORDER BY is_primary DESC, id ASC`
	rows, err := repo.db.QueryContext(ctx, phones, id)
	if err != nil {
		return nil, fmt.Errorf("GetRecipient: phones: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var p entity.PhoneNumber
		if err := rows.Scan(&p.Number, &p.Primary, &p.Category, &p.Label); err != nil {
			return nil, fmt.Errorf("GetRecipient: phones: %w", err)
		}
		r.Phones = append(r.Phones, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetRecipient: phones: %w", err)
	}
	return &r, nil
}

func (repo *DirectoryRepo) GetEvent(ctx context.Context, id int64) (*entity.Event, error) {
	const query = `
SELECT id, name, starts_at, location, host_name,
       chat_cloud_enabled, chat_cloud_token, chat_cloud_phone_id
FROM events
WHERE id = $1`
	var (
		e        entity.Event
		startsAt sql.NullTime
	)
	err := repo.db.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.Name, &startsAt, &e.Location, &e.HostName,
		&e.ChatCloudEnabled, &e.ChatCloudToken, &e.ChatCloudPhoneID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	if startsAt.Valid {
		e.StartsAt = startsAt.Time
	}
	return &e, nil
}

func (repo *DirectoryRepo) GetInvitation(ctx context.Context, id int64) (*entity.Invitation, error) {
	const query = `
SELECT id, event_id, title, body, content_type, template_name
FROM invitations
WHERE id = $1`
	var (
		inv         entity.Invitation
		contentType string
	)
	err := repo.db.QueryRowContext(ctx, query, id).Scan(
		&inv.ID, &inv.EventID, &inv.Title, &inv.Body, &contentType, &inv.TemplateName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetInvitation: %w", err)
	}
	inv.ContentType = entity.ContentType(contentType)
	return &inv, nil
}
