package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/repository"
)

type NoticeRepo struct{ db *sql.DB }

func NewNoticeRepo(db *sql.DB) repository.NoticeStore {
	return &NoticeRepo{db: db}
}

// SaveNotice upserts by (message_id, recipient_id): the internal provider writes the notice
// when it delivers, and the outcome mirror then updates the same row.
func (repo *NoticeRepo) SaveNotice(ctx context.Context, n *entity.Notice) error {
	const query = `
INSERT INTO notices (id, message_id, recipient_id, event_id, title, body, channel, status, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (message_id, recipient_id) DO UPDATE
SET channel = EXCLUDED.channel, status = EXCLUDED.status, error = EXCLUDED.error`
	if _, err := repo.db.ExecContext(ctx, query,
		n.ID, n.MessageID, n.RecipientID, n.EventID, n.Title, n.Body,
		string(n.Channel), n.Status, n.Error, n.CreatedAt,
	); err != nil {
		return fmt.Errorf("SaveNotice: %w", err)
	}
	return nil
}
