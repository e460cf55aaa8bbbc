package repository

import (
	"context"

	"guest-delivery/internal/domain/entity"
)

// The directories are read-only views over records owned by the guest management side.
// Lookups of missing ids return nil, nil.

type RecipientDirectory interface {
	GetRecipient(ctx context.Context, id int64) (*entity.Recipient, error)
}

type EventDirectory interface {
	GetEvent(ctx context.Context, id int64) (*entity.Event, error)
}

type InvitationRepository interface {
	GetInvitation(ctx context.Context, id int64) (*entity.Invitation, error)
}

// NoticeStore is the write-only sink for in-app notices.
type NoticeStore interface {
	SaveNotice(ctx context.Context, n *entity.Notice) error
}
