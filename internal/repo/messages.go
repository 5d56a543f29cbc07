package repo

import (
	"context"
	"errors"
	"time"

	"github.com/LeventeLantos/future-messaging/internal/model"
)

var ErrProfileNotFound = errors.New("profile not found")

type MessageRepository interface {
	Insert(ctx context.Context, msg *model.Message) error
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.Message, error)
	RequeueStale(ctx context.Context, olderThan time.Time) (int64, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
	ListByStatus(ctx context.Context, status model.Status, limit, offset int) ([]model.Message, error)
}

type ProfileRepository interface {
	GetByOwnerID(ctx context.Context, ownerID string) (*model.Profile, error)
}
