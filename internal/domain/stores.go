package domain

import (
	"context"

	"github.com/google/uuid"
)

// BotStore persists tenant bot records.
type BotStore interface {
	Create(ctx context.Context, bot *TenantBot) error
	GetByID(ctx context.Context, id uuid.UUID) (*TenantBot, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*TenantBot, error)
	ListByStatus(ctx context.Context, status BotStatus) ([]*TenantBot, error)
	ListExpired(ctx context.Context) ([]*TenantBot, error)
	CountActiveByOwner(ctx context.Context, ownerID int64) (int, error)
	IdentityInUse(ctx context.Context, botIdentityID int64) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status BotStatus) error
	Approve(ctx context.Context, id uuid.UUID, approverID int64, notes string) error
	Extend(ctx context.Context, id uuid.UUID, days int, adminID int64) (*TenantBot, error)
	Stats(ctx context.Context) (*BotStats, error)
}

// EndUserStore is a worker's isolated view of its own audience. Every
// implementation scopes all queries to a single bot id.
type EndUserStore interface {
	Upsert(ctx context.Context, user *EndUser) error
	Get(ctx context.Context, botID uuid.UUID, userID int64) (*EndUser, error)
	SetLanguage(ctx context.Context, botID uuid.UUID, userID int64, lang Language) error
	List(ctx context.Context, botID uuid.UUID) ([]*EndUser, error)
	Stats(ctx context.Context, botID uuid.UUID) (*EndUserStats, error)
}
