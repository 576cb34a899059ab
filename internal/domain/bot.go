package domain

import (
	"time"

	"github.com/google/uuid"
)

// BotStatus is the persisted lifecycle state of a tenant bot record.
type BotStatus string

const (
	BotStatusPending  BotStatus = "pending"
	BotStatusApproved BotStatus = "approved"
	BotStatusRejected BotStatus = "rejected"
	BotStatusStopped  BotStatus = "stopped"
	BotStatusExpired  BotStatus = "expired"
)

func ValidBotStatus(s string) bool {
	switch BotStatus(s) {
	case BotStatusPending, BotStatusApproved, BotStatusRejected, BotStatusStopped, BotStatusExpired:
		return true
	}
	return false
}

// TenantBot is a constructor bot submitted by a platform user.
// BotIdentityID is the upstream bot account id and is unique across all
// non-rejected records: two owners can never run the same upstream identity.
type TenantBot struct {
	ID            uuid.UUID  `json:"id"`
	OwnerID       int64      `json:"owner_id"`
	Name          string     `json:"name"`
	Token         string     `json:"-"`
	Status        BotStatus  `json:"status"`
	BotIdentityID int64      `json:"bot_identity_id"`
	BotUsername   string     `json:"bot_username"`
	CreatedAt     time.Time  `json:"created_at"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	ApprovedBy    *int64     `json:"approved_by,omitempty"`
	ApprovalNotes string     `json:"approval_notes,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	ExtendedBy    *int64     `json:"extended_by,omitempty"`
}

// Identity is the upstream platform's description of a validated bot token.
type Identity struct {
	ID                      int64  `json:"id"`
	Username                string `json:"username"`
	FirstName               string `json:"first_name"`
	CanJoinGroups           bool   `json:"can_join_groups"`
	CanReadAllGroupMessages bool   `json:"can_read_all_group_messages"`
	SupportsInlineQueries   bool   `json:"supports_inline_queries"`
}

// BotStats summarizes the platform's bot population.
type BotStats struct {
	Total    int `json:"total_bots"`
	Running  int `json:"running_bots"`
	Pending  int `json:"pending_bots"`
	Approved int `json:"approved_bots"`
	Rejected int `json:"rejected_bots"`
	Stopped  int `json:"stopped_bots"`
	Expired  int `json:"expired_bots"`
	Recent   int `json:"recent_bots"`
}
