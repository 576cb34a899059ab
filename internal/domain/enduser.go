package domain

import (
	"time"

	"github.com/google/uuid"
)

// Language is an end user's UI language. Empty means the one-time language
// prompt has not been answered yet.
type Language string

const (
	LanguageUnset   Language = ""
	LanguageUzbek   Language = "uz"
	LanguageRussian Language = "ru"
)

// EndUser is one person talking to one tenant bot. Rows are keyed by
// (bot_id, user_id); every store query is scoped to a single bot so workers
// never see each other's users.
type EndUser struct {
	BotID        uuid.UUID `json:"bot_id"`
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Language     Language  `json:"language"`
	JoinedAt     time.Time `json:"joined_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}

// EndUserStats is a single worker's view of its own audience.
type EndUserStats struct {
	TotalUsers    int `json:"total_users"`
	TotalMessages int `json:"total_messages"`
	ActiveToday   int `json:"active_today"`
}
