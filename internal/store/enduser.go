package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botforge/botforge/internal/domain"
)

// EndUserStore implements domain.EndUserStore backed by Postgres. Every query
// is scoped by bot_id.
type EndUserStore struct {
	pool *pgxpool.Pool
}

func NewEndUserStore(pool *pgxpool.Pool) *EndUserStore {
	return &EndUserStore{pool: pool}
}

// Upsert inserts a user on first contact and bumps activity and message count
// on every subsequent one. Language is never overwritten here.
func (s *EndUserStore) Upsert(ctx context.Context, user *domain.EndUser) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bot_users (bot_id, user_id, username, first_name, last_name, language, joined_at, last_activity, message_count)
		VALUES ($1, $2, $3, $4, $5, '', $6, $6, 1)
		ON CONFLICT (bot_id, user_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			last_activity = EXCLUDED.last_activity,
			message_count = bot_users.message_count + 1`,
		user.BotID, user.UserID, user.Username, user.FirstName, user.LastName, now,
	)
	if err != nil {
		return fmt.Errorf("upsert bot user: %w", err)
	}
	return nil
}

func (s *EndUserStore) Get(ctx context.Context, botID uuid.UUID, userID int64) (*domain.EndUser, error) {
	var u domain.EndUser
	err := s.pool.QueryRow(ctx, `
		SELECT bot_id, user_id, username, first_name, last_name, language, joined_at, last_activity, message_count
		FROM bot_users WHERE bot_id = $1 AND user_id = $2`, botID, userID).Scan(
		&u.BotID, &u.UserID, &u.Username, &u.FirstName, &u.LastName,
		&u.Language, &u.JoinedAt, &u.LastActivity, &u.MessageCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get bot user: %w", err)
	}
	return &u, nil
}

func (s *EndUserStore) SetLanguage(ctx context.Context, botID uuid.UUID, userID int64, lang domain.Language) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bot_users SET language = $3 WHERE bot_id = $1 AND user_id = $2`,
		botID, userID, lang)
	if err != nil {
		return fmt.Errorf("set user language: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *EndUserStore) List(ctx context.Context, botID uuid.UUID) ([]*domain.EndUser, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT bot_id, user_id, username, first_name, last_name, language, joined_at, last_activity, message_count
		FROM bot_users WHERE bot_id = $1 ORDER BY joined_at`, botID)
	if err != nil {
		return nil, fmt.Errorf("list bot users: %w", err)
	}
	defer rows.Close()

	var users []*domain.EndUser
	for rows.Next() {
		var u domain.EndUser
		if err := rows.Scan(
			&u.BotID, &u.UserID, &u.Username, &u.FirstName, &u.LastName,
			&u.Language, &u.JoinedAt, &u.LastActivity, &u.MessageCount,
		); err != nil {
			return nil, fmt.Errorf("scan bot user: %w", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bot users: %w", err)
	}
	return users, nil
}

func (s *EndUserStore) Stats(ctx context.Context, botID uuid.UUID) (*domain.EndUserStats, error) {
	var stats domain.EndUserStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(message_count), 0),
			COUNT(*) FILTER (WHERE last_activity > now() - interval '1 day')
		FROM bot_users WHERE bot_id = $1`, botID).Scan(
		&stats.TotalUsers, &stats.TotalMessages, &stats.ActiveToday,
	)
	if err != nil {
		return nil, fmt.Errorf("bot user stats: %w", err)
	}
	return &stats, nil
}

var _ domain.EndUserStore = (*EndUserStore)(nil)
