package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botforge/botforge/internal/domain"
)

// BotStore implements domain.BotStore backed by Postgres.
type BotStore struct {
	pool *pgxpool.Pool
}

func NewBotStore(pool *pgxpool.Pool) *BotStore {
	return &BotStore{pool: pool}
}

const botColumns = `id, owner_id, name, token, status, bot_identity_id, bot_username,
	created_at, approved_at, approved_by, approval_notes, expires_at, extended_by`

func (s *BotStore) Create(ctx context.Context, bot *domain.TenantBot) error {
	if bot.ID == uuid.Nil {
		bot.ID = uuid.New()
	}
	bot.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_bots (id, owner_id, name, token, status, bot_identity_id, bot_username, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		bot.ID, bot.OwnerID, bot.Name, bot.Token, bot.Status, bot.BotIdentityID, bot.BotUsername, bot.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("create bot: %w", err)
	}
	return nil
}

func (s *BotStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.TenantBot, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+botColumns+` FROM user_bots WHERE id = $1`, id)
	bot, err := scanBot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get bot: %w", err)
	}
	return bot, nil
}

func (s *BotStore) ListByOwner(ctx context.Context, ownerID int64) ([]*domain.TenantBot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+botColumns+` FROM user_bots
		WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list bots by owner: %w", err)
	}
	defer rows.Close()
	return collectBots(rows)
}

func (s *BotStore) ListByStatus(ctx context.Context, status domain.BotStatus) ([]*domain.TenantBot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+botColumns+` FROM user_bots
		WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list bots by status: %w", err)
	}
	defer rows.Close()
	return collectBots(rows)
}

// ListExpired returns approved bots whose expiry is in the past.
func (s *BotStore) ListExpired(ctx context.Context) ([]*domain.TenantBot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+botColumns+` FROM user_bots
		WHERE status = 'approved' AND expires_at IS NOT NULL AND expires_at < now()`)
	if err != nil {
		return nil, fmt.Errorf("list expired bots: %w", err)
	}
	defer rows.Close()
	return collectBots(rows)
}

// CountActiveByOwner counts an owner's non-rejected records, the figure
// quota enforcement runs against.
func (s *BotStore) CountActiveByOwner(ctx context.Context, ownerID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM user_bots
		WHERE owner_id = $1 AND status != 'rejected'`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active bots: %w", err)
	}
	return count, nil
}

func (s *BotStore) IdentityInUse(ctx context.Context, botIdentityID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_bots
			WHERE bot_identity_id = $1 AND status != 'rejected'
		)`, botIdentityID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check identity in use: %w", err)
	}
	return exists, nil
}

func (s *BotStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BotStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE user_bots SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update bot status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *BotStore) Approve(ctx context.Context, id uuid.UUID, approverID int64, notes string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE user_bots
		SET status = 'approved', approved_at = now(), approved_by = $2, approval_notes = $3
		WHERE id = $1`, id, approverID, notes)
	if err != nil {
		return fmt.Errorf("approve bot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Extend pushes expiry out by the given number of days, anchored at the later
// of now and the current expiry, and restores approved status so an expired
// record becomes runnable again.
func (s *BotStore) Extend(ctx context.Context, id uuid.UUID, days int, adminID int64) (*domain.TenantBot, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE user_bots
		SET expires_at = GREATEST(COALESCE(expires_at, now()), now()) + ($2 * interval '1 day'),
		    extended_by = $3,
		    status = CASE WHEN status = 'expired' THEN 'approved' ELSE status END
		WHERE id = $1
		RETURNING `+botColumns, id, days, adminID)
	bot, err := scanBot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("extend bot: %w", err)
	}
	return bot, nil
}

func (s *BotStore) Stats(ctx context.Context) (*domain.BotStats, error) {
	var stats domain.BotStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'approved'),
			COUNT(*) FILTER (WHERE status = 'rejected'),
			COUNT(*) FILTER (WHERE status = 'stopped'),
			COUNT(*) FILTER (WHERE status = 'expired'),
			COUNT(*) FILTER (WHERE created_at > now() - interval '7 days')
		FROM user_bots`).Scan(
		&stats.Total, &stats.Pending, &stats.Approved, &stats.Rejected,
		&stats.Stopped, &stats.Expired, &stats.Recent,
	)
	if err != nil {
		return nil, fmt.Errorf("bot stats: %w", err)
	}
	return &stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBot(row rowScanner) (*domain.TenantBot, error) {
	var bot domain.TenantBot
	err := row.Scan(
		&bot.ID, &bot.OwnerID, &bot.Name, &bot.Token, &bot.Status,
		&bot.BotIdentityID, &bot.BotUsername, &bot.CreatedAt,
		&bot.ApprovedAt, &bot.ApprovedBy, &bot.ApprovalNotes,
		&bot.ExpiresAt, &bot.ExtendedBy,
	)
	if err != nil {
		return nil, err
	}
	return &bot, nil
}

func collectBots(rows pgx.Rows) ([]*domain.TenantBot, error) {
	var bots []*domain.TenantBot
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		bots = append(bots, bot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bots: %w", err)
	}
	return bots, nil
}

var _ domain.BotStore = (*BotStore)(nil)
