package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/metrics"
	"github.com/botforge/botforge/internal/store"
)

var (
	// ErrQuotaExceeded is returned when an owner already holds the maximum
	// number of non-rejected bots.
	ErrQuotaExceeded = errors.New("bot quota exceeded for owner")

	// ErrDuplicateIdentity is returned when the token's upstream identity
	// already backs a live record, regardless of owner.
	ErrDuplicateIdentity = errors.New("bot identity already registered")

	// ErrBotNotFound is returned when the referenced bot record does not exist.
	ErrBotNotFound = errors.New("bot not found")
)

const autoApprovalNotes = "auto-approved on submission"

// CredentialValidator checks a bot token against the upstream API.
type CredentialValidator interface {
	Validate(ctx context.Context, token string) (*domain.Identity, error)
}

// WorkerFactory builds a fresh runtime for a bot record. Every start gets a
// new runtime; handles are never reused across restarts.
type WorkerFactory func(bot *domain.TenantBot) WorkerRuntime

// LifecycleService orchestrates the full life of tenant bots: submission,
// approval, worker start/stop/restart, expiration and reconciliation. The
// registry is the single ground truth for running workers; persisted status
// records intent, corrected by the sweeper when the two drift.
type LifecycleService struct {
	bots        domain.BotStore
	registry    *WorkerRegistry
	validator   CredentialValidator
	newWorker   WorkerFactory
	locks       *keyedMutex
	metrics     *metrics.Collector
	logger      *zap.Logger
	maxPerOwner int
	stopTimeout time.Duration
}

func NewLifecycleService(
	bots domain.BotStore,
	registry *WorkerRegistry,
	validator CredentialValidator,
	newWorker WorkerFactory,
	collector *metrics.Collector,
	logger *zap.Logger,
	maxPerOwner int,
	stopTimeout time.Duration,
) *LifecycleService {
	if maxPerOwner <= 0 {
		maxPerOwner = 3
	}
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	return &LifecycleService{
		bots:        bots,
		registry:    registry,
		validator:   validator,
		newWorker:   newWorker,
		locks:       newKeyedMutex(),
		metrics:     collector,
		logger:      logger,
		maxPerOwner: maxPerOwner,
		stopTimeout: stopTimeout,
	}
}

// CreateResult reports what a submission produced. Started is false when the
// record persisted but the worker could not be brought up; the record stays
// pending for a later approval pass.
type CreateResult struct {
	Bot     *domain.TenantBot `json:"bot"`
	Started bool              `json:"started"`
}

// CreateRequest validates the token, enforces quota and identity uniqueness,
// persists a pending record and auto-approves it. Nothing is persisted and no
// worker starts unless every check passes.
func (s *LifecycleService) CreateRequest(ctx context.Context, ownerID int64, name, token string) (*CreateResult, error) {
	identity, err := s.validator.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	count, err := s.bots.CountActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("check owner quota: %w", err)
	}
	if count >= s.maxPerOwner {
		return nil, ErrQuotaExceeded
	}

	inUse, err := s.bots.IdentityInUse(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("check identity: %w", err)
	}
	if inUse {
		return nil, ErrDuplicateIdentity
	}

	bot := &domain.TenantBot{
		OwnerID:       ownerID,
		Name:          name,
		Token:         token,
		Status:        domain.BotStatusPending,
		BotIdentityID: identity.ID,
		BotUsername:   identity.Username,
	}
	if err := s.bots.Create(ctx, bot); err != nil {
		// The unique index closes the race two concurrent submissions of the
		// same token would otherwise win together.
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrDuplicateIdentity
		}
		return nil, err
	}

	s.logger.Info("bot request created",
		zap.String("bot_id", bot.ID.String()),
		zap.Int64("owner_id", ownerID),
		zap.String("bot_username", bot.BotUsername))

	if err := s.ApproveAndStart(ctx, bot.ID, ownerID, autoApprovalNotes); err != nil {
		s.logger.Error("auto-approval failed", zap.String("bot_id", bot.ID.String()), zap.Error(err))
		return &CreateResult{Bot: bot, Started: false}, nil
	}

	approved, err := s.bots.GetByID(ctx, bot.ID)
	if err != nil {
		return &CreateResult{Bot: bot, Started: true}, nil
	}
	return &CreateResult{Bot: approved, Started: true}, nil
}

// ApproveAndStart persists approval and brings the worker up. Idempotent when
// the worker is already registered. A start failure reverts the record to its
// prior status and surfaces the error.
func (s *LifecycleService) ApproveAndStart(ctx context.Context, id uuid.UUID, approverID int64, notes string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	bot, err := s.bots.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrBotNotFound
		}
		return err
	}

	if s.registry.Contains(id) {
		return nil
	}

	prior := bot.Status
	if err := s.bots.Approve(ctx, id, approverID, notes); err != nil {
		return fmt.Errorf("persist approval: %w", err)
	}
	bot.Status = domain.BotStatusApproved

	if err := s.startLocked(ctx, bot); err != nil {
		if revertErr := s.bots.UpdateStatus(ctx, id, prior); revertErr != nil {
			s.logger.Error("revert after failed start",
				zap.String("bot_id", id.String()), zap.Error(revertErr))
		}
		return fmt.Errorf("start worker: %w", err)
	}
	return nil
}

// Stop gracefully stops the bot's worker and persists stopped status.
// Returns false, with no error, when no worker is registered.
func (s *LifecycleService) Stop(ctx context.Context, id uuid.UUID) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	if !s.stopWorkerLocked(ctx, id) {
		return false, nil
	}
	if err := s.bots.UpdateStatus(ctx, id, domain.BotStatusStopped); err != nil {
		return true, fmt.Errorf("persist stopped status: %w", err)
	}
	s.logger.Info("bot stopped", zap.String("bot_id", id.String()))
	return true, nil
}

// Restart stops any running worker and starts a fresh one, but only when the
// reloaded record is still approved.
func (s *LifecycleService) Restart(ctx context.Context, id uuid.UUID) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.stopWorkerLocked(ctx, id)

	bot, err := s.bots.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrBotNotFound
		}
		return false, err
	}
	if bot.Status != domain.BotStatusApproved {
		return false, nil
	}
	if err := s.startLocked(ctx, bot); err != nil {
		return false, fmt.Errorf("restart worker: %w", err)
	}
	s.logger.Info("bot restarted", zap.String("bot_id", id.String()))
	return true, nil
}

// StartAllApproved is the boot reconciliation pass: every approved record gets
// a worker. Per-record failures are logged and never abort the batch.
func (s *LifecycleService) StartAllApproved(ctx context.Context) (int, error) {
	bots, err := s.bots.ListByStatus(ctx, domain.BotStatusApproved)
	if err != nil {
		return 0, fmt.Errorf("list approved bots: %w", err)
	}

	started := 0
	for _, bot := range bots {
		unlock := s.locks.Lock(bot.ID)
		err := s.startLocked(ctx, bot)
		unlock()
		if err != nil {
			s.logger.Error("boot start failed",
				zap.String("bot_id", bot.ID.String()),
				zap.String("bot_username", bot.BotUsername),
				zap.Error(err))
			continue
		}
		started++
	}
	s.logger.Info("boot reconciliation complete",
		zap.Int("approved", len(bots)), zap.Int("started", started))
	return started, nil
}

// CleanupStopped corrects records the registry disagrees with: approved in
// the store but not running gets demoted to stopped.
func (s *LifecycleService) CleanupStopped(ctx context.Context) (int, error) {
	bots, err := s.bots.ListByStatus(ctx, domain.BotStatusApproved)
	if err != nil {
		return 0, fmt.Errorf("list approved bots: %w", err)
	}

	cleaned := 0
	for _, bot := range bots {
		unlock := s.locks.Lock(bot.ID)
		if !s.registry.Contains(bot.ID) {
			if err := s.bots.UpdateStatus(ctx, bot.ID, domain.BotStatusStopped); err != nil {
				s.logger.Error("cleanup demotion failed",
					zap.String("bot_id", bot.ID.String()), zap.Error(err))
			} else {
				cleaned++
			}
		}
		unlock()
	}
	if cleaned > 0 {
		s.logger.Info("cleanup reconciled stopped bots", zap.Int("count", cleaned))
	}
	return cleaned, nil
}

// ExtendTime pushes a bot's expiry out by days, anchored at the later of now
// and the current expiry. Extending an expired record revives it: status
// returns to approved and the worker starts immediately.
func (s *LifecycleService) ExtendTime(ctx context.Context, id uuid.UUID, days int, adminID int64) (*domain.TenantBot, error) {
	if days <= 0 {
		return nil, fmt.Errorf("extension days must be positive, got %d", days)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	bot, err := s.bots.Extend(ctx, id, days, adminID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBotNotFound
		}
		return nil, err
	}

	if bot.Status == domain.BotStatusApproved && !s.registry.Contains(id) {
		if err := s.startLocked(ctx, bot); err != nil {
			s.logger.Error("revival start failed",
				zap.String("bot_id", id.String()), zap.Error(err))
		}
	}

	s.logger.Info("bot extended",
		zap.String("bot_id", id.String()),
		zap.Int("days", days),
		zap.Int64("admin_id", adminID))
	return bot, nil
}

// ExpireOverdue stops and demotes every approved bot whose expiry has passed.
// The candidate list is a snapshot taken outside the per-tenant locks, so each
// record is re-fetched under its lock; an extension that landed in between
// leaves the bot untouched.
func (s *LifecycleService) ExpireOverdue(ctx context.Context) (int, error) {
	candidates, err := s.bots.ListExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("list expired bots: %w", err)
	}

	expired := 0
	for _, stale := range candidates {
		unlock := s.locks.Lock(stale.ID)
		bot, err := s.bots.GetByID(ctx, stale.ID)
		if err != nil {
			s.logger.Error("expire reload failed",
				zap.String("bot_id", stale.ID.String()), zap.Error(err))
			unlock()
			continue
		}
		if bot.Status != domain.BotStatusApproved ||
			bot.ExpiresAt == nil || bot.ExpiresAt.After(time.Now().UTC()) {
			unlock()
			continue
		}

		s.stopWorkerLocked(ctx, bot.ID)
		if err := s.bots.UpdateStatus(ctx, bot.ID, domain.BotStatusExpired); err != nil {
			s.logger.Error("expire demotion failed",
				zap.String("bot_id", bot.ID.String()), zap.Error(err))
		} else {
			expired++
			s.metrics.BotsExpired.Inc()
			s.logger.Info("bot expired",
				zap.String("bot_id", bot.ID.String()),
				zap.String("bot_username", bot.BotUsername))
		}
		unlock()
	}
	return expired, nil
}

// BotView is a persisted record augmented with live registry state.
type BotView struct {
	*domain.TenantBot
	IsRunning bool `json:"is_running"`
}

// GetBot returns one record with its live running flag.
func (s *LifecycleService) GetBot(ctx context.Context, id uuid.UUID) (*BotView, error) {
	bot, err := s.bots.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBotNotFound
		}
		return nil, err
	}
	return &BotView{TenantBot: bot, IsRunning: s.registry.Contains(id)}, nil
}

// OwnerBots lists an owner's records with live running flags.
func (s *LifecycleService) OwnerBots(ctx context.Context, ownerID int64) ([]*BotView, error) {
	bots, err := s.bots.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owner bots: %w", err)
	}
	views := make([]*BotView, 0, len(bots))
	for _, bot := range bots {
		views = append(views, &BotView{TenantBot: bot, IsRunning: s.registry.Contains(bot.ID)})
	}
	return views, nil
}

// Stats reports population totals plus the live running count.
func (s *LifecycleService) Stats(ctx context.Context) (*domain.BotStats, error) {
	stats, err := s.bots.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stats.Running = s.registry.Len()
	return stats, nil
}

// Shutdown stops every registered worker without demoting persisted status,
// so the next boot's reconciliation brings them all back.
func (s *LifecycleService) Shutdown(ctx context.Context) {
	for _, handle := range s.registry.List() {
		unlock := s.locks.Lock(handle.BotID)
		s.stopWorkerLocked(ctx, handle.BotID)
		unlock()
	}
	s.logger.Info("all workers stopped")
}

// startLocked brings a worker up for bot. Callers hold the tenant lock.
// Idempotent when a handle is already registered.
func (s *LifecycleService) startLocked(ctx context.Context, bot *domain.TenantBot) error {
	if s.registry.Contains(bot.ID) {
		return nil
	}

	runtime := s.newWorker(bot)
	if err := runtime.Start(ctx); err != nil {
		s.metrics.WorkerFailures.Inc()
		return err
	}

	s.registry.Register(&WorkerHandle{
		BotID:     bot.ID,
		StartedAt: time.Now().UTC(),
		Runtime:   runtime,
	})
	s.metrics.WorkerStarts.Inc()
	s.metrics.WorkersRunning.Set(float64(s.registry.Len()))
	s.logger.Info("worker started",
		zap.String("bot_id", bot.ID.String()),
		zap.String("bot_username", bot.BotUsername))
	return nil
}

// stopWorkerLocked unregisters and stops the bot's worker, bounded by the
// stop timeout. Callers hold the tenant lock. Returns false when no worker
// was registered.
func (s *LifecycleService) stopWorkerLocked(ctx context.Context, id uuid.UUID) bool {
	handle := s.registry.Unregister(id)
	if handle == nil {
		return false
	}

	stopCtx, cancel := context.WithTimeout(ctx, s.stopTimeout)
	defer cancel()
	if err := handle.Runtime.Stop(stopCtx); err != nil {
		s.logger.Warn("worker stop was not clean",
			zap.String("bot_id", id.String()), zap.Error(err))
	}
	s.metrics.WorkerStops.Inc()
	s.metrics.WorkersRunning.Set(float64(s.registry.Len()))
	return true
}
