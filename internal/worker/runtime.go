// Package worker implements the per-tenant long-poll runtime. Each approved
// bot gets exactly one Runtime; the lifecycle manager owns starting and
// stopping it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/botforge/botforge/internal/domain"
)

const errorBackoff = 3 * time.Second

// Runtime runs one bot's receive loop and its menu state machine.
type Runtime struct {
	bot    *domain.TenantBot
	client domain.BotClient
	users  domain.EndUserStore
	logger *zap.Logger

	pollTimeout time.Duration
	// Throttles broadcast sends so one tenant cannot flood the upstream API.
	sendLimiter *rate.Limiter
	table       map[userState]map[inputClass]actionFunc

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func NewRuntime(bot *domain.TenantBot, client domain.BotClient, users domain.EndUserStore, pollTimeout time.Duration, logger *zap.Logger) *Runtime {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	r := &Runtime{
		bot:    bot,
		client: client,
		users:  users,
		logger: logger.With(
			zap.String("bot_id", bot.ID.String()),
			zap.String("bot_username", bot.BotUsername),
		),
		pollTimeout: pollTimeout,
		sendLimiter: rate.NewLimiter(rate.Every(50*time.Millisecond), 1),
	}
	r.table = r.transitions()
	return r
}

// Start verifies the worker's store is reachable and spawns the receive loop.
// The loop runs on its own context so the caller's deadline only bounds the
// probe, not the worker's lifetime.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return errors.New("worker already started")
	}

	if _, err := r.users.Stats(ctx, r.bot.ID); err != nil {
		return fmt.Errorf("worker store probe: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.loop(loopCtx)
	return nil
}

// Stop halts intake and waits for the loop to drain, bounded by the caller's
// deadline. Idempotent; a second call returns immediately.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.done == nil || r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	done := r.done
	r.cancel()
	r.mu.Unlock()

	defer r.client.CloseIdleConnections()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// The loop was already cancelled; we just stop waiting for it.
		return fmt.Errorf("worker stop: %w", ctx.Err())
	}
}

func (r *Runtime) loop(ctx context.Context) {
	defer close(r.done)
	r.logger.Info("worker loop started")

	var offset int64
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("worker loop exited")
			return
		default:
		}

		updates, err := r.client.GetUpdates(ctx, offset, int(r.pollTimeout.Seconds()))
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("worker loop exited")
				return
			}
			r.logger.Warn("poll failed", zap.Error(err))
			select {
			case <-time.After(errorBackoff):
			case <-ctx.Done():
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			r.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate processes one inbound message. Panics and errors stay inside
// the worker; a bad update never takes the loop down.
func (r *Runtime) handleUpdate(ctx context.Context, update domain.BotUpdate) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("update handler panicked",
				zap.Int64("update_id", update.UpdateID),
				zap.Any("panic", rec))
		}
	}()

	if update.UserID == 0 {
		return
	}

	if err := r.users.Upsert(ctx, &domain.EndUser{
		BotID:     r.bot.ID,
		UserID:    update.UserID,
		Username:  update.Username,
		FirstName: update.FirstName,
		LastName:  update.LastName,
	}); err != nil {
		r.logger.Error("user upsert failed", zap.Int64("user_id", update.UserID), zap.Error(err))
		return
	}

	user, err := r.users.Get(ctx, r.bot.ID, update.UserID)
	if err != nil {
		r.logger.Error("user load failed", zap.Int64("user_id", update.UserID), zap.Error(err))
		return
	}

	if err := r.dispatch(ctx, user, update); err != nil {
		r.logger.Warn("update handling failed",
			zap.Int64("user_id", update.UserID),
			zap.String("text", update.Text),
			zap.Error(err))
	}
}

func (r *Runtime) send(ctx context.Context, chatID int64, text string, keyboard [][]string) error {
	return r.client.SendMessage(ctx, domain.OutboundMessage{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: keyboard,
	})
}

func (r *Runtime) actPromptLanguage(ctx context.Context, _ *domain.EndUser, update domain.BotUpdate) error {
	return r.send(ctx, update.ChatID, languagePrompt, languageKeyboard)
}

func (r *Runtime) actSetLanguage(lang domain.Language) actionFunc {
	return func(ctx context.Context, user *domain.EndUser, update domain.BotUpdate) error {
		if err := r.users.SetLanguage(ctx, r.bot.ID, user.UserID, lang); err != nil {
			return fmt.Errorf("persist language: %w", err)
		}
		return r.send(ctx, update.ChatID, text(lang, "welcome"), menuKeyboard(lang))
	}
}

func (r *Runtime) actShowMenu(ctx context.Context, user *domain.EndUser, update domain.BotUpdate) error {
	return r.send(ctx, update.ChatID, text(user.Language, "menu"), menuKeyboard(user.Language))
}

func (r *Runtime) actProfile(ctx context.Context, user *domain.EndUser, update domain.BotUpdate) error {
	msg := fmt.Sprintf(text(user.Language, "profile"),
		user.FirstName, user.Username, user.JoinedAt.Format("2006-01-02"))
	return r.send(ctx, update.ChatID, msg, menuKeyboard(user.Language))
}

func (r *Runtime) actStats(ctx context.Context, user *domain.EndUser, update domain.BotUpdate) error {
	msg := fmt.Sprintf(text(user.Language, "stats"),
		user.MessageCount, user.JoinedAt.Format("2006-01-02"))
	return r.send(ctx, update.ChatID, msg, menuKeyboard(user.Language))
}

// actSettings clears the stored language so the next input goes through the
// language selector again.
func (r *Runtime) actSettings(ctx context.Context, user *domain.EndUser, update domain.BotUpdate) error {
	if err := r.users.SetLanguage(ctx, r.bot.ID, user.UserID, domain.LanguageUnset); err != nil {
		return fmt.Errorf("reset language: %w", err)
	}
	return r.send(ctx, update.ChatID, text(user.Language, "settings"), languageKeyboard)
}

func (r *Runtime) actHelp(ctx context.Context, user *domain.EndUser, update domain.BotUpdate) error {
	return r.send(ctx, update.ChatID, text(user.Language, "help"), menuKeyboard(user.Language))
}

func (r *Runtime) actSupport(ctx context.Context, user *domain.EndUser, update domain.BotUpdate) error {
	return r.send(ctx, update.ChatID, text(user.Language, "support"), menuKeyboard(user.Language))
}

func (r *Runtime) actUnknown(ctx context.Context, user *domain.EndUser, update domain.BotUpdate) error {
	return r.send(ctx, update.ChatID, text(user.Language, "unknown"), menuKeyboard(user.Language))
}

func (r *Runtime) actAdminUsers(ctx context.Context, user *domain.EndUser, update domain.BotUpdate) error {
	users, err := r.users.List(ctx, r.bot.ID)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👥 Users: %d\n", len(users))
	const maxListed = 20
	for i, u := range users {
		if i == maxListed {
			fmt.Fprintf(&b, "... and %d more\n", len(users)-maxListed)
			break
		}
		fmt.Fprintf(&b, "%d. %s @%s (%d msgs)\n", i+1, u.FirstName, u.Username, u.MessageCount)
	}
	return r.send(ctx, update.ChatID, b.String(), menuKeyboard(user.Language))
}

func (r *Runtime) actAdminStats(ctx context.Context, user *domain.EndUser, update domain.BotUpdate) error {
	stats, err := r.users.Stats(ctx, r.bot.ID)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	msg := fmt.Sprintf("📊 Bot stats:\nUsers: %d\nMessages: %d\nActive today: %d",
		stats.TotalUsers, stats.TotalMessages, stats.ActiveToday)
	return r.send(ctx, update.ChatID, msg, menuKeyboard(user.Language))
}

// actAdminBroadcast sends the text after the command to every user of this
// bot, throttled by the send limiter.
func (r *Runtime) actAdminBroadcast(ctx context.Context, user *domain.EndUser, update domain.BotUpdate) error {
	message := strings.TrimSpace(strings.TrimPrefix(update.Text, "/broadcast"))
	if message == "" {
		return r.send(ctx, update.ChatID, "Usage: /broadcast <message>", menuKeyboard(user.Language))
	}

	users, err := r.users.List(ctx, r.bot.ID)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	sent, failed := 0, 0
	for _, u := range users {
		if err := r.sendLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("broadcast throttle: %w", err)
		}
		if err := r.send(ctx, u.UserID, message, nil); err != nil {
			failed++
			r.logger.Warn("broadcast send failed", zap.Int64("user_id", u.UserID), zap.Error(err))
			continue
		}
		sent++
	}

	summary := fmt.Sprintf("📢 Broadcast done: %d sent, %d failed", sent, failed)
	return r.send(ctx, update.ChatID, summary, menuKeyboard(user.Language))
}
