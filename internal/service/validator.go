package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/telegram"
)

var (
	// ErrValidationTimeout is returned when the upstream check exceeds the
	// configured deadline.
	ErrValidationTimeout = errors.New("credential validation timed out")

	// ErrInvalidCredential is returned when the upstream rejects the token.
	ErrInvalidCredential = errors.New("invalid bot credential")
)

// ClientFactory builds a BotClient for one token.
type ClientFactory func(token string) domain.BotClient

// ValidatorService checks a submitted bot token against the upstream API.
type ValidatorService struct {
	newClient ClientFactory
	timeout   time.Duration
	logger    *zap.Logger
}

func NewValidatorService(newClient ClientFactory, timeout time.Duration, logger *zap.Logger) *ValidatorService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ValidatorService{
		newClient: newClient,
		timeout:   timeout,
		logger:    logger,
	}
}

// Validate performs a single identity lookup for the token. The ephemeral
// client's connections are released whatever the outcome.
func (s *ValidatorService) Validate(ctx context.Context, token string) (*domain.Identity, error) {
	client := s.newClient(token)
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	identity, err := client.GetMe(ctx)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, ErrValidationTimeout
		case errors.Is(err, telegram.ErrUnauthorized):
			return nil, ErrInvalidCredential
		default:
			s.logger.Warn("credential validation failed", zap.Error(err))
			return nil, fmt.Errorf("validate credential: %w", err)
		}
	}
	return identity, nil
}
