package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/telegram"
)

// fakeClient implements domain.BotClient for validator tests.
type fakeClient struct {
	identity *domain.Identity
	err      error
	delay    time.Duration
	closed   bool
}

func (f *fakeClient) GetMe(ctx context.Context) (*domain.Identity, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

func (f *fakeClient) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]domain.BotUpdate, error) {
	return nil, nil
}

func (f *fakeClient) SendMessage(ctx context.Context, msg domain.OutboundMessage) error {
	return nil
}

func (f *fakeClient) CloseIdleConnections() {
	f.closed = true
}

func TestValidator_Valid(t *testing.T) {
	client := &fakeClient{identity: &domain.Identity{ID: 42, Username: "test_bot"}}
	v := NewValidatorService(func(string) domain.BotClient { return client }, time.Second, zap.NewNop())

	identity, err := v.Validate(context.Background(), "token")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if identity.ID != 42 {
		t.Fatalf("expected identity 42, got %d", identity.ID)
	}
	if !client.closed {
		t.Fatal("expected connections released")
	}
}

func TestValidator_Unauthorized(t *testing.T) {
	client := &fakeClient{err: telegram.ErrUnauthorized}
	v := NewValidatorService(func(string) domain.BotClient { return client }, time.Second, zap.NewNop())

	_, err := v.Validate(context.Background(), "bad-token")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	if !client.closed {
		t.Fatal("expected connections released on failure")
	}
}

func TestValidator_Timeout(t *testing.T) {
	client := &fakeClient{delay: time.Second, identity: &domain.Identity{ID: 1}}
	v := NewValidatorService(func(string) domain.BotClient { return client }, 20*time.Millisecond, zap.NewNop())

	_, err := v.Validate(context.Background(), "slow-token")
	if !errors.Is(err, ErrValidationTimeout) {
		t.Fatalf("expected ErrValidationTimeout, got %v", err)
	}
	if !client.closed {
		t.Fatal("expected connections released on timeout")
	}
}

func TestValidator_UnknownErrorWrapped(t *testing.T) {
	cause := errors.New("network split")
	client := &fakeClient{err: cause}
	v := NewValidatorService(func(string) domain.BotClient { return client }, time.Second, zap.NewNop())

	_, err := v.Validate(context.Background(), "token")
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredential) || errors.Is(err, ErrValidationTimeout) {
		t.Fatalf("expected plain failure, got %v", err)
	}
}
