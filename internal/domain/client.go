package domain

import "context"

// BotUpdate is one inbound event from the upstream long-poll API.
type BotUpdate struct {
	UpdateID  int64
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string
	LastName  string
	Text      string
}

// OutboundMessage is a message a worker sends back through the upstream API.
type OutboundMessage struct {
	ChatID      int64
	Text        string
	ReplyMarkup [][]string
}

// BotClient talks to the upstream Bot API on behalf of a single token.
type BotClient interface {
	GetMe(ctx context.Context) (*Identity, error)
	GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]BotUpdate, error)
	SendMessage(ctx context.Context, msg OutboundMessage) error
	CloseIdleConnections()
}
