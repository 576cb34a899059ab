// Package telegram implements the upstream Bot API client used by the
// validator and by each tenant worker.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/botforge/botforge/internal/domain"
)

// ErrUnauthorized is returned when the upstream API rejects the bot token.
var ErrUnauthorized = errors.New("telegram: unauthorized token")

const defaultBaseURL = "https://api.telegram.org"

// Client talks to the Bot API on behalf of a single token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient builds a client for one token. baseURL is overridable for tests
// and self-hosted API gateways; empty selects the public endpoint.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		// Long polls hold the connection open for the poll timeout, so the
		// client timeout has to clear it with room to spare.
		httpClient: &http.Client{Timeout: 90 * time.Second},
		baseURL:    baseURL,
		token:      token,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

type apiUser struct {
	ID                      int64  `json:"id"`
	Username                string `json:"username"`
	FirstName               string `json:"first_name"`
	CanJoinGroups           bool   `json:"can_join_groups"`
	CanReadAllGroupMessages bool   `json:"can_read_all_group_messages"`
	SupportsInlineQueries   bool   `json:"supports_inline_queries"`
}

type apiUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		From *struct {
			ID        int64  `json:"id"`
			Username  string `json:"username"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

func (c *Client) GetMe(ctx context.Context) (*domain.Identity, error) {
	var user apiUser
	if err := c.call(ctx, "getMe", nil, &user); err != nil {
		return nil, err
	}
	return &domain.Identity{
		ID:                      user.ID,
		Username:                user.Username,
		FirstName:               user.FirstName,
		CanJoinGroups:           user.CanJoinGroups,
		CanReadAllGroupMessages: user.CanReadAllGroupMessages,
		SupportsInlineQueries:   user.SupportsInlineQueries,
	}, nil
}

func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]domain.BotUpdate, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         timeoutSeconds,
		"allowed_updates": []string{"message"},
	}
	var raw []apiUpdate
	if err := c.call(ctx, "getUpdates", params, &raw); err != nil {
		return nil, err
	}

	updates := make([]domain.BotUpdate, 0, len(raw))
	for _, u := range raw {
		if u.Message == nil || u.Message.From == nil {
			// Still surfaced so the caller advances its offset past it.
			updates = append(updates, domain.BotUpdate{UpdateID: u.UpdateID})
			continue
		}
		updates = append(updates, domain.BotUpdate{
			UpdateID:  u.UpdateID,
			UserID:    u.Message.From.ID,
			ChatID:    u.Message.Chat.ID,
			Username:  u.Message.From.Username,
			FirstName: u.Message.From.FirstName,
			LastName:  u.Message.From.LastName,
			Text:      u.Message.Text,
		})
	}
	return updates, nil
}

func (c *Client) SendMessage(ctx context.Context, msg domain.OutboundMessage) error {
	params := map[string]any{
		"chat_id": msg.ChatID,
		"text":    msg.Text,
	}
	if len(msg.ReplyMarkup) > 0 {
		rows := make([][]map[string]string, 0, len(msg.ReplyMarkup))
		for _, row := range msg.ReplyMarkup {
			buttons := make([]map[string]string, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, map[string]string{"text": label})
			}
			rows = append(rows, buttons)
		}
		params["reply_markup"] = map[string]any{
			"keyboard":        rows,
			"resize_keyboard": true,
		}
	}
	return c.call(ctx, "sendMessage", params, nil)
}

func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) call(ctx context.Context, method string, params map[string]any, out any) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	var body io.Reader
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("telegram: encode %s params: %w", method, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("telegram: build %s request: %w", method, err)
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("telegram: decode %s response: %w", method, err)
	}
	if !envelope.OK {
		if envelope.ErrorCode == 401 || envelope.ErrorCode == 403 {
			return ErrUnauthorized
		}
		return fmt.Errorf("telegram: %s failed: %s (code %d)", method, envelope.Description, envelope.ErrorCode)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram: decode %s result: %w", method, err)
		}
	}
	return nil
}

var _ domain.BotClient = (*Client)(nil)
