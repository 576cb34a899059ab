package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/botforge/botforge/internal/domain"
)

func TestClient_GetMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottest-token/getMe", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": map[string]any{
				"id":         12345,
				"username":   "demo_bot",
				"first_name": "Demo",
			},
		})
	}))
	defer srv.Close()

	c := NewClient("test-token", srv.URL)
	identity, err := c.GetMe(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(12345), identity.ID)
	require.Equal(t, "demo_bot", identity.Username)
}

func TestClient_GetMeUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 401, "description": "Unauthorized"})
	}))
	defer srv.Close()

	c := NewClient("bad-token", srv.URL)
	_, err := c.GetMe(context.Background())
	require.True(t, errors.Is(err, ErrUnauthorized))
}

func TestClient_GetMeAPILevelUnauthorized(t *testing.T) {
	// Some gateways answer 200 with ok=false and the code in the envelope.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 401, "description": "Unauthorized"})
	}))
	defer srv.Close()

	c := NewClient("bad-token", srv.URL)
	_, err := c.GetMe(context.Background())
	require.True(t, errors.Is(err, ErrUnauthorized))
}

func TestClient_GetUpdates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		require.Equal(t, float64(42), params["offset"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": []map[string]any{
				{
					"update_id": 42,
					"message": map[string]any{
						"text": "hello",
						"from": map[string]any{"id": 7, "username": "ali", "first_name": "Ali"},
						"chat": map[string]any{"id": 7},
					},
				},
				{
					// Non-message update: surfaced empty so the offset advances.
					"update_id": 43,
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("test-token", srv.URL)
	updates, err := c.GetUpdates(context.Background(), 42, 5)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	require.Equal(t, int64(42), updates[0].UpdateID)
	require.Equal(t, "hello", updates[0].Text)
	require.Equal(t, int64(7), updates[0].UserID)
	require.Equal(t, int64(43), updates[1].UpdateID)
	require.Zero(t, updates[1].UserID)
}

func TestClient_SendMessageKeyboard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		require.Equal(t, "hi", params["text"])
		markup, ok := params["reply_markup"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, true, markup["resize_keyboard"])

		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{}})
	}))
	defer srv.Close()

	c := NewClient("test-token", srv.URL)
	err := c.SendMessage(context.Background(), domain.OutboundMessage{
		ChatID:      7,
		Text:        "hi",
		ReplyMarkup: [][]string{{"A", "B"}},
	})
	require.NoError(t, err)
}
