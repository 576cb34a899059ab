package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/botforge/botforge/internal/service"
)

// BotHandler exposes bot lifecycle operations over HTTP.
type BotHandler struct {
	lifecycle *service.LifecycleService
}

func NewBotHandler(lifecycle *service.LifecycleService) *BotHandler {
	return &BotHandler{lifecycle: lifecycle}
}

type createBotRequest struct {
	OwnerID int64  `json:"owner_id"`
	Name    string `json:"name"`
	Token   string `json:"token"`
}

func (h *BotHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OwnerID == 0 || req.Token == "" {
		writeError(w, http.StatusBadRequest, "owner_id and token are required")
		return
	}

	result, err := h.lifecycle.CreateRequest(r.Context(), req.OwnerID, req.Name, req.Token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredential):
			writeError(w, http.StatusUnprocessableEntity, "bot token rejected by upstream")
		case errors.Is(err, service.ErrValidationTimeout):
			writeError(w, http.StatusGatewayTimeout, "token validation timed out")
		case errors.Is(err, service.ErrDuplicateIdentity):
			writeError(w, http.StatusConflict, "bot identity already registered")
		case errors.Is(err, service.ErrQuotaExceeded):
			writeError(w, http.StatusForbidden, "bot quota exceeded")
		default:
			writeError(w, http.StatusInternalServerError, "failed to create bot")
		}
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *BotHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, err := strconv.ParseInt(r.URL.Query().Get("owner_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "owner_id query parameter is required")
		return
	}

	bots, err := h.lifecycle.OwnerBots(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list bots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bots": bots})
}

func (h *BotHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.lifecycle.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *BotHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseBotID(w, r)
	if !ok {
		return
	}

	bot, err := h.lifecycle.GetBot(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrBotNotFound) {
			writeError(w, http.StatusNotFound, "bot not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load bot")
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

func (h *BotHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id, ok := parseBotID(w, r)
	if !ok {
		return
	}

	stopped, err := h.lifecycle.Stop(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stop bot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

func (h *BotHandler) Restart(w http.ResponseWriter, r *http.Request) {
	id, ok := parseBotID(w, r)
	if !ok {
		return
	}

	restarted, err := h.lifecycle.Restart(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrBotNotFound) {
			writeError(w, http.StatusNotFound, "bot not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to restart bot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"restarted": restarted})
}

type extendBotRequest struct {
	Days    int   `json:"days"`
	AdminID int64 `json:"admin_id"`
}

func (h *BotHandler) Extend(w http.ResponseWriter, r *http.Request) {
	id, ok := parseBotID(w, r)
	if !ok {
		return
	}

	var req extendBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Days <= 0 {
		writeError(w, http.StatusBadRequest, "days must be positive")
		return
	}

	bot, err := h.lifecycle.ExtendTime(r.Context(), id, req.Days, req.AdminID)
	if err != nil {
		if errors.Is(err, service.ErrBotNotFound) {
			writeError(w, http.StatusNotFound, "bot not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to extend bot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         bot.ID,
		"expires_at": bot.ExpiresAt,
		"status":     bot.Status,
	})
}

func parseBotID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bot id")
		return uuid.Nil, false
	}
	return id, true
}
