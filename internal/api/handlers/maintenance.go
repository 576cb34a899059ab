package handlers

import (
	"net/http"

	"github.com/botforge/botforge/internal/service"
)

// MaintenanceHandler triggers the sweeps manually, outside the background
// sweeper's schedule.
type MaintenanceHandler struct {
	lifecycle *service.LifecycleService
}

func NewMaintenanceHandler(lifecycle *service.LifecycleService) *MaintenanceHandler {
	return &MaintenanceHandler{lifecycle: lifecycle}
}

func (h *MaintenanceHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	cleaned, err := h.lifecycle.CleanupStopped(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleaned": cleaned})
}

func (h *MaintenanceHandler) Expire(w http.ResponseWriter, r *http.Request) {
	expired, err := h.lifecycle.ExpireOverdue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "expiration failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"expired": expired})
}
