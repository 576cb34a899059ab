package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkerRuntime is the lifecycle contract every bot worker implements.
type WorkerRuntime interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// WorkerHandle is the in-memory record of one running worker.
type WorkerHandle struct {
	BotID     uuid.UUID
	StartedAt time.Time
	Runtime   WorkerRuntime
}

// WorkerRegistry is the ground truth for which bots are running. It only
// guards map structure; per-tenant operation ordering is the lifecycle
// manager's job.
type WorkerRegistry struct {
	mu      sync.RWMutex
	workers map[uuid.UUID]*WorkerHandle
}

func NewWorkerRegistry() *WorkerRegistry {
	return &WorkerRegistry{workers: make(map[uuid.UUID]*WorkerHandle)}
}

// Register adds a handle. Returns false, leaving the existing handle in
// place, when the bot already has one.
func (r *WorkerRegistry) Register(handle *WorkerHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workers[handle.BotID]; ok {
		return false
	}
	r.workers[handle.BotID] = handle
	return true
}

// Unregister removes and returns the handle for a bot, nil when absent.
func (r *WorkerRegistry) Unregister(botID uuid.UUID) *WorkerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle := r.workers[botID]
	delete(r.workers, botID)
	return handle
}

func (r *WorkerRegistry) Contains(botID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.workers[botID]
	return ok
}

func (r *WorkerRegistry) Get(botID uuid.UUID) *WorkerHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workers[botID]
}

func (r *WorkerRegistry) List() []*WorkerHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := make([]*WorkerHandle, 0, len(r.workers))
	for _, h := range r.workers {
		handles = append(handles, h)
	}
	return handles
}

func (r *WorkerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}
