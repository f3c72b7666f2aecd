package repository

import (
	"context"
	"fmt"
	"sync"

	"med-assist-go/internal/model"
)

type memoryHistory struct {
	// entries 按提交顺序追加，List 时倒序输出，Prepend 因此是 O(1)。
	entries []model.ChatEntry
	ids     map[string]struct{}
}

type memoryChatHistoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*memoryHistory
}

// NewMemoryChatHistoryRepository 创建进程内的历史仓库，默认后端。
func NewMemoryChatHistoryRepository() ChatHistoryRepository {
	return &memoryChatHistoryRepository{sessions: make(map[string]*memoryHistory)}
}

func (r *memoryChatHistoryRepository) Prepend(_ context.Context, sessionID string, entry model.ChatEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.sessions[sessionID]
	if h == nil {
		h = &memoryHistory{ids: make(map[string]struct{})}
		r.sessions[sessionID] = h
	}
	if _, ok := h.ids[entry.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, entry.ID)
	}
	h.ids[entry.ID] = struct{}{}
	h.entries = append(h.entries, entry)
	return nil
}

func (r *memoryChatHistoryRepository) List(_ context.Context, sessionID string) ([]model.ChatEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h := r.sessions[sessionID]
	if h == nil {
		return []model.ChatEntry{}, nil
	}
	out := make([]model.ChatEntry, 0, len(h.entries))
	for i := len(h.entries) - 1; i >= 0; i-- {
		out = append(out, h.entries[i])
	}
	return out, nil
}

func (r *memoryChatHistoryRepository) Count(_ context.Context, sessionID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h := r.sessions[sessionID]; h != nil {
		return len(h.entries), nil
	}
	return 0, nil
}

func (r *memoryChatHistoryRepository) Drop(_ context.Context, sessionID string) error {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	return nil
}
