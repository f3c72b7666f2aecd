package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"med-assist-go/internal/pipeline"
	"med-assist-go/internal/repository"
	"med-assist-go/pkg/log"

	"github.com/google/uuid"
)

// ErrSessionNotFound 表示会话不存在或已被回收。
var ErrSessionNotFound = errors.New("session not found")

const (
	DefaultIdleTTL         = 2 * time.Hour
	DefaultCleanupInterval = 10 * time.Minute
)

// Options 配置 Manager 创建的会话。
type Options struct {
	Stages      []pipeline.Stage
	UploadRules UploadRules
	Hooks       pipeline.Hooks
	IdleTTL     time.Duration
	// PipelineOptions 追加到每个新流水线上，测试中用来替换计时器。
	PipelineOptions []pipeline.Option
	// OnRemove 在会话被删除或回收后调用，用于清理暂存的文档。
	OnRemove func(ctx context.Context, s *Session)
}

// Manager 是进程内的会话注册表。
type Manager struct {
	history repository.ChatHistoryRepository
	opts    Options
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager 创建会话注册表。
func NewManager(history repository.ChatHistoryRepository, opts Options) *Manager {
	if opts.Stages == nil {
		opts.Stages = pipeline.DefaultStages()
	}
	if opts.UploadRules.AllowedMIMETypes == nil {
		opts.UploadRules = DefaultUploadRules()
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	return &Manager{
		history:  history,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// UploadRules 返回每个会话上传槽使用的校验规则。
func (m *Manager) UploadRules() UploadRules {
	return m.opts.UploadRules
}

// Create 新建一个会话。
func (m *Manager) Create() (*Session, error) {
	id := uuid.NewString()
	pipeOpts := append([]pipeline.Option{
		pipeline.WithStages(m.opts.Stages),
		pipeline.WithHooks(m.opts.Hooks),
	}, m.opts.PipelineOptions...)
	p, err := pipeline.New(id, m.history, pipeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	now := m.now()
	s := &Session{
		ID:         id,
		CreatedAt:  now,
		prefs:      NewPreferenceStore(),
		upload:     NewUploadSlot(m.opts.UploadRules),
		pipeline:   p,
		history:    m.history,
		lastActive: now,
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	log.Infof("[Session] 创建会话成功, ID: %s", id)
	return s, nil
}

// Get 返回会话并刷新活跃时间。
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.Touch(m.now())
	return s, nil
}

// Len 返回当前会话数。
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Delete 删除会话及其历史。正在处理提交的会话也会被删除，后台执行写入的历史随之失效。
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return m.release(ctx, s)
}

// Sweep 回收空闲超过 IdleTTL 且没有提交在执行的会话，返回被回收的 ID。
func (m *Manager) Sweep(ctx context.Context) []string {
	cutoff := m.now().Add(-m.opts.IdleTTL)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.pipeline.IsRunning() || s.LastActive().After(cutoff) {
			continue
		}
		expired = append(expired, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		if err := m.release(ctx, s); err != nil {
			log.Warnf("[Session] 回收会话 %s 时清理失败, Error: %v", s.ID, err)
		}
		ids = append(ids, s.ID)
	}
	if len(ids) > 0 {
		log.Infof("[Session] 回收了 %d 个空闲会话", len(ids))
	}
	return ids
}

// StartJanitor 在后台定期回收空闲会话，ctx 结束时退出。
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	go m.janitorLoop(ctx, interval)
}

func (m *Manager) janitorLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

func (m *Manager) release(ctx context.Context, s *Session) error {
	if m.opts.OnRemove != nil {
		m.opts.OnRemove(ctx, s)
	}
	if err := m.history.Drop(ctx, s.ID); err != nil {
		return fmt.Errorf("failed to drop history: %w", err)
	}
	return nil
}
