// Package pipeline 定义了问题提交的核心流程：校验 -> 按序执行模拟阶段 -> 合成回答 -> 写入历史。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"med-assist-go/internal/answer"
	"med-assist-go/internal/model"
	"med-assist-go/pkg/log"

	"github.com/google/uuid"
)

var (
	// ErrEmptyQuestion 表示去掉首尾空白后问题为空，提交被忽略。
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrSubmissionInFlight 表示已有一次提交在执行，新的提交被拒绝（不排队）。
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
)

// HistoryWriter 是流水线完成时写入历史的目标。
type HistoryWriter interface {
	Prepend(ctx context.Context, sessionID string, entry model.ChatEntry) error
}

// SynthesizeFunc 生成回答文本。默认是 answer.Synthesize，接入真实模型时替换它。
type SynthesizeFunc func(question string, prefs model.Preferences, doc *model.DocumentRef) string

// Request 是一次提交的输入，偏好与文档在受理时刻冻结。
type Request struct {
	Question    string
	Preferences model.Preferences
	Document    *model.DocumentRef
}

// Result 是异步提交的结果。
type Result struct {
	Entry *model.ChatEntry
	Err   error
}

// Hooks 在状态变化、阶段完成和提交完成时被同步调用，用于指标和事件投递。
type Hooks struct {
	OnStatus    func(sessionID string, status model.PipelineStatus)
	OnStageDone func(sessionID string, stage Stage, elapsed time.Duration)
	OnComplete  func(sessionID string, entry model.ChatEntry)
}

// Pipeline 封装了单个会话的提交状态机。同一时刻最多只有一次执行。
type Pipeline struct {
	sessionID  string
	stages     []Stage
	history    HistoryWriter
	synthesize SynthesizeFunc
	now        func() time.Time
	newID      func() string
	wait       func(ctx context.Context, d time.Duration) error
	hooks      Hooks

	mu            sync.RWMutex
	running       bool
	status        model.PipelineStatus
	currentAnswer string
	subscribers   map[int]chan model.PipelineStatus
	nextSub       int
}

// Option 配置 Pipeline。
type Option func(*Pipeline)

func WithStages(stages []Stage) Option {
	return func(p *Pipeline) { p.stages = append([]Stage(nil), stages...) }
}

func WithSynthesizer(fn SynthesizeFunc) Option {
	return func(p *Pipeline) { p.synthesize = fn }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) { p.newID = fn }
}

// WithWaiter 替换阶段计时器，测试中用来精确控制阶段的推进。
func WithWaiter(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) { p.wait = fn }
}

func WithHooks(h Hooks) Option {
	return func(p *Pipeline) { p.hooks = h }
}

// New 创建一个新的 Pipeline 实例。
func New(sessionID string, history HistoryWriter, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		sessionID:   sessionID,
		stages:      DefaultStages(),
		history:     history,
		synthesize:  answer.Synthesize,
		now:         time.Now,
		newID:       newEntryID,
		wait:        sleep,
		subscribers: make(map[int]chan model.PipelineStatus),
	}
	for _, opt := range opts {
		opt(p)
	}
	if history == nil {
		return nil, errors.New("pipeline: history writer is required")
	}
	if err := ValidateStages(p.stages); err != nil {
		return nil, err
	}
	p.status = p.idleStatus()
	return p, nil
}

// Stages 返回阶段列表的副本。
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Status 返回当前状态快照。
func (p *Pipeline) Status() model.PipelineStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// CurrentAnswer 返回最近一次完成的回答；执行中或从未完成时 ok 为 false。
func (p *Pipeline) CurrentAnswer() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentAnswer, p.currentAnswer != ""
}

// Submit 同步执行一次提交，直到流水线回到 Idle。
func (p *Pipeline) Submit(ctx context.Context, req Request) (*model.ChatEntry, error) {
	done, err := p.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	res := <-done
	return res.Entry, res.Err
}

// Start 同步完成受理检查（空问题、重入），然后在后台执行各阶段。
// 被拒绝时不改变任何状态。
func (p *Pipeline) Start(ctx context.Context, req Request) (<-chan Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return nil, ErrEmptyQuestion
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		log.Infof("[Pipeline] 会话 %s 已有提交在执行，忽略新的提交", p.sessionID)
		return nil, ErrSubmissionInFlight
	}
	// 受理后立即展示第一个阶段的文案，界面不会出现空白的处理中状态
	validating := model.PipelineStatus{
		State:        model.StateValidating,
		IsProcessing: true,
		StatusText:   p.stages[0].Label,
		TotalStages:  len(p.stages),
	}
	p.running = true
	p.currentAnswer = ""
	p.status = validating
	p.broadcastLocked(validating)
	p.mu.Unlock()
	p.notify(validating)

	done := make(chan Result, 1)
	go func() {
		entry, err := p.run(ctx, req)
		done <- Result{Entry: entry, Err: err}
		close(done)
	}()
	return done, nil
}

func (p *Pipeline) run(ctx context.Context, req Request) (*model.ChatEntry, error) {
	defer p.finish()

	total := len(p.stages)
	log.Infof("[Pipeline] 开始处理提交, 会话: %s, 阶段数: %d", p.sessionID, total)

	for i, stage := range p.stages {
		p.setStatus(model.PipelineStatus{
			State:        model.StateStaged,
			IsProcessing: true,
			StatusText:   stage.Label,
			Stage:        i + 1,
			StageName:    stage.Name,
			TotalStages:  total,
		})
		log.Infof("[Pipeline] 阶段%d/%d: %s (%s)", i+1, total, stage.Name, stage.Duration)

		started := time.Now()
		if err := p.wait(ctx, stage.Duration); err != nil {
			log.Warnf("[Pipeline] 阶段 %s 被中断, 会话: %s, Error: %v", stage.Name, p.sessionID, err)
			return nil, fmt.Errorf("stage %s interrupted: %w", stage.Name, err)
		}
		if p.hooks.OnStageDone != nil {
			p.hooks.OnStageDone(p.sessionID, stage, time.Since(started))
		}
	}

	entry := model.ChatEntry{
		ID:          p.newID(),
		Question:    req.Question,
		Answer:      p.synthesize(req.Question, req.Preferences, req.Document),
		CreatedAt:   p.now(),
		Preferences: req.Preferences,
		Document:    copyDocument(req.Document),
	}

	// 所有阶段已完成，写入历史时不再受请求取消的影响
	if err := p.history.Prepend(context.Background(), p.sessionID, entry); err != nil {
		log.Errorf("[Pipeline] 写入聊天历史失败, 会话: %s, Error: %v", p.sessionID, err)
		return nil, fmt.Errorf("failed to save chat entry: %w", err)
	}

	p.mu.Lock()
	p.currentAnswer = entry.Answer
	p.mu.Unlock()
	// Completed 期间重入锁仍未释放，IsProcessing 保持为 true，直到 finish 回到 Idle
	p.setStatus(model.PipelineStatus{State: model.StateCompleted, IsProcessing: true, TotalStages: total})

	if p.hooks.OnComplete != nil {
		p.hooks.OnComplete(p.sessionID, entry)
	}
	log.Infof("[Pipeline] 提交处理完成, 会话: %s, EntryID: %s", p.sessionID, entry.ID)
	return &entry, nil
}

// finish 在同一临界区内回到 Idle 并释放重入锁，新的提交因此不会被旧的 Idle 覆盖。
func (p *Pipeline) finish() {
	idle := p.idleStatus()
	p.mu.Lock()
	p.status = idle
	p.running = false
	p.broadcastLocked(idle)
	p.mu.Unlock()
	p.notify(idle)
}

func (p *Pipeline) idleStatus() model.PipelineStatus {
	return model.PipelineStatus{State: model.StateIdle, TotalStages: len(p.stages)}
}

func (p *Pipeline) setStatus(s model.PipelineStatus) {
	p.mu.Lock()
	p.status = s
	p.broadcastLocked(s)
	p.mu.Unlock()
	p.notify(s)
}

// broadcastLocked 要求调用方持有 p.mu。
func (p *Pipeline) broadcastLocked(s model.PipelineStatus) {
	for _, ch := range p.subscribers {
		select {
		case ch <- s:
		default:
			// 订阅者消费太慢时丢弃，Status() 始终可以拿到最新值
		}
	}
}

func (p *Pipeline) notify(s model.PipelineStatus) {
	if p.hooks.OnStatus != nil {
		p.hooks.OnStatus(p.sessionID, s)
	}
}

// Subscribe 订阅状态变化。返回的 cancel 必须调用，它会关闭通道。
func (p *Pipeline) Subscribe(buffer int) (<-chan model.PipelineStatus, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan model.PipelineStatus, buffer)

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subscribers[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subscribers, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

// IsRunning 报告是否有提交在执行。
func (p *Pipeline) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func copyDocument(doc *model.DocumentRef) *model.DocumentRef {
	if doc == nil {
		return nil
	}
	c := *doc
	return &c
}

// newEntryID 使用 UUIDv7，ID 中带有创建时间且按时间有序。
func newEntryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
