package session

import (
	"context"
	"sync"
	"time"

	"med-assist-go/internal/model"
	"med-assist-go/internal/pipeline"
	"med-assist-go/internal/repository"
)

// Session 聚合了一个用户的偏好、上传槽、提交流水线和聊天历史。
type Session struct {
	ID        string
	CreatedAt time.Time

	prefs    *PreferenceStore
	upload   *UploadSlot
	pipeline *pipeline.Pipeline
	history  repository.ChatHistoryRepository

	mu         sync.Mutex
	lastActive time.Time
}

// State 是对外可观察的会话快照。
type State struct {
	ID            string               `json:"id"`
	Preferences   model.Preferences    `json:"preferences"`
	Document      *model.UploadedFile  `json:"document,omitempty"`
	UploadError   string               `json:"uploadError,omitempty"`
	Status        model.PipelineStatus `json:"status"`
	CurrentAnswer string               `json:"currentAnswer,omitempty"`
	HistorySize   int                  `json:"historySize"`
}

func (s *Session) Preferences() *PreferenceStore { return s.prefs }
func (s *Session) Upload() *UploadSlot           { return s.upload }
func (s *Session) Pipeline() *pipeline.Pipeline  { return s.pipeline }

// Touch 刷新最近活跃时间。
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// request 在受理时刻冻结偏好和文档，之后对偏好或上传槽的修改不影响本次提交。
func (s *Session) request(question string) pipeline.Request {
	return pipeline.Request{
		Question:    question,
		Preferences: s.prefs.Get(),
		Document:    s.upload.DocumentRef(),
	}
}

// Submit 同步提交问题，返回新建的聊天记录。
func (s *Session) Submit(ctx context.Context, question string) (*model.ChatEntry, error) {
	return s.pipeline.Submit(ctx, s.request(question))
}

// Start 异步提交问题，受理检查失败时立即返回错误。
func (s *Session) Start(ctx context.Context, question string) (<-chan pipeline.Result, error) {
	return s.pipeline.Start(ctx, s.request(question))
}

// History 返回聊天历史，最新在前。
func (s *Session) History(ctx context.Context) ([]model.ChatEntry, error) {
	return s.history.List(ctx, s.ID)
}

// HistoryIsEmpty 报告是否还没有任何聊天记录。
func (s *Session) HistoryIsEmpty(ctx context.Context) (bool, error) {
	n, err := s.history.Count(ctx, s.ID)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Snapshot 汇总当前会话的对外状态。
func (s *Session) Snapshot(ctx context.Context) (State, error) {
	doc, uploadErr := s.upload.Snapshot()
	current, _ := s.pipeline.CurrentAnswer()
	n, err := s.history.Count(ctx, s.ID)
	if err != nil {
		return State{}, err
	}
	return State{
		ID:            s.ID,
		Preferences:   s.prefs.Get(),
		Document:      doc,
		UploadError:   uploadErr,
		Status:        s.pipeline.Status(),
		CurrentAnswer: current,
		HistorySize:   n,
	}, nil
}
