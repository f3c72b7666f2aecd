package service

import (
	"context"
	"time"

	"med-assist-go/internal/metrics"
	"med-assist-go/internal/model"
	"med-assist-go/internal/pipeline"
	"med-assist-go/internal/session"
	"med-assist-go/internal/view"
	"med-assist-go/pkg/kafka"
	"med-assist-go/pkg/log"
	"med-assist-go/pkg/tasks"
)

const publishTimeout = 5 * time.Second

// ChatService 定义了提问、进度和回答相关的业务操作。
type ChatService interface {
	// Ask 同步执行一次提交，直到流水线回到 Idle。
	Ask(ctx context.Context, sessionID, question string) (*model.ChatEntry, error)
	// AskAsync 只做受理检查，流水线在后台执行，不受请求结束影响。
	AskAsync(sessionID, question string) (model.PipelineStatus, error)
	Status(sessionID string) (view.ProcessingView, error)
	WatchStatus(sessionID string) (<-chan model.PipelineStatus, func(), error)
	CurrentAnswer(ctx context.Context, sessionID string) (view.AnswerView, error)
}

type chatService struct {
	sessions *session.Manager
	metrics  *metrics.Metrics
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(sessions *session.Manager, m *metrics.Metrics) ChatService {
	return &chatService{sessions: sessions, metrics: m}
}

func (s *chatService) Ask(ctx context.Context, sessionID, question string) (*model.ChatEntry, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	entry, err := sess.Submit(ctx, question)
	s.metrics.ObserveSubmission(err)
	if err != nil {
		log.Warnf("[ChatService] 提交未完成, 会话: %s, Error: %v", sessionID, err)
		return nil, err
	}
	return entry, nil
}

func (s *chatService) AskAsync(sessionID, question string) (model.PipelineStatus, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return model.PipelineStatus{}, err
	}
	// 使用后台上下文，HTTP 请求返回后流水线仍需继续执行
	done, err := sess.Start(context.Background(), question)
	if err != nil {
		s.metrics.ObserveSubmission(err)
		return sess.Pipeline().Status(), err
	}
	go func() {
		res := <-done
		s.metrics.ObserveSubmission(res.Err)
		if res.Err != nil {
			log.Errorf("[ChatService] 后台提交失败, 会话: %s, Error: %v", sessionID, res.Err)
		}
	}()
	return sess.Pipeline().Status(), nil
}

func (s *chatService) Status(sessionID string) (view.ProcessingView, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return view.ProcessingView{}, err
	}
	return view.NewProcessingView(sess.Pipeline().Status()), nil
}

func (s *chatService) WatchStatus(sessionID string) (<-chan model.PipelineStatus, func(), error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := sess.Pipeline().Subscribe(32)
	return ch, cancel, nil
}

// CurrentAnswer 返回当前回答的结构化视图。紧急标记取自产生该回答的记录的偏好快照。
func (s *chatService) CurrentAnswer(ctx context.Context, sessionID string) (view.AnswerView, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return view.AnswerView{}, err
	}
	text, ok := sess.Pipeline().CurrentAnswer()
	if !ok {
		return view.NewAnswerView("", ""), nil
	}
	urgency := sess.Preferences().Get().Urgency
	history, err := sess.History(ctx)
	if err != nil {
		return view.AnswerView{}, err
	}
	if len(history) > 0 && history[0].Answer == text {
		urgency = history[0].Preferences.Urgency
	}
	return view.NewAnswerView(text, urgency), nil
}

// NewPipelineHooks 把指标和事件投递组合成流水线回调。
func NewPipelineHooks(m *metrics.Metrics, publisher kafka.Publisher) pipeline.Hooks {
	mh := m.Hooks()
	return pipeline.Hooks{
		OnStatus:    mh.OnStatus,
		OnStageDone: mh.OnStageDone,
		OnComplete: func(sessionID string, entry model.ChatEntry) {
			mh.OnComplete(sessionID, entry)
			event := tasks.NewAnswerCompletedEvent(sessionID, entry)
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
				defer cancel()
				if err := publisher.Publish(ctx, event); err != nil {
					log.Errorf("[ChatService] 投递回答完成事件失败, EntryID: %s, Error: %v", entry.ID, err)
				}
			}()
		},
	}
}
