package service

import (
	"context"
	"time"

	"med-assist-go/internal/session"
	"med-assist-go/internal/view"
)

// ConversationService 定义了聊天历史的业务操作。
type ConversationService interface {
	GetConversationHistory(ctx context.Context, sessionID string) (view.HistoryView, error)
}

type conversationService struct {
	sessions *session.Manager
	now      func() time.Time
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(sessions *session.Manager) ConversationService {
	return &conversationService{sessions: sessions, now: time.Now}
}

// GetConversationHistory 获取会话的完整历史，最新在前。
func (s *conversationService) GetConversationHistory(ctx context.Context, sessionID string) (view.HistoryView, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return view.HistoryView{}, err
	}
	entries, err := sess.History(ctx)
	if err != nil {
		return view.HistoryView{}, err
	}
	return view.NewHistoryView(entries, s.now()), nil
}
