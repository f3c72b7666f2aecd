// Package tasks 定义了投递到 Kafka 的消息结构。
package tasks

import (
	"time"

	"med-assist-go/internal/model"
)

// AnswerCompletedEvent 在一次提交完成并写入历史后发出。只携带元数据，不含回答正文。
type AnswerCompletedEvent struct {
	SessionID      string               `json:"session_id"`
	EntryID        string               `json:"entry_id"`
	Question       string               `json:"question"`
	UserType       model.UserType       `json:"user_type"`
	Urgency        model.Urgency        `json:"urgency"`
	ResponseLength model.ResponseLength `json:"response_length"`
	DocumentName   string               `json:"document_name,omitempty"`
	AnswerLength   int                  `json:"answer_length"`
	CreatedAt      time.Time            `json:"created_at"`
}

// NewAnswerCompletedEvent 从聊天记录构造事件。
func NewAnswerCompletedEvent(sessionID string, e model.ChatEntry) AnswerCompletedEvent {
	ev := AnswerCompletedEvent{
		SessionID:      sessionID,
		EntryID:        e.ID,
		Question:       e.Question,
		UserType:       e.Preferences.UserType,
		Urgency:        e.Preferences.Urgency,
		ResponseLength: e.Preferences.ResponseLength,
		AnswerLength:   len(e.Answer),
		CreatedAt:      e.CreatedAt,
	}
	if e.Document != nil {
		ev.DocumentName = e.Document.Name
	}
	return ev
}
