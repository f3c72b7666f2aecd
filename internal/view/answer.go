package view

import (
	"med-assist-go/internal/answer"
	"med-assist-go/internal/model"
)

// AnswerView 是当前回答面板。提交时紧急程度为 High 时 UrgentWarning 为 true，额外显示警示标记。
type AnswerView struct {
	Available     bool            `json:"available"`
	Text          string          `json:"text,omitempty"`
	Sections      answer.Sections `json:"sections"`
	UrgentWarning bool            `json:"urgentWarning"`
}

// NewAnswerView 解析回答文本。text 为空表示还没有回答。
func NewAnswerView(text string, urgency model.Urgency) AnswerView {
	if text == "" {
		return AnswerView{Sections: answer.Sections{FollowupQuestions: []string{}}}
	}
	return AnswerView{
		Available:     true,
		Text:          text,
		Sections:      answer.Parse(text),
		UrgentWarning: urgency == model.UrgencyHigh,
	}
}

// ProcessingView 是处理中的进度面板。
type ProcessingView struct {
	State        string `json:"state"`
	IsProcessing bool   `json:"isProcessing"`
	StatusText   string `json:"statusText"`
	Stage        int    `json:"stage"`
	TotalStages  int    `json:"totalStages"`
	Progress     int    `json:"progress"`
}

func NewProcessingView(s model.PipelineStatus) ProcessingView {
	return ProcessingView{
		State:        s.State.String(),
		IsProcessing: s.IsProcessing,
		StatusText:   s.StatusText,
		Stage:        s.Stage,
		TotalStages:  s.TotalStages,
		Progress:     s.Progress(),
	}
}
