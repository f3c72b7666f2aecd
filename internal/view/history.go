// Package view 把会话状态投影成前端直接渲染的结构。
package view

import (
	"fmt"
	"time"
	"unicode/utf8"

	"med-assist-go/internal/model"

	"github.com/dustin/go-humanize"
)

// AnswerPreviewLimit 是历史列表中回答预览的最大字符数。
const AnswerPreviewLimit = 150

// HistoryItem 是历史列表中的一行。
type HistoryItem struct {
	ID             string               `json:"id"`
	Question       string               `json:"question"`
	AnswerPreview  string               `json:"answerPreview"`
	UserType       model.UserType       `json:"userType"`
	Urgency        model.Urgency        `json:"urgency"`
	UrgencyTone    string               `json:"urgencyTone"`
	HighUrgency    bool                 `json:"highUrgency"`
	ResponseLength model.ResponseLength `json:"responseLength"`
	Document       *DocumentView        `json:"document,omitempty"`
	CreatedAt      model.LocalTime      `json:"createdAt"`
	TimeAgo        string               `json:"timeAgo"`
}

// DocumentView 是带可读大小的文档描述。
type DocumentView struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
	Size      string `json:"size"`
}

// HistoryView 是整个历史面板。
type HistoryView struct {
	Empty bool          `json:"empty"`
	Items []HistoryItem `json:"items"`
}

// NewHistoryView 按传入顺序（最新在前）投影历史记录。
func NewHistoryView(entries []model.ChatEntry, now time.Time) HistoryView {
	items := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, NewHistoryItem(e, now))
	}
	return HistoryView{Empty: len(items) == 0, Items: items}
}

func NewHistoryItem(e model.ChatEntry, now time.Time) HistoryItem {
	item := HistoryItem{
		ID:             e.ID,
		Question:       e.Question,
		AnswerPreview:  AnswerPreview(e.Answer),
		UserType:       e.Preferences.UserType,
		Urgency:        e.Preferences.Urgency,
		UrgencyTone:    UrgencyTone(e.Preferences.Urgency),
		HighUrgency:    e.Preferences.Urgency == model.UrgencyHigh,
		ResponseLength: e.Preferences.ResponseLength,
		CreatedAt:      model.LocalTime(e.CreatedAt),
		TimeAgo:        FormatTimeAgo(e.CreatedAt, now),
	}
	if e.Document != nil {
		item.Document = NewDocumentView(e.Document.Name, e.Document.SizeBytes)
	}
	return item
}

func NewDocumentView(name string, size int64) *DocumentView {
	return &DocumentView{Name: name, SizeBytes: size, Size: FormatFileSize(size)}
}

// FormatTimeAgo 按分钟向下取整：<1m 为 "Just now"，之后依次为 m、h、d。
func FormatTimeAgo(then, now time.Time) string {
	minutes := int(now.Sub(then) / time.Minute)
	if minutes < 1 {
		return "Just now"
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm ago", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh ago", hours)
	}
	return fmt.Sprintf("%dd ago", hours/24)
}

// AnswerPreview 截取回答的前 150 个字符。
func AnswerPreview(answer string) string {
	if utf8.RuneCountInString(answer) <= AnswerPreviewLimit {
		return answer
	}
	return string([]rune(answer)[:AnswerPreviewLimit]) + "..."
}

// UrgencyTone 返回紧急程度对应的颜色名。
func UrgencyTone(u model.Urgency) string {
	switch u {
	case model.UrgencyHigh:
		return "red"
	case model.UrgencyMedium:
		return "yellow"
	case model.UrgencyLow:
		return "green"
	default:
		return "gray"
	}
}

// FormatFileSize 以 1024 为基数输出，例如 "2.0 MiB"。
func FormatFileSize(size int64) string {
	if size <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(size))
}
