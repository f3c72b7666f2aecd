package answer

import "strings"

// Sections 是从回答文本中解析出的分段，缺失的分段为空值。
type Sections struct {
	MedicalAnswer        string   `json:"medicalAnswer,omitempty"`
	ContextualReferences string   `json:"contextualReferences,omitempty"`
	FollowupQuestions    []string `json:"followupQuestions"`
	ImportantNote        string   `json:"importantNote,omitempty"`
}

// Urgent 报告 Important Note 是否为紧急提示。
func (s Sections) Urgent() bool {
	return strings.HasPrefix(s.ImportantNote, WarningGlyph)
}

// Parse 按分隔符切分回答并提取四个已知分段。
// 同一标签只取第一次出现；不匹配任何标签的片段（包括 header）被丢弃。
func Parse(text string) Sections {
	out := Sections{FollowupQuestions: []string{}}
	seen := make(map[Label]bool, len(Labels))

	for _, chunk := range strings.Split(text, SectionDelimiter) {
		c := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(chunk), LabelTerminator))
		for _, label := range Labels {
			if seen[label] || !strings.HasPrefix(c, string(label)) {
				continue
			}
			seen[label] = true
			body := strings.TrimPrefix(c[len(label):], LabelTerminator)
			body = strings.TrimSpace(body)
			switch label {
			case LabelMedicalAnswer:
				out.MedicalAnswer = body
			case LabelContextualReferences:
				out.ContextualReferences = body
			case LabelFollowupQuestions:
				out.FollowupQuestions = splitBullets(body)
			case LabelImportantNote:
				out.ImportantNote = body
			}
			break
		}
	}
	return out
}

func splitBullets(body string) []string {
	items := []string{}
	if !strings.Contains(body, Bullet) {
		return items
	}
	for _, part := range strings.Split(body, Bullet) {
		if q := strings.TrimSpace(part); q != "" {
			items = append(items, q)
		}
	}
	return items
}
