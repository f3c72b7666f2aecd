// Package answer 定义了回答文本的分段格式，以及基于该格式的合成与解析。
//
// 合成端 (Synthesize) 和解析端 (Parse) 共享同一组分隔符和标签常量，
// 修改标签文本时两端会同时生效。
package answer

import "strings"

const (
	// SectionDelimiter 出现在每个分段之前，紧跟分段标签。
	SectionDelimiter = "\n\n**"
	// LabelTerminator 结束分段标签。
	LabelTerminator = "**"
	// Bullet 是追问列表的项目符号。
	Bullet = "•"
	// WarningGlyph 标记紧急提示。
	WarningGlyph = "⚠️"
)

// Label 是分段标签。
type Label string

const (
	LabelMedicalAnswer        Label = "Medical Answer:"
	LabelContextualReferences Label = "Contextual References:"
	LabelFollowupQuestions    Label = "Suggested Follow-up Questions:"
	LabelImportantNote        Label = "Important Note:"
)

// Labels 是分段的固定顺序。
var Labels = []Label{
	LabelMedicalAnswer,
	LabelContextualReferences,
	LabelFollowupQuestions,
	LabelImportantNote,
}

// Section 是一个带标签的分段。
type Section struct {
	Label Label
	Body  string
}

// Document 是结构化的回答，序列化一次得到最终文本。
type Document struct {
	Header   string
	Sections []Section
}

// String 按 header + (分隔符 标签 结束符 换行 正文)* 的格式序列化。
func (d Document) String() string {
	var b strings.Builder
	b.WriteString(d.Header)
	for _, s := range d.Sections {
		b.WriteString(SectionDelimiter)
		b.WriteString(string(s.Label))
		b.WriteString(LabelTerminator)
		b.WriteString("\n")
		b.WriteString(s.Body)
	}
	return b.String()
}

// flatten 把换行折叠为空格，用户文本因此不可能伪造分隔符。
func flatten(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
