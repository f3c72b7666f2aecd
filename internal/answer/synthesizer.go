package answer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"med-assist-go/internal/model"
)

// QuestionSnippetLimit 是 header 中引用问题的最大字符数。
const QuestionSnippetLimit = 50

const (
	medicalAnswerBody = "This appears to be a common medical concern that can have several underlying causes. " +
		"The symptoms you've described could be related to various conditions, and proper evaluation is essential for accurate diagnosis."
	noDocumentBody = "No additional documents were provided for context."
	urgentNoteBody = WarningGlyph + " This query was marked as urgent. Please consult a medical professional immediately for urgent health concerns."
	routineNote    = "For comprehensive care, consider discussing this with your healthcare provider."
)

// FollowupQuestions 是固定的三条追问。
var FollowupQuestions = []string{
	"What are the typical treatment options for this condition?",
	"When should I seek immediate medical attention?",
	"Are there any lifestyle modifications that could help?",
}

// Synthesize 生成占位回答。纯函数：相同输入得到逐字节相同的输出，不读时钟、不做 I/O。
// 调用方需保证 question 非空。
func Synthesize(question string, prefs model.Preferences, doc *model.DocumentRef) string {
	return Compose(question, prefs, doc).String()
}

// Compose 返回结构化的回答，Synthesize 只是它的序列化。
func Compose(question string, prefs model.Preferences, doc *model.DocumentRef) Document {
	header := fmt.Sprintf("Based on your question \"%s\", here's a comprehensive medical response tailored for a %s with %s urgency.",
		snippet(question),
		strings.ToLower(string(prefs.UserType)),
		strings.ToLower(string(prefs.Urgency)),
	)

	return Document{
		Header: header,
		Sections: []Section{
			{Label: LabelMedicalAnswer, Body: medicalAnswerBody},
			{Label: LabelContextualReferences, Body: referencesBody(doc)},
			{Label: LabelFollowupQuestions, Body: followupBody()},
			{Label: LabelImportantNote, Body: noteBody(prefs.Urgency)},
		},
	}
}

func snippet(question string) string {
	q := flatten(question)
	if utf8.RuneCountInString(q) <= QuestionSnippetLimit {
		return q
	}
	return string([]rune(q)[:QuestionSnippetLimit]) + "..."
}

func referencesBody(doc *model.DocumentRef) string {
	if doc == nil {
		return noDocumentBody
	}
	return fmt.Sprintf("Based on the uploaded document \"%s\", additional context has been considered in this response.", flatten(doc.Name))
}

func followupBody() string {
	lines := make([]string, 0, len(FollowupQuestions))
	for _, q := range FollowupQuestions {
		lines = append(lines, Bullet+" "+q)
	}
	return strings.Join(lines, "\n")
}

func noteBody(urgency model.Urgency) string {
	if urgency == model.UrgencyHigh {
		return urgentNoteBody
	}
	return routineNote
}
