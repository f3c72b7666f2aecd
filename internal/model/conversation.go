package model

import "time"

// ChatEntry 代表一次成功提交产生的问答记录，创建后不可修改。
type ChatEntry struct {
	ID          string       `json:"id"`
	Question    string       `json:"question"`
	Answer      string       `json:"answer"`
	CreatedAt   time.Time    `json:"createdAt"`
	Preferences Preferences  `json:"preferences"`
	Document    *DocumentRef `json:"document,omitempty"`
}
