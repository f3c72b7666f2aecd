// Package session 持有单个用户会话的可变状态：偏好、上传槽、流水线和聊天历史。
package session

import (
	"sync"

	"med-assist-go/internal/model"
)

// PreferenceStore 保存偏好记录，任何时刻三个字段都完整有效。
type PreferenceStore struct {
	mu    sync.RWMutex
	prefs model.Preferences
}

// NewPreferenceStore 以默认偏好初始化。
func NewPreferenceStore() *PreferenceStore {
	return &PreferenceStore{prefs: model.DefaultPreferences()}
}

func (s *PreferenceStore) Get() model.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Set 部分更新偏好。patch 中任一字段非法时整体拒绝，原值不变。
func (s *PreferenceStore) Set(patch model.PreferencePatch) (model.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := patch.Apply(s.prefs)
	if err != nil {
		return s.prefs, err
	}
	s.prefs = next
	return next, nil
}
