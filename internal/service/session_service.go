// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"

	"med-assist-go/internal/model"
	"med-assist-go/internal/session"
	"med-assist-go/pkg/log"
)

// SessionService 定义了会话和偏好相关的业务操作。
type SessionService interface {
	Create(ctx context.Context) (session.State, error)
	Get(ctx context.Context, id string) (session.State, error)
	Delete(ctx context.Context, id string) error
	GetPreferences(id string) (model.Preferences, error)
	UpdatePreferences(id string, patch model.PreferencePatch) (model.Preferences, error)
}

type sessionService struct {
	sessions *session.Manager
}

// NewSessionService 创建一个新的 SessionService 实例。
func NewSessionService(sessions *session.Manager) SessionService {
	return &sessionService{sessions: sessions}
}

func (s *sessionService) Create(ctx context.Context) (session.State, error) {
	sess, err := s.sessions.Create()
	if err != nil {
		log.Errorf("[SessionService] 创建会话失败: %v", err)
		return session.State{}, err
	}
	return sess.Snapshot(ctx)
}

func (s *sessionService) Get(ctx context.Context, id string) (session.State, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return session.State{}, err
	}
	return sess.Snapshot(ctx)
}

func (s *sessionService) Delete(ctx context.Context, id string) error {
	if err := s.sessions.Delete(ctx, id); err != nil {
		return err
	}
	log.Infof("[SessionService] 会话已删除, ID: %s", id)
	return nil
}

func (s *sessionService) GetPreferences(id string) (model.Preferences, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return model.Preferences{}, err
	}
	return sess.Preferences().Get(), nil
}

// UpdatePreferences 部分更新偏好，非法取值整体拒绝。
func (s *sessionService) UpdatePreferences(id string, patch model.PreferencePatch) (model.Preferences, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return model.Preferences{}, err
	}
	prefs, err := sess.Preferences().Set(patch)
	if err != nil {
		log.Warnf("[SessionService] 偏好更新被拒绝, 会话: %s, Error: %v", id, err)
		return prefs, err
	}
	log.Infof("[SessionService] 偏好已更新, 会话: %s, %s/%s/%s", id, prefs.UserType, prefs.Urgency, prefs.ResponseLength)
	return prefs, nil
}
