// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"med-assist-go/internal/model"
	"med-assist-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// ErrDuplicateEntry 表示同一会话中已存在相同 ID 的记录。
var ErrDuplicateEntry = errors.New("chat entry id already exists")

// ChatHistoryRepository 定义了会话聊天历史的操作接口。历史按提交顺序倒序排列（最新在前）。
type ChatHistoryRepository interface {
	Prepend(ctx context.Context, sessionID string, entry model.ChatEntry) error
	List(ctx context.Context, sessionID string) ([]model.ChatEntry, error)
	Count(ctx context.Context, sessionID string) (int, error)
	// Drop 只在会话销毁时调用，历史本身没有淘汰策略。
	Drop(ctx context.Context, sessionID string) error
}

type redisChatHistoryRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewRedisChatHistoryRepository 创建基于 Redis 列表的历史仓库。ttl 等于会话寿命，<=0 表示不过期。
func NewRedisChatHistoryRepository(redisClient *redis.Client, ttl time.Duration) ChatHistoryRepository {
	return &redisChatHistoryRepository{redisClient: redisClient, ttl: ttl}
}

func historyKey(sessionID string) string {
	return fmt.Sprintf("medassist:session:%s:history", sessionID)
}

func historyIDsKey(sessionID string) string {
	return fmt.Sprintf("medassist:session:%s:history_ids", sessionID)
}

// Prepend 使用 LPUSH 把记录放到列表头部，并用集合保证 ID 唯一。
func (r *redisChatHistoryRepository) Prepend(ctx context.Context, sessionID string, entry model.ChatEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal chat entry: %w", err)
	}

	added, err := r.redisClient.SAdd(ctx, historyIDsKey(sessionID), entry.ID).Result()
	if err != nil {
		return fmt.Errorf("failed to register chat entry id: %w", err)
	}
	if added == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, entry.ID)
	}

	_, err = r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, historyKey(sessionID), data)
		if r.ttl > 0 {
			pipe.Expire(ctx, historyKey(sessionID), r.ttl)
			pipe.Expire(ctx, historyIDsKey(sessionID), r.ttl)
		}
		return nil
	})
	if err != nil {
		// 写入失败时释放已占用的 ID，同一条记录可以重试
		if remErr := r.redisClient.SRem(context.WithoutCancel(ctx), historyIDsKey(sessionID), entry.ID).Err(); remErr != nil {
			log.Warnf("[History] 释放记录 ID 失败, 会话: %s, EntryID: %s, Error: %v", sessionID, entry.ID, remErr)
		}
		return fmt.Errorf("failed to prepend chat entry: %w", err)
	}
	return nil
}

// List 返回最新在前的全部记录。
func (r *redisChatHistoryRepository) List(ctx context.Context, sessionID string) ([]model.ChatEntry, error) {
	raw, err := r.redisClient.LRange(ctx, historyKey(sessionID), 0, -1).Result()
	if err == redis.Nil {
		return []model.ChatEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}
	entries := make([]model.ChatEntry, 0, len(raw))
	for _, item := range raw {
		var entry model.ChatEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *redisChatHistoryRepository) Count(ctx context.Context, sessionID string) (int, error) {
	n, err := r.redisClient.LLen(ctx, historyKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count chat history: %w", err)
	}
	return int(n), nil
}

func (r *redisChatHistoryRepository) Drop(ctx context.Context, sessionID string) error {
	if err := r.redisClient.Del(ctx, historyKey(sessionID), historyIDsKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to drop chat history: %w", err)
	}
	return nil
}
