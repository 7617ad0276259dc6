// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ActiveSessionRepository 维护每个用户当前活跃的会话键。
// 指针存放在 Redis 中，丢失时由调用方回退为时间戳最新的会话。
type ActiveSessionRepository interface {
	GetActiveSession(ctx context.Context, userID uint) (string, error)
	SetActiveSession(ctx context.Context, userID uint, sessionKey string) error
}

type redisActiveSessionRepository struct {
	redisClient *redis.Client
}

// NewActiveSessionRepository 创建一个新的 ActiveSessionRepository 实例。
func NewActiveSessionRepository(redisClient *redis.Client) ActiveSessionRepository {
	return &redisActiveSessionRepository{redisClient: redisClient}
}

func activeSessionKey(userID uint) string {
	return fmt.Sprintf("user:%d:active_session", userID)
}

// GetActiveSession 返回用户的活跃会话键。无记录时返回空字符串。
func (r *redisActiveSessionRepository) GetActiveSession(ctx context.Context, userID uint) (string, error) {
	key, err := r.redisClient.Get(ctx, activeSessionKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active session key: %w", err)
	}
	return key, nil
}

// SetActiveSession 更新用户的活跃会话键。
func (r *redisActiveSessionRepository) SetActiveSession(ctx context.Context, userID uint, sessionKey string) error {
	err := r.redisClient.Set(ctx, activeSessionKey(userID), sessionKey, 30*24*time.Hour).Err()
	if err != nil {
		return fmt.Errorf("failed to set active session key: %w", err)
	}
	return nil
}
