package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"eduroots/backend/pkg/redis"
)

// ErrRunInProgress 同名任务已有实例在运行
var ErrRunInProgress = errors.New("同类任务正在运行，请稍后再试")

const defaultLockTTL = 30 * time.Minute

// acquireRun 生成运行 ID 并获取命名运行锁；locker 为 nil 时不加锁
func acquireRun(ctx context.Context, locker RunLocker, name string, ttl time.Duration) (string, func(context.Context), error) {
	runID := uuid.NewString()
	if locker == nil {
		return runID, func(context.Context) {}, nil
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	release, err := locker.AcquireLock(ctx, name, runID, ttl)
	if err != nil {
		if errors.Is(err, redis.ErrLockHeld) {
			return "", nil, ErrRunInProgress
		}
		return "", nil, err
	}
	return runID, release, nil
}
