package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// storeQuery 以 timeout 为上限执行一次存储读取或写入
// 超时统一视为存储不可用，不在此处重试
func storeQuery[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(callCtx)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, gorm.ErrRecordNotFound) {
		return v, err
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return v, fmt.Errorf("%w: 存储调用超过 %s: %v", ErrStoreUnavailable, timeout, err)
	}
	return v, err
}

// storeExec 同 storeQuery，用于只返回 error 的调用
func storeExec(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	_, err := storeQuery(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
