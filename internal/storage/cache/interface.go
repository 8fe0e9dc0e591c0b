package cache

import (
	"context"
	"fmt"
	"time"

	perrors "github.com/annie25726/perfume-assistant/pkg/errors"
)

// ErrMiss 键不存在或已过期
var ErrMiss = fmt.Errorf("cache miss: %w", perrors.ErrNotFound)

// Store 缓存接口；值以 JSON 序列化存储
type Store interface {
	// Set 设置缓存，expiration <= 0 表示不过期
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// Get 获取缓存，未命中返回 ErrMiss
	Get(ctx context.Context, key string, dest interface{}) error
	// Delete 删除缓存，键不存在不报错
	Delete(ctx context.Context, key string) error
	// Exists 检查缓存是否存在
	Exists(ctx context.Context, key string) (bool, error)
	// Clear 清除本前缀下的所有缓存
	Clear(ctx context.Context) error
	// Close 关闭缓存连接
	Close() error
}
