package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL 是参考服务响应的缓存有效期。
const DefaultTTL = 30 * time.Minute

// Store 是按 key 缓存任意值的能力（只需 get/put + TTL）。
//
// 约束：
// - key 由调用方保证包含“操作 + 参数”，Store 不做任何拼接
// - TTL 到期后 Get 必须视为未命中
// - 实现不要求持久化：进程退出即丢弃
type Store interface {
	Get(key string) (any, bool)
	Put(key string, value any, ttl time.Duration)
}

// Shared 是进程内共享的 TTL 缓存（基于 go-cache）。
type Shared struct {
	c *gocache.Cache
}

var _ Store = (*Shared)(nil)

// NewShared 构造进程级缓存；cleanupInterval<=0 时不启动后台清理。
func NewShared(cleanupInterval time.Duration) *Shared {
	if cleanupInterval <= 0 {
		cleanupInterval = -1
	}
	return &Shared{c: gocache.New(DefaultTTL, cleanupInterval)}
}

func (s *Shared) Get(key string) (any, bool) {
	return s.c.Get(key)
}

// Put 写入缓存；ttl<=0 时使用 DefaultTTL（而不是“永不过期”）。
func (s *Shared) Put(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.c.Set(key, value, ttl)
}
