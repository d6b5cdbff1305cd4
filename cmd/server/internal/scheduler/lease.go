package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Lease 互斥租约，保证同一时刻只有一个副本执行巡检
type Lease interface {
	// TryAcquire 尝试获取租约，成功时返回释放函数
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// releaseScript 只删除自己持有的租约
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease 基于 Redis SET NX PX 的分布式租约
type RedisLease struct {
	rdb *goredis.Client
}

// NewRedisLease 连接 Redis 并返回租约实现
func NewRedisLease(ctx context.Context, addr, password string) (*RedisLease, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisLease{rdb: rdb}, nil
}

// TryAcquire 实现 Lease
func (l *RedisLease) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(relCtx, l.rdb, []string{key}, token).Err()
	}
	return release, true, nil
}

// Close 关闭 Redis 连接
func (l *RedisLease) Close() error {
	return l.rdb.Close()
}

// LocalLease 进程内租约，单副本部署时使用
type LocalLease struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalLease 创建进程内租约
func NewLocalLease() *LocalLease {
	return &LocalLease{held: make(map[string]bool)}
}

// TryAcquire 实现 Lease，ttl 在进程内不生效
func (l *LocalLease) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}
	return release, true, nil
}
