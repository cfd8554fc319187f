package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "inbound:"

// DefaultDedupeTTL はMessageSidを記憶しておく期間です
const DefaultDedupeTTL = 24 * time.Hour

// Deduper はWebhookの再送を検出します
type Deduper interface {
	// FirstSeen はidを初めて受け取った場合にtrueを返します
	FirstSeen(ctx context.Context, id string) (bool, error)
	// Forget は処理できなかったidの記録を消し、再送を受け付けられるようにします
	Forget(ctx context.Context, id string) error
}

// RedisDeduper はSETNXでMessageSidを記録します
// 複数のプロセスで同じRedisを共有すれば、どのプロセスに届いた再送も1回だけ処理されます
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper は新しいRedisDeduperを作成します
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, id string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupeKeyPrefix+id, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record message %s: %w", id, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Forget(ctx context.Context, id string) error {
	if err := d.client.Del(ctx, dedupeKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to forget message %s: %w", id, err)
	}
	return nil
}

// MemoryDeduper はプロセス内で使うDeduperです
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryDeduper は新しいMemoryDeduperを作成します
func NewMemoryDeduper(ttl time.Duration, now func() time.Time) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryDeduper{seen: make(map[string]time.Time), ttl: ttl, now: now}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[id]; ok {
		return false, nil
	}
	d.seen[id] = now
	return true, nil
}

func (d *MemoryDeduper) Forget(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}
