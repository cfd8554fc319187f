package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/redis/go-redis/v9"
	"github.com/saulcastac/PIA-2.0/internal/model"
)

const keyPrefix = "availability:"

// RedisSource はRedisに保存された空き枠キャッシュです
type RedisSource struct {
	client *redis.Client
	maxAge time.Duration
	now    func() time.Time
}

// NewRedisClient はRedisクライアントを作成します
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisSource は新しいRedisSourceを作成します
// maxAgeより古い取得結果は不明(known=false)として扱います
func NewRedisSource(client *redis.Client, maxAge time.Duration) *RedisSource {
	return &RedisSource{client: client, maxAge: maxAge, now: time.Now}
}

func key(date string) string {
	return keyPrefix + date
}

// Lookup は日付の空き枠を取得します
func (s *RedisSource) Lookup(ctx context.Context, date string) ([]model.Slot, bool, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "AvailabilitySource.Lookup")
	defer seg.Close(nil)

	val, err := s.client.Get(ctx, key(date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		seg.Close(err)
		return nil, false, fmt.Errorf("failed to read availability for %s: %w", date, err)
	}

	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		seg.Close(err)
		return nil, false, fmt.Errorf("failed to decode availability for %s: %w", date, err)
	}

	// TTLより先に取得時刻で判定する (インポートが遅れた古いデータも弾く)
	if s.now().Sub(e.CapturedAt) > s.maxAge {
		return nil, false, nil
	}

	return e.Slots, true, nil
}

// Save は日付の空き枠を保存します
// キーの有効期限は取得時刻からmaxAge後です
func (s *RedisSource) Save(ctx context.Context, date string, capturedAt time.Time, slots []model.Slot) error {
	ctx, seg := xray.BeginSubsegment(ctx, "AvailabilitySource.Save")
	defer seg.Close(nil)

	ttl := s.maxAge - s.now().Sub(capturedAt)
	if ttl <= 0 {
		return fmt.Errorf("availability for %s captured at %s is already stale", date, capturedAt.Format(time.RFC3339))
	}

	data, err := json.Marshal(Entry{CapturedAt: capturedAt, Slots: Clean(slots)})
	if err != nil {
		seg.Close(err)
		return err
	}

	if err := s.client.Set(ctx, key(date), data, ttl).Err(); err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to write availability for %s: %w", date, err)
	}
	return nil
}

// Ping はRedisへの疎通を確認します
func (s *RedisSource) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
