// Package availability は日付ごとの空き枠キャッシュを扱います。
// キャッシュはスクレイパーが書き込み、会話エンジンは読み取りのみ行います。
package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/saulcastac/PIA-2.0/internal/model"
)

// Source は空き枠の参照先です
// knownがfalseの場合はキャッシュが古いか存在しないことを表し、空の一覧とは区別されます
type Source interface {
	Lookup(ctx context.Context, date string) (slots []model.Slot, known bool, err error)
}

// Store は空き枠を書き込めるSourceです
type Store interface {
	Source
	Save(ctx context.Context, date string, capturedAt time.Time, slots []model.Slot) error
}

// Entry はキャッシュに保存する1日分の空き枠です
type Entry struct {
	CapturedAt time.Time    `json:"captured_at"`
	Slots      []model.Slot `json:"slots"`
}

var placeholderNames = map[string]bool{
	"playtomic logo": true,
	"logo":           true,
}

// ValidCourtName はスクレイプ結果から拾ったロゴ画像などのゴミを除外します
func ValidCourtName(name string) bool {
	name = strings.TrimSpace(name)
	if len(name) <= 3 {
		return false
	}
	return !placeholderNames[strings.ToLower(name)]
}

// Clean は不正なコート名を除き、時刻をHH:MMに揃えます
func Clean(slots []model.Slot) []model.Slot {
	out := make([]model.Slot, 0, len(slots))
	for _, s := range slots {
		if !ValidCourtName(s.Court) {
			continue
		}
		clock, ok := model.ParseTimeOfDay(s.Time)
		if !ok {
			continue
		}
		out = append(out, model.Slot{Court: strings.TrimSpace(s.Court), Time: clock})
	}
	return out
}

type scraperCourt struct {
	Name string `json:"name"`
	Time string `json:"time"`
}

type scraperFile struct {
	Timestamp    string                    `json:"timestamp"`
	Availability map[string][]scraperCourt `json:"availability"`
}

// ParseScraperFile はスクレイパーが出力するavailability_cache.jsonを読み込みます
// timestampにタイムゾーンがない場合はlocとして解釈します
func ParseScraperFile(r io.Reader, loc *time.Location) (time.Time, map[string][]model.Slot, error) {
	var f scraperFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return time.Time{}, nil, fmt.Errorf("failed to decode availability file: %w", err)
	}

	capturedAt, err := parseTimestamp(f.Timestamp, loc)
	if err != nil {
		return time.Time{}, nil, err
	}

	days := make(map[string][]model.Slot, len(f.Availability))
	for date, courts := range f.Availability {
		if _, err := time.Parse(model.DateLayout, date); err != nil {
			return time.Time{}, nil, fmt.Errorf("invalid date key %q: %w", date, err)
		}
		slots := make([]model.Slot, 0, len(courts))
		for _, c := range courts {
			slots = append(slots, model.Slot{Court: c.Name, Time: c.Time})
		}
		days[date] = Clean(slots)
	}

	return capturedAt, days, nil
}

// Import はスクレイパーの出力を読み込み、日付ごとにstoreへ保存します
// 保存した日数を返します
func Import(ctx context.Context, store Store, r io.Reader, loc *time.Location) (int, error) {
	capturedAt, days, err := ParseScraperFile(r, loc)
	if err != nil {
		return 0, err
	}

	dates := make([]string, 0, len(days))
	for date := range days {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for i, date := range dates {
		if err := store.Save(ctx, date, capturedAt, days[date]); err != nil {
			return i, fmt.Errorf("failed to save availability for %s: %w", date, err)
		}
	}
	return len(dates), nil
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	// Pythonのisoformat()はタイムゾーンなし・マイクロ秒付き
	for _, layout := range []string{"2006-01-02T15:04:05.999999", "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// MemorySource はENV=LOCALとテストで使うプロセス内キャッシュです
type MemorySource struct {
	mu      sync.RWMutex
	maxAge  time.Duration
	now     func() time.Time
	entries map[string]Entry
}

// NewMemorySource は新しいMemorySourceを作成します
func NewMemorySource(maxAge time.Duration, now func() time.Time) *MemorySource {
	if now == nil {
		now = time.Now
	}
	return &MemorySource{maxAge: maxAge, now: now, entries: make(map[string]Entry)}
}

func (s *MemorySource) Lookup(_ context.Context, date string) ([]model.Slot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[date]
	if !ok || s.now().Sub(e.CapturedAt) > s.maxAge {
		return nil, false, nil
	}
	return append([]model.Slot{}, e.Slots...), true, nil
}

func (s *MemorySource) Save(_ context.Context, date string, capturedAt time.Time, slots []model.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[date] = Entry{CapturedAt: capturedAt, Slots: Clean(slots)}
	return nil
}
