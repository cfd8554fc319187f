package availability

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/saulcastac/PIA-2.0/internal/model"
)

func newTestRedisSource(t *testing.T, now time.Time) (*RedisSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	src := NewRedisSource(NewRedisClient(mr.Addr(), "", 0), 24*time.Hour)
	src.now = func() time.Time { return now }
	return src, mr
}

func TestRedisSource_Lookup(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestRedisSource_Lookup")
	defer seg.Close(nil)

	now := time.Date(2024, 12, 14, 12, 0, 0, 0, time.UTC)
	src, mr := newTestRedisSource(t, now)

	slots := []model.Slot{
		{Court: "GOCSA", Time: "10:00"},
		{Court: "Playtomic Logo", Time: "10:00"},
		{Court: "MONEX", Time: "6 pm"},
	}
	if err := src.Save(ctx, "2024-12-15", now.Add(-time.Hour), slots); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := src.Save(ctx, "2024-12-16", now.Add(-time.Hour), nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	tests := []struct {
		name      string
		date      string
		wantKnown bool
		want      []model.Slot
	}{
		{
			name:      "空き枠あり",
			date:      "2024-12-15",
			wantKnown: true,
			want:      []model.Slot{{Court: "GOCSA", Time: "10:00"}, {Court: "MONEX", Time: "18:00"}},
		},
		{
			name:      "空き枠なしは既知の空",
			date:      "2024-12-16",
			wantKnown: true,
			want:      []model.Slot{},
		},
		{
			name:      "キャッシュなし",
			date:      "2024-12-17",
			wantKnown: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, known, err := src.Lookup(ctx, tt.date)
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if known != tt.wantKnown {
				t.Errorf("Lookup() known = %v, want %v", known, tt.wantKnown)
			}
			if tt.wantKnown && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Lookup() = %v, want %v", got, tt.want)
			}
		})
	}

	// 有効期限はcaptured_at + maxAge
	if ttl := mr.TTL(key("2024-12-15")); ttl != 23*time.Hour {
		t.Errorf("TTL = %v, want 23h", ttl)
	}
}

func TestRedisSource_StaleEntry(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestRedisSource_StaleEntry")
	defer seg.Close(nil)

	now := time.Date(2024, 12, 14, 12, 0, 0, 0, time.UTC)
	src, mr := newTestRedisSource(t, now)

	// TTLなしで書かれた古いエントリも取得時刻で弾く
	mr.Set(key("2024-12-15"), `{"captured_at":"2024-12-13T00:00:00Z","slots":[{"court":"GOCSA","time":"10:00"}]}`)

	_, known, err := src.Lookup(ctx, "2024-12-15")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if known {
		t.Error("stale entry reported as known")
	}

	if err := src.Save(ctx, "2024-12-15", now.Add(-25*time.Hour), nil); err == nil {
		t.Error("Save() of stale capture should fail")
	}
}

func TestRedisSource_BackendError(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestRedisSource_BackendError")
	defer seg.Close(nil)

	src, mr := newTestRedisSource(t, time.Now())
	mr.Close()

	if _, _, err := src.Lookup(ctx, "2024-12-15"); err == nil {
		t.Error("Lookup() with closed redis should fail")
	}
}

func TestParseScraperFile(t *testing.T) {
	loc := time.FixedZone("ART", -3*60*60)
	input := `{
		"timestamp": "2024-12-14T08:30:00.123456",
		"scraped_days": 2,
		"availability": {
			"2024-12-15": [
				{"name": "GOCSA", "time": "10:00"},
				{"name": "Logo", "time": "10:00"},
				{"name": "", "time": "11:00"},
				{"name": "TEDS", "time": "sin horario"}
			],
			"2024-12-16": []
		}
	}`

	capturedAt, days, err := ParseScraperFile(strings.NewReader(input), loc)
	if err != nil {
		t.Fatalf("ParseScraperFile() error = %v", err)
	}
	if want := time.Date(2024, 12, 14, 8, 30, 0, 123456000, loc); !capturedAt.Equal(want) {
		t.Errorf("capturedAt = %v, want %v", capturedAt, want)
	}
	if want := []model.Slot{{Court: "GOCSA", Time: "10:00"}}; !reflect.DeepEqual(days["2024-12-15"], want) {
		t.Errorf("2024-12-15 = %v, want %v", days["2024-12-15"], want)
	}
	if got, ok := days["2024-12-16"]; !ok || len(got) != 0 {
		t.Errorf("2024-12-16 = %v, %v", got, ok)
	}

	if _, _, err := ParseScraperFile(strings.NewReader(`{"timestamp":"yesterday"}`), loc); err == nil {
		t.Error("ParseScraperFile() with bad timestamp should fail")
	}
}

func TestMemorySource(t *testing.T) {
	now := time.Date(2024, 12, 14, 12, 0, 0, 0, time.UTC)
	src := NewMemorySource(time.Hour, func() time.Time { return now })
	ctx := context.Background()

	_ = src.Save(ctx, "2024-12-15", now.Add(-30*time.Minute), []model.Slot{{Court: "GOCSA", Time: "10:00"}})
	_ = src.Save(ctx, "2024-12-16", now.Add(-2*time.Hour), []model.Slot{{Court: "GOCSA", Time: "10:00"}})

	if slots, known, _ := src.Lookup(ctx, "2024-12-15"); !known || len(slots) != 1 {
		t.Errorf("fresh entry = %v, %v", slots, known)
	}
	if _, known, _ := src.Lookup(ctx, "2024-12-16"); known {
		t.Error("stale entry reported as known")
	}
}

func TestImport(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestImport")
	defer seg.Close(nil)

	captured := time.Date(2024, 12, 14, 8, 0, 0, 0, time.UTC)
	store, _ := newTestRedisSource(t, captured.Add(time.Hour))

	input := `{"timestamp": "2024-12-14T08:00:00Z", "availability": {
		"2024-12-15": [{"name": "GOCSA", "time": "10:00"}, {"name": "MONEX", "time": "10:00"}],
		"2024-12-16": [{"name": "Logo", "time": "09:00"}]
	}}`
	n, err := Import(ctx, store, strings.NewReader(input), time.UTC)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Import() = %d, want 2", n)
	}

	slots, known, err := store.Lookup(ctx, "2024-12-15")
	if err != nil || !known || len(slots) != 2 {
		t.Errorf("Lookup(2024-12-15) = %v, %v, %v", slots, known, err)
	}
	// 不正なコート名だけの日は空き枠なしとして保存される
	slots, known, _ = store.Lookup(ctx, "2024-12-16")
	if !known || len(slots) != 0 {
		t.Errorf("Lookup(2024-12-16) = %v, %v", slots, known)
	}

	if _, err := Import(ctx, store, strings.NewReader(`not json`), time.UTC); err == nil {
		t.Error("Import() with malformed input should fail")
	}
}
