package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/saulcastac/PIA-2.0/internal/model"
	"google.golang.org/api/option"
)

func TestLocalClient_CreateEvent(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestLocalClient_CreateEvent")
	defer seg.Close(nil)

	start := time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		court   string
		start   time.Time
		wantErr error
	}{
		{name: "空き枠", court: "GOCSA", start: start},
		{name: "同じ枠は重複", court: "gocsa", start: start, wantErr: model.ErrSlotTaken},
		{name: "途中から重なる", court: "GOCSA", start: start.Add(30 * time.Minute), wantErr: model.ErrSlotTaken},
		{name: "終了直後は空き", court: "GOCSA", start: start.Add(time.Hour)},
		{name: "別コート", court: "MONEX", start: start},
	}

	c := NewLocalClient()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := c.CreateEvent(ctx, tt.court, tt.start, 60, EventTitle(tt.court, "Juan"))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CreateEvent() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateEvent() error = %v", err)
			}
			if ev == nil || ev.ID == "" {
				t.Fatalf("CreateEvent() event = %+v, want id", ev)
			}
		})
	}

	if got := c.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
}

func TestLocalClient_DeleteEvent(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestLocalClient_DeleteEvent")
	defer seg.Close(nil)

	c := NewLocalClient()
	ev, err := c.CreateEvent(ctx, "TEDS", time.Date(2024, 12, 15, 18, 0, 0, 0, time.UTC), 90, "x")
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}

	deleted, err := c.DeleteEvent(ctx, ev.ID, "TEDS")
	if err != nil || !deleted {
		t.Fatalf("DeleteEvent() = %v, %v", deleted, err)
	}
	deleted, err = c.DeleteEvent(ctx, ev.ID, "TEDS")
	if err != nil || deleted {
		t.Errorf("second DeleteEvent() = %v, %v, want false, nil", deleted, err)
	}
}

func TestEventTitle(t *testing.T) {
	if got := EventTitle("GOCSA", "Juan"); got != "Reserva Pádel - GOCSA - Juan" {
		t.Errorf("EventTitle() = %q", got)
	}
	if got := EventTitle("GOCSA", ""); got != "Reserva Pádel - GOCSA" {
		t.Errorf("EventTitle() = %q", got)
	}
}

// fakeCalendarAPI はGoogle Calendar APIのfreeBusyとeventsを模倣します
type fakeCalendarAPI struct {
	busy       bool
	insertCode int
	eventID    string
	deleteCode int
	inserted   []map[string]interface{}
	calendarOf []string
}

func (f *fakeCalendarAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/freeBusy"):
		var req struct {
			Items []struct {
				ID string `json:"id"`
			} `json:"items"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		busy := []map[string]string{}
		if f.busy {
			busy = append(busy, map[string]string{"start": "2024-12-15T10:00:00Z", "end": "2024-12-15T11:00:00Z"})
		}
		calendars := map[string]interface{}{}
		for _, it := range req.Items {
			calendars[it.ID] = map[string]interface{}{"busy": busy}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"calendars": calendars})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/events"):
		f.calendarOf = append(f.calendarOf, r.URL.Path)
		if f.insertCode != 0 {
			w.WriteHeader(f.insertCode)
			_, _ = w.Write([]byte(`{"error":{"code":409,"message":"conflict"}}`))
			return
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.inserted = append(f.inserted, body)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": f.eventID, "htmlLink": "https://calendar.example/" + f.eventID})
	case r.Method == http.MethodDelete:
		if f.deleteCode != 0 {
			w.WriteHeader(f.deleteCode)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestGoogleClient(t *testing.T, api *fakeCalendarAPI) *GoogleClient {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := NewGoogleClient(context.Background(), "primary", map[string]string{"gocsa": "gocsa-cal"}, time.UTC,
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication(), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewGoogleClient() error = %v", err)
	}
	return c
}

func TestGoogleClient_CreateEvent(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestGoogleClient_CreateEvent")
	defer seg.Close(nil)

	start := time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		api       *fakeCalendarAPI
		court     string
		wantID    string
		wantNil   bool
		wantErr   error
		wantCalID string
	}{
		{name: "作成成功", api: &fakeCalendarAPI{eventID: "ev-1"}, court: "GOCSA", wantID: "ev-1", wantCalID: "gocsa-cal"},
		{name: "未設定のコートはデフォルトカレンダー", api: &fakeCalendarAPI{eventID: "ev-2"}, court: "MONEX", wantID: "ev-2", wantCalID: "primary"},
		{name: "free/busyで埋まっている", api: &fakeCalendarAPI{busy: true}, court: "GOCSA", wantErr: model.ErrSlotTaken},
		{name: "409は重複扱い", api: &fakeCalendarAPI{insertCode: http.StatusConflict}, court: "GOCSA", wantErr: model.ErrSlotTaken},
		{name: "IDなし", api: &fakeCalendarAPI{}, court: "GOCSA", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestGoogleClient(t, tt.api)
			ev, err := c.CreateEvent(ctx, tt.court, start, 60, EventTitle(tt.court, "Juan"))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CreateEvent() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateEvent() error = %v", err)
			}
			if tt.wantNil {
				if ev != nil {
					t.Errorf("CreateEvent() = %+v, want nil", ev)
				}
				return
			}
			if ev == nil || ev.ID != tt.wantID {
				t.Fatalf("CreateEvent() = %+v, want id %s", ev, tt.wantID)
			}
			if len(tt.api.calendarOf) != 1 || !strings.Contains(tt.api.calendarOf[0], "/calendars/"+tt.wantCalID+"/") {
				t.Errorf("inserted into %v, want calendar %s", tt.api.calendarOf, tt.wantCalID)
			}
		})
	}
}

func TestGoogleClient_DeleteEvent(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestGoogleClient_DeleteEvent")
	defer seg.Close(nil)

	c := newTestGoogleClient(t, &fakeCalendarAPI{})
	deleted, err := c.DeleteEvent(ctx, "ev-1", "GOCSA")
	if err != nil || !deleted {
		t.Errorf("DeleteEvent() = %v, %v, want true, nil", deleted, err)
	}

	c = newTestGoogleClient(t, &fakeCalendarAPI{deleteCode: http.StatusNotFound})
	deleted, err = c.DeleteEvent(ctx, "ev-1", "GOCSA")
	if err != nil || deleted {
		t.Errorf("DeleteEvent() = %v, %v, want false, nil", deleted, err)
	}
}
