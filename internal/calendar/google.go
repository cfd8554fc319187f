package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/saulcastac/PIA-2.0/internal/model"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleClient はGoogle Calendar APIを使うClientです
// コートごとに別カレンダーを持てます
type GoogleClient struct {
	svc       *gcal.Service
	defaultID string
	courtIDs  map[string]string
	loc       *time.Location
}

// NewGoogleClient はサービスアカウントの認証情報ファイルからGoogleClientを作成します
func NewGoogleClient(ctx context.Context, defaultID string, courtIDs map[string]string, loc *time.Location, opts ...option.ClientOption) (*GoogleClient, error) {
	opts = append([]option.ClientOption{option.WithScopes(gcal.CalendarScope)}, opts...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	ids := make(map[string]string, len(courtIDs))
	for court, id := range courtIDs {
		ids[strings.ToUpper(strings.TrimSpace(court))] = id
	}
	if loc == nil {
		loc = time.UTC
	}

	return &GoogleClient{svc: svc, defaultID: defaultID, courtIDs: ids, loc: loc}, nil
}

func (c *GoogleClient) calendarID(court string) string {
	if id, ok := c.courtIDs[strings.ToUpper(court)]; ok && id != "" {
		return id
	}
	return c.defaultID
}

// CreateEvent は空きを確認してからイベントを作成します
func (c *GoogleClient) CreateEvent(ctx context.Context, court string, start time.Time, durationMinutes int, title string) (*model.CalendarEvent, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Calendar.CreateEvent")
	defer seg.Close(nil)

	calID := c.calendarID(court)
	start = start.In(c.loc)
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	busy, err := c.isBusy(ctx, calID, start, end)
	if err != nil {
		seg.Close(err)
		return nil, err
	}
	if busy {
		return nil, fmt.Errorf("%s %s: %w", court, start.Format(time.RFC3339), model.ErrSlotTaken)
	}

	event := &gcal.Event{
		Summary:     title,
		Description: fmt.Sprintf("Cancha: %s\nDuración: %d minutos", court, durationMinutes),
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: c.loc.String()},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: c.loc.String()},
	}

	created, err := c.svc.Events.Insert(calID, event).Context(ctx).Do()
	if err != nil {
		seg.Close(err)
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusConflict {
			return nil, fmt.Errorf("%s %s: %w", court, start.Format(time.RFC3339), model.ErrSlotTaken)
		}
		return nil, fmt.Errorf("failed to insert calendar event: %w", err)
	}
	if created == nil || created.Id == "" {
		return nil, nil
	}

	return &model.CalendarEvent{ID: created.Id, Link: created.HtmlLink}, nil
}

func (c *GoogleClient) isBusy(ctx context.Context, calID string, start, end time.Time) (bool, error) {
	resp, err := c.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin:  start.Format(time.RFC3339),
		TimeMax:  end.Format(time.RFC3339),
		TimeZone: c.loc.String(),
		Items:    []*gcal.FreeBusyRequestItem{{Id: calID}},
	}).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("failed to query free/busy: %w", err)
	}
	cal, ok := resp.Calendars[calID]
	if !ok {
		return false, nil
	}
	return len(cal.Busy) > 0, nil
}

// DeleteEvent はイベントを削除します。既に存在しない場合はfalseを返します
func (c *GoogleClient) DeleteEvent(ctx context.Context, eventID, court string) (bool, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Calendar.DeleteEvent")
	defer seg.Close(nil)

	err := c.svc.Events.Delete(c.calendarID(court), eventID).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
			return false, nil
		}
		seg.Close(err)
		return false, fmt.Errorf("failed to delete calendar event: %w", err)
	}
	return true, nil
}
