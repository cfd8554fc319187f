package calendar

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/saulcastac/PIA-2.0/internal/model"
)

type localEvent struct {
	court string
	start time.Time
	end   time.Time
	title string
}

// LocalClient はプロセス内でイベントを保持するClientです。ENV=LOCALとテストで使います
type LocalClient struct {
	mu     sync.Mutex
	events map[string]localEvent
	// Fail が設定されている場合、CreateEventはこのエラーを返します
	Fail error
	// Blank がtrueの場合、CreateEventはIDのないイベントとして(nil, nil)を返します
	Blank bool
}

func NewLocalClient() *LocalClient {
	return &LocalClient{events: make(map[string]localEvent)}
}

func (c *LocalClient) CreateEvent(ctx context.Context, court string, start time.Time, durationMinutes int, title string) (*model.CalendarEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Fail != nil {
		return nil, c.Fail
	}
	if c.Blank {
		return nil, nil
	}

	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	for _, ev := range c.events {
		if strings.EqualFold(ev.court, court) && start.Before(ev.end) && ev.start.Before(end) {
			return nil, fmt.Errorf("%s %s: %w", court, start.Format(time.RFC3339), model.ErrSlotTaken)
		}
	}

	id := uuid.NewString()
	c.events[id] = localEvent{court: court, start: start, end: end, title: title}
	return &model.CalendarEvent{ID: id, Link: "local://events/" + id}, nil
}

func (c *LocalClient) DeleteEvent(_ context.Context, eventID, _ string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.events[eventID]; !ok {
		return false, nil
	}
	delete(c.events, eventID)
	return true, nil
}

// Len は登録済みイベント数を返します
func (c *LocalClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
