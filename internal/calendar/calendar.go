// Package calendar はコートの予約枠を外部カレンダーに登録します。
// カレンダー側が重複予約の判定元です。
package calendar

import (
	"context"
	"time"

	"github.com/saulcastac/PIA-2.0/internal/model"
)

// Client はカレンダー連携のインターフェースです
// CreateEventがイベントを作れなかった場合は(nil, nil)、枠が埋まっている場合はErrSlotTakenを返します
type Client interface {
	CreateEvent(ctx context.Context, court string, start time.Time, durationMinutes int, title string) (*model.CalendarEvent, error)
	DeleteEvent(ctx context.Context, eventID, court string) (bool, error)
}

// EventTitle は予約イベントのタイトルを返します
func EventTitle(court, name string) string {
	if name == "" {
		return "Reserva Pádel - " + court
	}
	return "Reserva Pádel - " + court + " - " + name
}
