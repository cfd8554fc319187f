package model

import "time"

// ReservationStatus は予約のステータスです
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCompleted ReservationStatus = "completed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusNoShow    ReservationStatus = "no_show"
)

// DefaultDurationMinutes は予約時間の指定がない場合の既定値です
const DefaultDurationMinutes = 60

var transitions = map[ReservationStatus][]ReservationStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusNoShow, StatusCancelled},
}

// CanTransition はステータスの遷移が許されるかを返します
// pendingに戻る遷移はなく、終了状態からはどこにも遷移しません
func CanTransition(from, to ReservationStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal はこれ以上遷移できないステータスかを返します
func (s ReservationStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Reservation はコートの予約です
type Reservation struct {
	ID              int64             `db:"id" json:"id"`
	UserID          int64             `db:"user_id" json:"user_id"`
	PhoneNumber     string            `db:"phone_number" json:"phone_number,omitempty"`
	BookingKey      string            `db:"booking_key" json:"booking_key"`
	CourtName       string            `db:"court_name" json:"court_name"`
	StartsAt        time.Time         `db:"starts_at" json:"starts_at"`
	DurationMinutes int               `db:"duration_minutes" json:"duration_minutes"`
	CalendarEventID *string           `db:"calendar_event_id" json:"calendar_event_id,omitempty"`
	CalendarLink    *string           `db:"calendar_link" json:"calendar_link,omitempty"`
	Status          ReservationStatus `db:"status" json:"status"`
	Confirmed       bool              `db:"confirmed" json:"confirmed"`
	Reminder24hSent bool              `db:"reminder_24h_sent" json:"reminder_24h_sent"`
	Reminder3hSent  bool              `db:"reminder_3h_sent" json:"reminder_3h_sent"`
	Name            string            `db:"name" json:"name,omitempty"`
	Notes           string            `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// EndsAt は予約枠の終了時刻を返します
func (r Reservation) EndsAt() time.Time {
	return r.StartsAt.Add(time.Duration(r.DurationMinutes) * time.Minute)
}

// ReminderKind はリマインダーの種類です
type ReminderKind string

const (
	Reminder24h ReminderKind = "24h"
	Reminder3h  ReminderKind = "3h"
)

// Sent はkindのリマインダーが送信済みかを返します
func (r Reservation) Sent(kind ReminderKind) bool {
	if kind == Reminder24h {
		return r.Reminder24hSent
	}
	return r.Reminder3hSent
}

// CalendarEvent はカレンダーが返すイベントの参照です
type CalendarEvent struct {
	ID   string
	Link string
}
