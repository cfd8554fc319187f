// Package reservation は予約レコードとカレンダーイベントの作成・取消を担当します
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/google/uuid"
	"github.com/saulcastac/PIA-2.0/internal/calendar"
	"github.com/saulcastac/PIA-2.0/internal/common/utils"
	"github.com/saulcastac/PIA-2.0/internal/model"
	"github.com/saulcastac/PIA-2.0/internal/repository"
)

var errNoEventID = errors.New("calendar returned no event id")

// Lifecycle は予約の作成・キャンセル・出席確認を行います
type Lifecycle struct {
	ledger          *repository.Ledger
	calendar        calendar.Client
	loc             *time.Location
	calendarTimeout time.Duration
	slots           *utils.KeyedMutex
}

// NewLifecycle は新しいLifecycleを作成します
func NewLifecycle(ledger *repository.Ledger, cal calendar.Client, loc *time.Location, calendarTimeout time.Duration) *Lifecycle {
	if loc == nil {
		loc = time.UTC
	}
	if calendarTimeout <= 0 {
		calendarTimeout = 20 * time.Second
	}
	return &Lifecycle{
		ledger:          ledger,
		calendar:        cal,
		loc:             loc,
		calendarTimeout: calendarTimeout,
		slots:           utils.NewKeyedMutex(),
	}
}

// Create はカレンダーイベントを作成し、IDが得られた場合のみconfirmedの予約を保存します
// 同じbookingKeyで既に予約がある場合はその予約を返します
func (l *Lifecycle) Create(ctx context.Context, user *model.User, fields model.BookingFields, bookingKey string) (*model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Lifecycle.Create")
	defer seg.Close(nil)

	if bookingKey == "" {
		bookingKey = uuid.NewString()
	}

	existing, err := l.ledger.Reservations.GetByBookingKey(ctx, bookingKey)
	switch {
	case err == nil:
		log.Printf("Booking key %s already has reservation %d", bookingKey, existing.ID)
		return existing, nil
	case !errors.Is(err, model.ErrNotFound):
		seg.Close(err)
		return nil, err
	}

	if user.RequiresPrepayment {
		return nil, model.ErrPrepaymentRequired
	}
	if !fields.Complete() {
		return nil, fmt.Errorf("missing %v: %w", fields.Missing(), model.ErrValidation)
	}
	startsAt, err := time.ParseInLocation(model.DateLayout+" "+model.ClockLayout, fields.Date+" "+fields.Time, l.loc)
	if err != nil {
		return nil, fmt.Errorf("invalid start %s %s: %w", fields.Date, fields.Time, model.ErrValidation)
	}
	duration := fields.DurationOrDefault()

	// 同じ枠への同時作成はプロセス内で直列化する。プロセス間はカレンダーと一意制約が判定する
	unlock := l.slots.Lock(fields.Court + "|" + startsAt.UTC().Format(time.RFC3339))
	defer unlock()

	taken, err := l.ledger.Reservations.ExistsActiveAt(ctx, fields.Court, startsAt)
	if err != nil {
		seg.Close(err)
		return nil, err
	}
	if taken {
		return nil, model.BookingFailed(model.ErrSlotTaken)
	}

	event, err := l.createEvent(ctx, fields.Court, startsAt, duration, calendar.EventTitle(fields.Court, fields.Name))
	if err != nil {
		seg.Close(err)
		return nil, model.BookingFailed(err)
	}

	reservation := &model.Reservation{
		UserID:          user.ID,
		PhoneNumber:     user.PhoneNumber,
		BookingKey:      bookingKey,
		CourtName:       fields.Court,
		StartsAt:        startsAt,
		DurationMinutes: duration,
		CalendarEventID: &event.ID,
		CalendarLink:    &event.Link,
		Status:          model.StatusConfirmed,
		Confirmed:       true,
		Name:            fields.Name,
	}
	if err := l.ledger.Reservations.Create(ctx, reservation); err != nil {
		seg.Close(err)
		l.deleteEvent(ctx, event.ID, fields.Court)
		if errors.Is(err, model.ErrDuplicateBooking) {
			return l.ledger.Reservations.GetByBookingKey(ctx, bookingKey)
		}
		if errors.Is(err, model.ErrSlotTaken) {
			return nil, model.BookingFailed(err)
		}
		return nil, err
	}

	if fields.Name != "" && fields.Name != user.Name {
		if err := l.ledger.Users.UpdateName(ctx, user.ID, fields.Name); err != nil {
			log.Printf("Failed to update name of user %d: %v", user.ID, err)
		}
	}

	if seg != nil {
		if err := seg.AddMetadata("reservation_id", reservation.ID); err != nil {
			log.Printf("Failed to add reservation_id metadata: %v", err)
		}
	}
	log.Printf("Reservation %d confirmed: court=%s starts_at=%s user=%d", reservation.ID, reservation.CourtName, startsAt.Format(time.RFC3339), user.ID)
	return reservation, nil
}

// createEvent はカレンダー呼び出しをcalendarTimeoutで打ち切ります
func (l *Lifecycle) createEvent(ctx context.Context, court string, startsAt time.Time, duration int, title string) (*model.CalendarEvent, error) {
	var event *model.CalendarEvent
	err := utils.RunWithTimeout(ctx, l.calendarTimeout, func(ctx context.Context) error {
		ev, err := l.calendar.CreateEvent(ctx, court, startsAt, duration, title)
		if err != nil {
			return err
		}
		if ev == nil || ev.ID == "" {
			return errNoEventID
		}
		event = ev
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create calendar event: %w", err)
	}
	return event, nil
}

func (l *Lifecycle) deleteEvent(ctx context.Context, eventID, court string) {
	if _, err := l.calendar.DeleteEvent(ctx, eventID, court); err != nil {
		log.Printf("Failed to delete calendar event %s: %v", eventID, err)
	}
}

// Cancel はpendingまたはconfirmedの予約をcancelledにしてカレンダーイベントを削除します
func (l *Lifecycle) Cancel(ctx context.Context, id int64) (*model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Lifecycle.Cancel")
	defer seg.Close(nil)

	reservation, err := l.transition(ctx, id, model.StatusCancelled)
	if err != nil {
		seg.Close(err)
		return nil, err
	}
	if reservation.CalendarEventID != nil {
		l.deleteEvent(ctx, *reservation.CalendarEventID, reservation.CourtName)
	}
	return reservation, nil
}

// ConfirmAttendance は出席を記録し、confirmedからcompletedに遷移させます
// 遷移済みの予約はノーショー判定の対象外になります
func (l *Lifecycle) ConfirmAttendance(ctx context.Context, id int64) (*model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Lifecycle.ConfirmAttendance")
	defer seg.Close(nil)

	reservation, err := l.transition(ctx, id, model.StatusCompleted)
	if err != nil {
		seg.Close(err)
		return nil, err
	}
	return reservation, nil
}

func (l *Lifecycle) transition(ctx context.Context, id int64, to model.ReservationStatus) (*model.Reservation, error) {
	reservation, err := l.ledger.Reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := l.ledger.Reservations.TransitionStatus(ctx, id, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("reservation %d cannot move from %s to %s: %w", id, reservation.Status, to, model.ErrValidation)
	}
	reservation.Status = to
	return reservation, nil
}
