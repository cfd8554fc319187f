package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saulcastac/PIA-2.0/internal/model"
)

func newMemoryLedger(t *testing.T) (*Ledger, *model.User) {
	t.Helper()
	ledger := NewMemoryStore(func() time.Time { return fixedNow }).Ledger()
	u, err := ledger.Users.FindOrCreateByPhone(context.Background(), "+5491112345678")
	if err != nil {
		t.Fatalf("FindOrCreateByPhone() error = %v", err)
	}
	return ledger, u
}

func confirmedReservation(userID int64, key string, startsAt time.Time) *model.Reservation {
	eventID := "evt-" + key
	return &model.Reservation{
		UserID:          userID,
		BookingKey:      key,
		CourtName:       "GOCSA",
		StartsAt:        startsAt,
		DurationMinutes: 60,
		CalendarEventID: &eventID,
		Status:          model.StatusConfirmed,
		Confirmed:       true,
	}
}

func TestMemoryUsers_FindOrCreateIsIdempotent(t *testing.T) {
	ledger, u := newMemoryLedger(t)

	again, err := ledger.Users.FindOrCreateByPhone(context.Background(), u.PhoneNumber)
	if err != nil {
		t.Fatalf("FindOrCreateByPhone() error = %v", err)
	}
	if again.ID != u.ID {
		t.Errorf("second FindOrCreateByPhone() id = %d, want %d", again.ID, u.ID)
	}
}

func TestMemoryConversations_CompareAndSwap(t *testing.T) {
	ledger, _ := newMemoryLedger(t)
	ctx := context.Background()

	a, _ := ledger.Conversations.FindOrCreate(ctx, "+5491112345678")
	b, _ := ledger.Conversations.FindOrCreate(ctx, "+5491112345678")

	a.State = model.StateWaitingDate
	if err := ledger.Conversations.Save(ctx, a); err != nil {
		t.Fatalf("Save(a) error = %v", err)
	}

	b.State = model.StateWaitingRetry
	if err := ledger.Conversations.Save(ctx, b); !errors.Is(err, model.ErrStaleState) {
		t.Errorf("Save(b) error = %v, want ErrStaleState", err)
	}

	got, _ := ledger.Conversations.FindOrCreate(ctx, "+5491112345678")
	if got.State != model.StateWaitingDate || got.Version != 1 {
		t.Errorf("stored state = %+v", got)
	}
}

func TestMemoryReservations_Uniqueness(t *testing.T) {
	ledger, u := newMemoryLedger(t)
	ctx := context.Background()
	start := fixedNow.Add(48 * time.Hour)

	if err := ledger.Reservations.Create(ctx, confirmedReservation(u.ID, "k1", start)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := ledger.Reservations.Create(ctx, confirmedReservation(u.ID, "k1", start.Add(time.Hour))); !errors.Is(err, model.ErrDuplicateBooking) {
		t.Errorf("Create(dup key) error = %v", err)
	}
	if err := ledger.Reservations.Create(ctx, confirmedReservation(u.ID, "k2", start)); !errors.Is(err, model.ErrSlotTaken) {
		t.Errorf("Create(same slot) error = %v", err)
	}

	noEvent := confirmedReservation(u.ID, "k3", start.Add(2*time.Hour))
	noEvent.CalendarEventID = nil
	if err := ledger.Reservations.Create(ctx, noEvent); err == nil {
		t.Error("confirmed reservation without calendar event was stored")
	}

	exists, _ := ledger.Reservations.ExistsActiveAt(ctx, "GOCSA", start)
	if !exists {
		t.Error("ExistsActiveAt() = false")
	}
	upcoming, _ := ledger.Reservations.ListUpcomingByUser(ctx, u.ID, fixedNow)
	if len(upcoming) != 1 || upcoming[0].PhoneNumber != u.PhoneNumber {
		t.Errorf("ListUpcomingByUser() = %+v", upcoming)
	}
}

func TestMemoryReservations_ReminderClaim(t *testing.T) {
	ledger, u := newMemoryLedger(t)
	ctx := context.Background()

	res := confirmedReservation(u.ID, "k1", fixedNow.Add(24*time.Hour+30*time.Minute))
	if err := ledger.Reservations.Create(ctx, res); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	due, _ := ledger.Reservations.FindDueForReminder(ctx, model.Reminder24h, fixedNow.Add(24*time.Hour), fixedNow.Add(25*time.Hour))
	if len(due) != 1 {
		t.Fatalf("FindDueForReminder() = %d rows", len(due))
	}

	first, _ := ledger.Reservations.MarkReminderSent(ctx, res.ID, model.Reminder24h)
	second, _ := ledger.Reservations.MarkReminderSent(ctx, res.ID, model.Reminder24h)
	if !first || second {
		t.Errorf("claims = %v, %v, want true, false", first, second)
	}

	due, _ = ledger.Reservations.FindDueForReminder(ctx, model.Reminder24h, fixedNow.Add(24*time.Hour), fixedNow.Add(25*time.Hour))
	if len(due) != 0 {
		t.Errorf("FindDueForReminder() after claim = %d rows", len(due))
	}
}

func TestMemoryReservations_RecordNoShow(t *testing.T) {
	ledger, u := newMemoryLedger(t)
	ctx := context.Background()

	first := confirmedReservation(u.ID, "k1", fixedNow.Add(-12*time.Minute))
	second := confirmedReservation(u.ID, "k2", fixedNow.Add(-24*time.Hour))
	for _, r := range []*model.Reservation{first, second} {
		if err := ledger.Reservations.Create(ctx, r); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	updated, applied, err := ledger.Reservations.RecordNoShow(ctx, first.ID, 2)
	if err != nil || !applied || updated.Strikes != 1 || updated.RequiresPrepayment {
		t.Fatalf("RecordNoShow(first) = %+v, %v, %v", updated, applied, err)
	}

	// 同じ予約を再度処理してもストライクは増えない
	_, applied, _ = ledger.Reservations.RecordNoShow(ctx, first.ID, 2)
	if applied {
		t.Error("RecordNoShow() applied twice")
	}

	updated, _, _ = ledger.Reservations.RecordNoShow(ctx, second.ID, 2)
	if updated.Strikes != 2 || !updated.RequiresPrepayment {
		t.Errorf("after second no-show: %+v", updated)
	}

	ok, _ := ledger.Reservations.TransitionStatus(ctx, first.ID, model.StatusCompleted)
	if ok {
		t.Error("no_show reservation moved to completed")
	}
}
