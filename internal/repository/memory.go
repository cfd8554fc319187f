package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/saulcastac/PIA-2.0/internal/model"
)

// MemoryStore はENV=LOCALとテストで使うプロセス内のLedger実装です
// PostgreSQL実装と同じ条件付き更新・一意制約を再現します
type MemoryStore struct {
	mu            sync.Mutex
	now           func() time.Time
	nextUserID    int64
	nextResID     int64
	users         map[int64]*model.User
	usersByPhone  map[string]int64
	conversations map[string]*model.ConversationState
	reservations  map[int64]*model.Reservation
}

// NewMemoryStore は空のMemoryStoreを作成します
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:           now,
		users:         make(map[int64]*model.User),
		usersByPhone:  make(map[string]int64),
		conversations: make(map[string]*model.ConversationState),
		reservations:  make(map[int64]*model.Reservation),
	}
}

// Ledger はMemoryStoreを各リポジトリとして公開します
func (m *MemoryStore) Ledger() *Ledger {
	return &Ledger{
		Users:         memoryUsers{m},
		Conversations: memoryConversations{m},
		Reservations:  memoryReservations{m},
	}
}

type memoryUsers struct{ m *MemoryStore }

func (r memoryUsers) FindOrCreateByPhone(_ context.Context, phone string) (*model.User, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.usersByPhone[phone]; ok {
		u := *m.users[id]
		return &u, nil
	}
	m.nextUserID++
	now := m.now()
	u := &model.User{ID: m.nextUserID, PhoneNumber: phone, CreatedAt: now, UpdatedAt: now}
	m.users[u.ID] = u
	m.usersByPhone[phone] = u.ID
	cp := *u
	return &cp, nil
}

func (r memoryUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, model.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r memoryUsers) UpdateName(_ context.Context, id int64, name string) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[id]; ok {
		u.Name = name
		u.UpdatedAt = m.now()
	}
	return nil
}

type memoryConversations struct{ m *MemoryStore }

func (r memoryConversations) FindOrCreate(_ context.Context, phone string) (*model.ConversationState, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.conversations[phone]
	if !ok {
		s = model.NewConversationState(phone)
		s.UpdatedAt = m.now()
		m.conversations[phone] = s
	}
	return cloneState(s), nil
}

func (r memoryConversations) Save(_ context.Context, state *model.ConversationState) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.conversations[state.PhoneNumber]
	if !ok || cur.Version != state.Version {
		return model.StorageError("save conversation", fmt.Errorf("%s at version %d: %w", state.PhoneNumber, state.Version, model.ErrStaleState))
	}
	state.Version++
	state.UpdatedAt = m.now()
	m.conversations[state.PhoneNumber] = cloneState(state)
	return nil
}

type memoryReservations struct{ m *MemoryStore }

func (r memoryReservations) Create(_ context.Context, res *model.Reservation) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.reservations {
		if other.BookingKey == res.BookingKey {
			return fmt.Errorf("booking key %s: %w", res.BookingKey, model.ErrDuplicateBooking)
		}
		if isActive(other.Status) && other.CourtName == res.CourtName && other.StartsAt.Equal(res.StartsAt) {
			return fmt.Errorf("%s at %s: %w", res.CourtName, res.StartsAt.Format(time.RFC3339), model.ErrSlotTaken)
		}
	}
	if res.Status == model.StatusConfirmed && (!res.Confirmed || res.CalendarEventID == nil) {
		return model.StorageError("create reservation", fmt.Errorf("confirmed reservation without calendar event"))
	}

	m.nextResID++
	now := m.now()
	res.ID = m.nextResID
	res.CreatedAt = now
	res.UpdatedAt = now
	if u, ok := m.users[res.UserID]; ok {
		res.PhoneNumber = u.PhoneNumber
	}
	cp := *res
	m.reservations[res.ID] = &cp
	return nil
}

func (r memoryReservations) GetByID(_ context.Context, id int64) (*model.Reservation, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation %d: %w", id, model.ErrNotFound)
	}
	cp := *res
	return &cp, nil
}

func (r memoryReservations) GetByBookingKey(_ context.Context, key string) (*model.Reservation, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, res := range m.reservations {
		if res.BookingKey == key {
			cp := *res
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("reservation %s: %w", key, model.ErrNotFound)
}

func (r memoryReservations) ExistsActiveAt(_ context.Context, court string, startsAt time.Time) (bool, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, res := range m.reservations {
		if isActive(res.Status) && res.CourtName == court && res.StartsAt.Equal(startsAt) {
			return true, nil
		}
	}
	return false, nil
}

func (r memoryReservations) ListUpcomingByUser(_ context.Context, userID int64, now time.Time) ([]model.Reservation, error) {
	return r.m.filter(func(res *model.Reservation) bool {
		return res.UserID == userID && isActive(res.Status) && !res.StartsAt.Before(now)
	}), nil
}

func (r memoryReservations) FindDueForReminder(_ context.Context, kind model.ReminderKind, from, to time.Time) ([]model.Reservation, error) {
	if _, err := reminderColumn(kind); err != nil {
		return nil, err
	}
	return r.m.filter(func(res *model.Reservation) bool {
		return res.Status == model.StatusConfirmed && !res.Sent(kind) &&
			!res.StartsAt.Before(from) && res.StartsAt.Before(to)
	}), nil
}

func (r memoryReservations) MarkReminderSent(_ context.Context, id int64, kind model.ReminderKind) (bool, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[id]
	if !ok || res.Status != model.StatusConfirmed || res.Sent(kind) {
		return false, nil
	}
	switch kind {
	case model.Reminder24h:
		res.Reminder24hSent = true
	case model.Reminder3h:
		res.Reminder3hSent = true
	default:
		return false, fmt.Errorf("unknown reminder kind %q: %w", kind, model.ErrValidation)
	}
	res.UpdatedAt = m.now()
	return true, nil
}

func (r memoryReservations) FindOverdue(_ context.Context, startedBefore time.Time) ([]model.Reservation, error) {
	return r.m.filter(func(res *model.Reservation) bool {
		return res.Status == model.StatusConfirmed && res.StartsAt.Before(startedBefore)
	}), nil
}

func (r memoryReservations) RecordNoShow(_ context.Context, id int64, maxStrikes int) (*model.User, bool, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[id]
	if !ok || res.Status != model.StatusConfirmed {
		return nil, false, nil
	}
	u, ok := m.users[res.UserID]
	if !ok {
		return nil, false, model.StorageError("apply strike", fmt.Errorf("user %d: %w", res.UserID, model.ErrNotFound))
	}

	now := m.now()
	res.Status = model.StatusNoShow
	res.UpdatedAt = now
	u.ApplyStrike(maxStrikes)
	u.UpdatedAt = now
	cp := *u
	return &cp, true, nil
}

func (r memoryReservations) TransitionStatus(_ context.Context, id int64, to model.ReservationStatus) (bool, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[id]
	if !ok || !model.CanTransition(res.Status, to) {
		return false, nil
	}
	res.Status = to
	res.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryStore) filter(keep func(*model.Reservation) bool) []model.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Reservation
	for _, res := range m.reservations {
		if keep(res) {
			out = append(out, *res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out
}

func isActive(s model.ReservationStatus) bool {
	return s == model.StatusPending || s == model.StatusConfirmed
}

func cloneState(s *model.ConversationState) *model.ConversationState {
	cp := *s
	cp.Context.Options = append([]model.Slot(nil), s.Context.Options...)
	if s.Context.TimeGroups != nil {
		cp.Context.TimeGroups = make(map[string][]string, len(s.Context.TimeGroups))
		for k, v := range s.Context.TimeGroups {
			cp.Context.TimeGroups[k] = append([]string(nil), v...)
		}
	}
	return &cp
}
