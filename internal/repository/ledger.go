package repository

import (
	"context"
	"time"

	"github.com/saulcastac/PIA-2.0/internal/model"
)

// UserRepository はユーザーの永続化を担当するインターフェースです
type UserRepository interface {
	FindOrCreateByPhone(ctx context.Context, phone string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	UpdateName(ctx context.Context, id int64, name string) error
}

// ConversationRepository は会話状態の永続化を担当するインターフェースです
type ConversationRepository interface {
	FindOrCreate(ctx context.Context, phone string) (*model.ConversationState, error)
	// Save はVersionが一致する場合のみ保存し、成功時にVersionを進めます
	Save(ctx context.Context, state *model.ConversationState) error
}

// ReservationRepository は予約の永続化を担当するインターフェースです
type ReservationRepository interface {
	Create(ctx context.Context, reservation *model.Reservation) error
	GetByID(ctx context.Context, id int64) (*model.Reservation, error)
	GetByBookingKey(ctx context.Context, key string) (*model.Reservation, error)
	ExistsActiveAt(ctx context.Context, court string, startsAt time.Time) (bool, error)
	ListUpcomingByUser(ctx context.Context, userID int64, now time.Time) ([]model.Reservation, error)
	FindDueForReminder(ctx context.Context, kind model.ReminderKind, from, to time.Time) ([]model.Reservation, error)
	// MarkReminderSent はリマインダーフラグを条件付きで立て、このプロセスが確保できた場合にtrueを返します
	MarkReminderSent(ctx context.Context, id int64, kind model.ReminderKind) (bool, error)
	FindOverdue(ctx context.Context, startedBefore time.Time) ([]model.Reservation, error)
	// RecordNoShow はconfirmed→no_showの遷移とストライク加算を1トランザクションで行います
	RecordNoShow(ctx context.Context, id int64, maxStrikes int) (*model.User, bool, error)
	TransitionStatus(ctx context.Context, id int64, to model.ReservationStatus) (bool, error)
}

// Ledger は会話エンジン・予約ライフサイクル・スケジューラが共有する唯一の可変ストアです
type Ledger struct {
	Users         UserRepository
	Conversations ConversationRepository
	Reservations  ReservationRepository
}

// NewPostgresLedger はPostgreSQLを使うLedgerを作成します
func NewPostgresLedger(db *DB) *Ledger {
	return &Ledger{
		Users:         NewUserRepository(db),
		Conversations: NewConversationRepository(db),
		Reservations:  NewReservationRepository(db),
	}
}

// sourceStatuses はtoへ遷移できる元のステータス一覧を返します
func sourceStatuses(to model.ReservationStatus) []string {
	var from []string
	for _, s := range []model.ReservationStatus{model.StatusPending, model.StatusConfirmed} {
		if model.CanTransition(s, to) {
			from = append(from, string(s))
		}
	}
	return from
}
