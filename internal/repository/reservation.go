package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/lib/pq"
	"github.com/saulcastac/PIA-2.0/internal/model"
)

const reservationColumns = `
			r.id,
			r.user_id,
			u.phone_number,
			r.booking_key,
			r.court_name,
			r.starts_at,
			r.duration_minutes,
			r.calendar_event_id,
			r.calendar_link,
			r.status,
			r.confirmed,
			r.reminder_24h_sent,
			r.reminder_3h_sent,
			r.name,
			r.notes,
			r.created_at,
			r.updated_at`

// ReservationRepositoryImpl はReservationRepositoryのPostgreSQL実装です
type ReservationRepositoryImpl struct {
	db  *DB
	now func() time.Time
}

// NewReservationRepository は新しいReservationRepositoryを作成します
func NewReservationRepository(db *DB) *ReservationRepositoryImpl {
	return &ReservationRepositoryImpl{db: db, now: time.Now}
}

// Create は予約を1件作成し、採番されたIDを設定します
// booking_keyの重複はErrDuplicateBooking、同じ枠の有効な予約はErrSlotTakenになります
func (r *ReservationRepositoryImpl) Create(ctx context.Context, reservation *model.Reservation) error {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.Create")
	defer seg.Close(nil)

	query := `
		INSERT INTO reservations (
			user_id,
			booking_key,
			court_name,
			starts_at,
			duration_minutes,
			calendar_event_id,
			calendar_link,
			status,
			confirmed,
			name,
			notes,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12
		)
		RETURNING id`

	now := r.now()
	err := r.db.QueryRowxContext(ctx, query,
		reservation.UserID,
		reservation.BookingKey,
		reservation.CourtName,
		reservation.StartsAt,
		reservation.DurationMinutes,
		reservation.CalendarEventID,
		reservation.CalendarLink,
		string(reservation.Status),
		reservation.Confirmed,
		reservation.Name,
		reservation.Notes,
		now,
	).Scan(&reservation.ID)
	if err != nil {
		seg.Close(err)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if pqErr.Constraint == "reservations_booking_key_key" {
				return fmt.Errorf("booking key %s: %w", reservation.BookingKey, model.ErrDuplicateBooking)
			}
			return fmt.Errorf("%s at %s: %w", reservation.CourtName, reservation.StartsAt.Format(time.RFC3339), model.ErrSlotTaken)
		}
		return model.StorageError("create reservation", err)
	}

	reservation.CreatedAt = now
	reservation.UpdatedAt = now
	return nil
}

// GetByID はIDで予約を取得します
func (r *ReservationRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.GetByID")
	defer seg.Close(nil)

	return r.getOne(ctx, seg, `r.id = $1`, id)
}

// GetByBookingKey は予約ジョブのキーで予約を取得します
func (r *ReservationRepositoryImpl) GetByBookingKey(ctx context.Context, key string) (*model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.GetByBookingKey")
	defer seg.Close(nil)

	return r.getOne(ctx, seg, `r.booking_key = $1`, key)
}

func (r *ReservationRepositoryImpl) getOne(ctx context.Context, seg *xray.Segment, where string, arg interface{}) (*model.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations r
		JOIN users u ON u.id = r.user_id
		WHERE ` + where

	var res model.Reservation
	err := r.db.QueryRowxContext(ctx, query, arg).StructScan(&res)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %v: %w", arg, model.ErrNotFound)
	}
	if err != nil {
		seg.Close(err)
		return nil, model.StorageError("get reservation", err)
	}

	return &res, nil
}

// ExistsActiveAt は同じコート・開始時刻に有効な予約があるかチェックします
func (r *ReservationRepositoryImpl) ExistsActiveAt(ctx context.Context, court string, startsAt time.Time) (bool, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.ExistsActiveAt")
	defer seg.Close(nil)

	query := `
		SELECT EXISTS (
			SELECT 1
			FROM reservations
			WHERE court_name = $1
			AND starts_at = $2
			AND status IN ('pending', 'confirmed')
		)`

	var exists bool
	if err := r.db.QueryRowxContext(ctx, query, court, startsAt).Scan(&exists); err != nil {
		seg.Close(err)
		return false, model.StorageError("check existing reservation", err)
	}

	return exists, nil
}

// ListUpcomingByUser はユーザーの今後の有効な予約を開始時刻順に取得します
func (r *ReservationRepositoryImpl) ListUpcomingByUser(ctx context.Context, userID int64, now time.Time) ([]model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.ListUpcomingByUser")
	defer seg.Close(nil)

	query := `
		SELECT ` + reservationColumns + `
		FROM reservations r
		JOIN users u ON u.id = r.user_id
		WHERE r.user_id = $1
		AND r.status IN ('pending', 'confirmed')
		AND r.starts_at >= $2
		ORDER BY r.starts_at ASC`

	return r.selectMany(ctx, seg, query, userID, now)
}

// FindDueForReminder はリマインダー未送信で開始時刻が[from, to)にあるconfirmedの予約を取得します
func (r *ReservationRepositoryImpl) FindDueForReminder(ctx context.Context, kind model.ReminderKind, from, to time.Time) ([]model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.FindDueForReminder")
	defer seg.Close(nil)

	column, err := reminderColumn(kind)
	if err != nil {
		seg.Close(err)
		return nil, err
	}

	query := `
		SELECT ` + reservationColumns + `
		FROM reservations r
		JOIN users u ON u.id = r.user_id
		WHERE r.status = 'confirmed'
		AND r.` + column + ` = FALSE
		AND r.starts_at >= $1
		AND r.starts_at < $2
		ORDER BY r.starts_at ASC`

	return r.selectMany(ctx, seg, query, from, to)
}

// MarkReminderSent はリマインダーフラグを未送信の場合のみ立てます
// 複数のスキャンが重なっても送信は1回だけになります
func (r *ReservationRepositoryImpl) MarkReminderSent(ctx context.Context, id int64, kind model.ReminderKind) (bool, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.MarkReminderSent")
	defer seg.Close(nil)

	column, err := reminderColumn(kind)
	if err != nil {
		seg.Close(err)
		return false, err
	}

	query := `
		UPDATE reservations
		SET ` + column + ` = TRUE,
			updated_at = $1
		WHERE id = $2
		AND ` + column + ` = FALSE
		AND status = 'confirmed'`

	result, err := r.db.ExecContext(ctx, query, r.now(), id)
	if err != nil {
		seg.Close(err)
		return false, model.StorageError("mark reminder sent", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		seg.Close(err)
		return false, model.StorageError("mark reminder sent", err)
	}

	return rowsAffected == 1, nil
}

// FindOverdue は開始時刻がstartedBeforeより前でconfirmedのままの予約を取得します
func (r *ReservationRepositoryImpl) FindOverdue(ctx context.Context, startedBefore time.Time) ([]model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.FindOverdue")
	defer seg.Close(nil)

	query := `
		SELECT ` + reservationColumns + `
		FROM reservations r
		JOIN users u ON u.id = r.user_id
		WHERE r.status = 'confirmed'
		AND r.starts_at < $1
		ORDER BY r.starts_at ASC`

	return r.selectMany(ctx, seg, query, startedBefore)
}

// RecordNoShow は予約をno_showにし、ユーザーのストライクを1つ加算します
// ストライクがmaxStrikes以上になった場合は同じ文で前払いフラグを立てます (一度立ったフラグは下げません)
// 予約がすでにconfirmedでない場合は何もせずfalseを返します
func (r *ReservationRepositoryImpl) RecordNoShow(ctx context.Context, id int64, maxStrikes int) (*model.User, bool, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.RecordNoShow")
	defer seg.Close(nil)

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		seg.Close(err)
		return nil, false, model.StorageError("begin no-show transaction", err)
	}

	rollback := func(cause error) {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("rollback failed: %v, original error: %v", rbErr, cause)
		}
	}

	now := r.now()

	var userID int64
	err = tx.QueryRowxContext(ctx, `
		UPDATE reservations
		SET status = 'no_show',
			updated_at = $1
		WHERE id = $2
		AND status = 'confirmed'
		RETURNING user_id`, now, id).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		rollback(err)
		return nil, false, nil
	}
	if err != nil {
		rollback(err)
		seg.Close(err)
		return nil, false, model.StorageError("mark no-show", err)
	}

	var u model.User
	err = tx.QueryRowxContext(ctx, `
		UPDATE users
		SET strikes = strikes + 1,
			requires_prepayment = requires_prepayment OR strikes + 1 >= $1,
			updated_at = $2
		WHERE id = $3
		RETURNING `+userColumns, maxStrikes, now, userID).StructScan(&u)
	if err != nil {
		rollback(err)
		seg.Close(err)
		return nil, false, model.StorageError("apply strike", err)
	}

	if err := tx.Commit(); err != nil {
		seg.Close(err)
		return nil, false, model.StorageError("commit no-show", err)
	}

	return &u, true, nil
}

// TransitionStatus は遷移可能な元ステータスの場合のみ予約のステータスを更新します
func (r *ReservationRepositoryImpl) TransitionStatus(ctx context.Context, id int64, to model.ReservationStatus) (bool, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.TransitionStatus")
	defer seg.Close(nil)

	from := sourceStatuses(to)
	if len(from) == 0 {
		return false, fmt.Errorf("no status can move to %s: %w", to, model.ErrValidation)
	}

	query := `
		UPDATE reservations
		SET status = $1,
			updated_at = $2
		WHERE id = $3
		AND status = ANY($4)`

	result, err := r.db.ExecContext(ctx, query, string(to), r.now(), id, pq.Array(from))
	if err != nil {
		seg.Close(err)
		return false, model.StorageError("update reservation status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		seg.Close(err)
		return false, model.StorageError("update reservation status", err)
	}

	return rowsAffected == 1, nil
}

func (r *ReservationRepositoryImpl) selectMany(ctx context.Context, seg *xray.Segment, query string, args ...interface{}) ([]model.Reservation, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		seg.Close(err)
		return nil, model.StorageError("query reservations", err)
	}
	defer rows.Close()

	var reservations []model.Reservation
	for rows.Next() {
		var res model.Reservation
		if err := rows.StructScan(&res); err != nil {
			seg.Close(err)
			return nil, model.StorageError("scan reservation row", err)
		}
		reservations = append(reservations, res)
	}

	if err = rows.Err(); err != nil {
		seg.Close(err)
		return nil, model.StorageError("iterate reservation rows", err)
	}

	return reservations, nil
}

func reminderColumn(kind model.ReminderKind) (string, error) {
	switch kind {
	case model.Reminder24h:
		return "reminder_24h_sent", nil
	case model.Reminder3h:
		return "reminder_3h_sent", nil
	}
	return "", fmt.Errorf("unknown reminder kind %q: %w", kind, model.ErrValidation)
}
