package reservation

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/saulcastac/PIA-2.0/internal/messaging"
	"github.com/saulcastac/PIA-2.0/internal/model"
	"github.com/saulcastac/PIA-2.0/internal/repository"
)

// Worker はキューから受け取ったBookingJobで予約を作成し、結果をユーザーに送信します
// 失敗しても自動では再試行せず、ユーザーに結果を伝えて終了します
type Worker struct {
	lifecycle *Lifecycle
	users     repository.UserRepository
	notifier  *messaging.Notifier
	now       func() time.Time
}

func NewWorker(lifecycle *Lifecycle, users repository.UserRepository, notifier *messaging.Notifier, now func() time.Time) *Worker {
	if now == nil {
		now = time.Now
	}
	return &Worker{lifecycle: lifecycle, users: users, notifier: notifier, now: now}
}

// Handle は1件のジョブを処理します
// シャットダウン中で処理を始められなかった場合のみエラーを返し、再配送させます
func (w *Worker) Handle(ctx context.Context, job model.BookingJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, seg := xray.BeginSegment(ctx, "BookingWorker.Handle")
	defer seg.Close(nil)

	reservation, err := w.book(ctx, job)
	var notification model.Notification
	if err != nil {
		seg.Close(err)
		log.Printf("Booking job %s for %s failed: %v", job.Key, job.PhoneNumber, err)
		notification = model.Notification{
			Type:        model.NotificationTypeBookingFailed,
			PhoneNumber: job.PhoneNumber,
			Reason:      FailureReason(err),
			CreatedAt:   w.now(),
		}
	} else {
		notification = model.Notification{
			Type:        model.NotificationTypeBookingConfirmed,
			PhoneNumber: job.PhoneNumber,
			Reservation: reservation,
			CreatedAt:   w.now(),
		}
	}

	if err := w.notifier.Notify(ctx, notification); err != nil {
		log.Printf("Failed to deliver booking result for job %s: %v", job.Key, err)
	}
	return nil
}

func (w *Worker) book(ctx context.Context, job model.BookingJob) (*model.Reservation, error) {
	var (
		user *model.User
		err  error
	)
	if job.UserID != 0 {
		user, err = w.users.GetByID(ctx, job.UserID)
	} else {
		user, err = w.users.FindOrCreateByPhone(ctx, job.PhoneNumber)
	}
	if err != nil {
		return nil, err
	}
	return w.lifecycle.Create(ctx, user, job.Fields(), job.Key)
}

// FailureReason は予約失敗の理由をユーザー向けの一文にします
func FailureReason(err error) string {
	switch {
	case errors.Is(err, model.ErrPrepaymentRequired):
		return "Tu cuenta registra inasistencias, por lo que necesitás abonar la reserva por adelantado. Contactá al club para coordinar el pago."
	case errors.Is(err, model.ErrSlotTaken):
		return "Ese horario ya fue reservado por otra persona."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, model.ErrBookingFailed):
		return "El sistema de reservas no respondió a tiempo o rechazó la reserva."
	case errors.Is(err, model.ErrValidation):
		return "Faltan datos de la reserva."
	default:
		return "Ocurrió un error inesperado."
	}
}
