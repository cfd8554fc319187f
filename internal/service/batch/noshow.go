package batch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/saulcastac/PIA-2.0/internal/messaging"
	"github.com/saulcastac/PIA-2.0/internal/model"
	"github.com/saulcastac/PIA-2.0/internal/repository"
)

// NoShowBatchService はノーショー判定バッチ処理を担当します
type NoShowBatchService struct {
	reservationRepo repository.ReservationRepository
	notifier        *messaging.Notifier
	tolerance       time.Duration
	maxStrikes      int
	now             func() time.Time
}

// NewNoShowBatchService は新しいNoShowBatchServiceを作成します
func NewNoShowBatchService(reservationRepo repository.ReservationRepository, notifier *messaging.Notifier, tolerance time.Duration, maxStrikes int, now func() time.Time) *NoShowBatchService {
	if now == nil {
		now = time.Now
	}
	return &NoShowBatchService{
		reservationRepo: reservationRepo,
		notifier:        notifier,
		tolerance:       tolerance,
		maxStrikes:      maxStrikes,
		now:             now,
	}
}

// Run は開始時刻から猶予を過ぎてもconfirmedの予約をno_showにし、ストライクを加算します
// 出席確認済み(completed)の予約はconfirmedでないため対象になりません
func (s *NoShowBatchService) Run(ctx context.Context) (int, error) {
	// X-Rayセグメントの作成
	ctx, seg := xray.BeginSubsegment(ctx, "NoShowBatchService.Run")
	defer seg.Close(nil)

	now := s.now()
	cutoff := now.Add(-s.tolerance)

	reservations, err := s.reservationRepo.FindOverdue(ctx, cutoff)
	if err != nil {
		seg.Close(err)
		return 0, fmt.Errorf("failed to find overdue reservations: %w", err)
	}

	log.Printf("Found %d confirmed reservations started before %s", len(reservations), cutoff.Format(time.RFC3339))

	marked := 0
	for _, reservation := range reservations {
		user, ok, err := s.reservationRepo.RecordNoShow(ctx, reservation.ID, s.maxStrikes)
		if err != nil {
			log.Printf("Failed to record no-show for reservation %d: %v", reservation.ID, err)
			continue
		}
		if !ok {
			// 判定までの間に出席確認やキャンセルがあった
			continue
		}
		marked++

		log.Printf("Reservation %d marked as no_show. user=%d strikes=%d requires_prepayment=%v",
			reservation.ID, user.ID, user.Strikes, user.RequiresPrepayment)

		reservation.Status = model.StatusNoShow
		if err := s.notifier.Notify(ctx, model.NewNoShowNotification(reservation, *user, now)); err != nil {
			log.Printf("Failed to send no-show notification for reservation %d: %v", reservation.ID, err)
		}
	}

	if seg != nil {
		if err := seg.AddMetadata("no_show_count", marked); err != nil {
			log.Printf("Failed to add no_show_count metadata: %v", err)
		}
	}

	return marked, nil
}
