// Package batch はリマインダー送信とノーショー判定の定期ジョブを担当します
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

const (
	// 24時間前リマインダーは24時間後から1時間の枠を対象にする
	reminder24hLead   = 24 * time.Hour
	reminder24hWindow = time.Hour
	// 3時間前リマインダーは実行間隔と同じ5分の枠を対象にする
	reminder3hLead   = 3 * time.Hour
	reminder3hWindow = 5 * time.Minute
)

// ReminderBatchService はリマインダー送信バッチ処理を担当します
type ReminderBatchService struct {
	reservationRepo repository.ReservationRepository
	notifier        *messaging.Notifier
	enable24h       bool
	enable3h        bool
	now             func() time.Time
}

// ReminderResult は種類ごとの送信件数です
type ReminderResult struct {
	Sent24h int
	Sent3h  int
}

// NewReminderBatchService は新しいReminderBatchServiceを作成します
func NewReminderBatchService(reservationRepo repository.ReservationRepository, notifier *messaging.Notifier, enable24h, enable3h bool, now func() time.Time) *ReminderBatchService {
	if now == nil {
		now = time.Now
	}
	return &ReminderBatchService{
		reservationRepo: reservationRepo,
		notifier:        notifier,
		enable24h:       enable24h,
		enable3h:        enable3h,
		now:             now,
	}
}

// Window は種類ごとの対象期間[from, to)を返します
func Window(kind model.ReminderKind, now time.Time) (time.Time, time.Time) {
	if kind == model.Reminder3h {
		from := now.Add(reminder3hLead)
		return from, from.Add(reminder3hWindow)
	}
	from := now.Add(reminder24hLead)
	return from, from.Add(reminder24hWindow)
}

// Run は有効なリマインダーをすべて送信します
func (s *ReminderBatchService) Run(ctx context.Context) (ReminderResult, error) {
	// X-Rayセグメントの作成
	ctx, seg := xray.BeginSubsegment(ctx, "ReminderBatchService.Run")
	defer seg.Close(nil)

	startTime := time.Now()
	var result ReminderResult

	if s.enable24h {
		sent, err := s.send(ctx, model.Reminder24h)
		if err != nil {
			seg.Close(err)
			return result, err
		}
		result.Sent24h = sent
	}
	if s.enable3h {
		sent, err := s.send(ctx, model.Reminder3h)
		if err != nil {
			seg.Close(err)
			return result, err
		}
		result.Sent3h = sent
	}

	duration := time.Since(startTime)
	if seg != nil {
		if err := seg.AddMetadata("duration", duration.String()); err != nil {
			log.Printf("Failed to add duration metadata: %v", err)
		}
	}

	log.Printf("Reminder batch process completed. 24h=%d 3h=%d Duration: %v", result.Sent24h, result.Sent3h, duration)
	return result, nil
}

// send は対象の予約ごとにフラグを確保してから送信します
// 確保できなかった予約は他のスキャンが送信済みなのでスキップします
func (s *ReminderBatchService) send(ctx context.Context, kind model.ReminderKind) (int, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReminderBatchService.send")
	defer seg.Close(nil)

	now := s.now()
	from, to := Window(kind, now)

	reservations, err := s.reservationRepo.FindDueForReminder(ctx, kind, from, to)
	if err != nil {
		seg.Close(err)
		return 0, fmt.Errorf("failed to find reservations due for %s reminder: %w", kind, err)
	}

	log.Printf("Found %d reservations due for %s reminder in [%s, %s)", len(reservations), kind, from.Format(time.RFC3339), to.Format(time.RFC3339))

	sent := 0
	for _, reservation := range reservations {
		claimed, err := s.reservationRepo.MarkReminderSent(ctx, reservation.ID, kind)
		if err != nil {
			log.Printf("Failed to claim %s reminder for reservation %d: %v", kind, reservation.ID, err)
			continue
		}
		if !claimed {
			continue
		}

		// 送信失敗は再送しない。フラグは確保済みのまま残る
		if err := s.notifier.Notify(ctx, model.NewReminderNotification(kind, reservation, now)); err != nil {
			log.Printf("Failed to send %s reminder for reservation %d: %v", kind, reservation.ID, err)
			continue
		}
		sent++
	}

	return sent, nil
}
