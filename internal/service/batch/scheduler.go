package batch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/saulcastac/PIA-2.0/internal/common/utils"
)

// ジョブ名
const (
	JobReminders = "reminders"
	JobNoShow    = "noshow"
)

// Scheduler はリマインダーとノーショー判定を一定間隔で実行します
// 各回の実行はtimeoutで打ち切ります
type Scheduler struct {
	reminders        *ReminderBatchService
	noShows          *NoShowBatchService
	reminderInterval time.Duration
	noShowInterval   time.Duration
	timeout          time.Duration
}

// NewScheduler は新しいSchedulerを作成します
func NewScheduler(reminders *ReminderBatchService, noShows *NoShowBatchService, reminderInterval, noShowInterval, timeout time.Duration) *Scheduler {
	return &Scheduler{
		reminders:        reminders,
		noShows:          noShows,
		reminderInterval: reminderInterval,
		noShowInterval:   noShowInterval,
		timeout:          timeout,
	}
}

// RunJob はジョブを1回実行して結果を返します
func (s *Scheduler) RunJob(ctx context.Context, job string) (Report, error) {
	ctx, seg := xray.BeginSegment(ctx, "Scheduler."+job)
	defer seg.Close(nil)

	report := Report{Job: job}
	err := utils.RunWithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		switch job {
		case JobReminders:
			result, err := s.reminders.Run(ctx)
			report.Reminders24h = result.Sent24h
			report.Reminders3h = result.Sent3h
			return err
		case JobNoShow:
			marked, err := s.noShows.Run(ctx)
			report.NoShows = marked
			return err
		}
		return fmt.Errorf("unknown job %q", job)
	})
	if err != nil {
		seg.Close(err)
		return Report{Job: job}, utils.GetStackWithError(fmt.Errorf("job %s failed: %w", job, err))
	}
	return report, nil
}

// Start はctxがキャンセルされるまでジョブを定期実行します
// 起動直後に1回ずつ実行します
func (s *Scheduler) Start(ctx context.Context) {
	log.Printf("Scheduler started. reminders every %v, no-show every %v", s.reminderInterval, s.noShowInterval)

	reminderTicker := time.NewTicker(s.reminderInterval)
	defer reminderTicker.Stop()
	noShowTicker := time.NewTicker(s.noShowInterval)
	defer noShowTicker.Stop()

	s.tick(ctx, JobReminders)
	s.tick(ctx, JobNoShow)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Scheduler stopped")
			return
		case <-reminderTicker.C:
			s.tick(ctx, JobReminders)
		case <-noShowTicker.C:
			s.tick(ctx, JobNoShow)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, job string) {
	if _, err := s.RunJob(ctx, job); err != nil {
		log.Printf("Scheduled %s run failed: %v", job, err)
	}
}
