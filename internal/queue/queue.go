// Package queue は会話ターンから予約ワーカーへBookingJobを受け渡します
package queue

import (
	"context"
	"errors"

	"github.com/saulcastac/PIA-2.0/internal/model"
)

// Handler はジョブを1件処理します
// エラーを返した場合、ジョブは再配送の対象になります
type Handler func(ctx context.Context, job model.BookingJob) error

// Publisher はジョブを投入します
type Publisher interface {
	Publish(ctx context.Context, job model.BookingJob) error
}

// Consumer はctxがキャンセルされるまでジョブを取り出してhandlerに渡します
type Consumer interface {
	Run(ctx context.Context, handler Handler) error
}

// ErrClosed はクローズ済みのキューへの投入で返されます
var ErrClosed = errors.New("queue closed")
