package queue

import (
	"context"
	"log"
	"sync"

	"github.com/saulcastac/PIA-2.0/internal/model"
)

// LocalQueue はチャネルとワーカープールによるプロセス内キューです
type LocalQueue struct {
	jobs    chan model.BookingJob
	workers int

	mu     sync.RWMutex
	closed bool
}

func NewLocalQueue(size, workers int) *LocalQueue {
	if workers <= 0 {
		workers = 1
	}
	return &LocalQueue{jobs: make(chan model.BookingJob, size), workers: workers}
}

func (q *LocalQueue) Publish(ctx context.Context, job model.BookingJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run はワーカーを起動し、ctxのキャンセルかCloseまで処理を続けます
// 失敗したジョブはログに残して破棄します
func (q *LocalQueue) Run(ctx context.Context, handler Handler) error {
	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-q.jobs:
					if !ok {
						return
					}
					if err := handler(ctx, job); err != nil {
						log.Printf("[queue] booking job %s failed: %v", job.Key, err)
					}
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

// Close は新規投入を止め、残っているジョブを処理させてワーカーを終了させます
func (q *LocalQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}
