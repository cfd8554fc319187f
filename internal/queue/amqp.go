package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/aws/aws-xray-sdk-go/xray"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/saulcastac/PIA-2.0/internal/model"
)

// AMQPConfig はexchange・queue・routing keyの組です
type AMQPConfig struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
	Prefetch   int
}

// AMQPQueue はRabbitMQのtopic exchangeを使うPublisherかつConsumerです
type AMQPQueue struct {
	cfg  AMQPConfig
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPQueue は接続してexchangeとqueueを宣言します
func NewAMQPQueue(cfg AMQPConfig) (*AMQPQueue, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	closeAll := func() {
		_ = ch.Close()
		_ = conn.Close()
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("bind %s: %w", cfg.RoutingKey, err)
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 8
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		closeAll()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	cfg.Queue = q.Name

	return &AMQPQueue{cfg: cfg, conn: conn, ch: ch}, nil
}

func (q *AMQPQueue) Publish(ctx context.Context, job model.BookingJob) error {
	ctx, seg := xray.BeginSubsegment(ctx, "Queue.Publish")
	defer seg.Close(nil)

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal booking job: %w", err)
	}
	err = q.ch.PublishWithContext(ctx, q.cfg.Exchange, q.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.Key,
		Body:         body,
	})
	if err != nil {
		seg.Close(err)
		return fmt.Errorf("publish booking job %s: %w", job.Key, err)
	}
	return nil
}

// Run は手動ackで配送を処理します
// prefetchと同じ数のワーカーで並行に処理し、すべて終了するまで戻りません
// デコードできないメッセージは破棄し、handlerのエラーは再キューします
func (q *AMQPQueue) Run(ctx context.Context, handler Handler) error {
	msgs, err := q.ch.ConsumeWithContext(ctx, q.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume failed: %w", err)
	}

	consume(ctx, msgs, q.cfg.Prefetch, handler)
	return nil
}

func consume(ctx context.Context, msgs <-chan amqp.Delivery, workers int, handler Handler) {
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-msgs:
					if !ok {
						return
					}
					handleDelivery(ctx, d.Body, d.Redelivered, d, handler)
				}
			}
		}()
	}
	wg.Wait()
}

// acknowledger はamqp.Deliveryのack系操作です
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func handleDelivery(ctx context.Context, body []byte, redelivered bool, ack acknowledger, handler Handler) {
	var job model.BookingJob
	if err := json.Unmarshal(body, &job); err != nil || job.Key == "" {
		log.Printf("[queue] drop malformed booking job: %v", err)
		_ = ack.Nack(false, false)
		return
	}
	if err := handler(ctx, job); err != nil {
		log.Printf("[queue] handle error key=%s redelivered=%v err=%v -> Nack&requeue", job.Key, redelivered, err)
		_ = ack.Nack(false, true)
		return
	}
	_ = ack.Ack(false)
}

func (q *AMQPQueue) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
