package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/saulcastac/PIA-2.0/internal/availability"
	"github.com/saulcastac/PIA-2.0/internal/calendar"
	"github.com/saulcastac/PIA-2.0/internal/common/config"
	"github.com/saulcastac/PIA-2.0/internal/common/database"
	"github.com/saulcastac/PIA-2.0/internal/handler"
	"github.com/saulcastac/PIA-2.0/internal/messaging"
	"github.com/saulcastac/PIA-2.0/internal/queue"
	"github.com/saulcastac/PIA-2.0/internal/repository"
	"google.golang.org/api/option"
)

// bookingQueue は予約ジョブの投入と消費の両方を行うキューです
type bookingQueue interface {
	queue.Publisher
	queue.Consumer
	Close() error
}

// infra はENVに応じて選んだ外部サービスの実装をまとめたものです
type infra struct {
	ledger       *repository.Ledger
	availability availability.Source
	calendar     calendar.Client
	sender       messaging.Sender
	bookings     bookingQueue
	deduper      handler.Deduper

	closers []func() error
}

func newInfra(ctx context.Context, cfg *config.Config, loc *time.Location, now func() time.Time, availabilityFile string) (*infra, error) {
	if cfg.IsLocal() {
		return newLocalInfra(ctx, cfg, loc, now, availabilityFile)
	}
	return newProductionInfra(ctx, cfg, loc)
}

func newLocalInfra(ctx context.Context, cfg *config.Config, loc *time.Location, now func() time.Time, availabilityFile string) (*infra, error) {
	log.Println("Local environment detected. Using in-process storage, queue, calendar and sender")

	source := availability.NewMemorySource(cfg.AvailabilityMaxAge, now)
	if availabilityFile != "" {
		f, err := os.Open(availabilityFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open availability file: %w", err)
		}
		defer f.Close()
		n, err := availability.Import(ctx, source, f, loc)
		if err != nil {
			return nil, err
		}
		log.Printf("Loaded availability for %d days from %s", n, availabilityFile)
	}

	bookings := queue.NewLocalQueue(256, cfg.BookingWorkers)
	return &infra{
		ledger:       repository.NewMemoryStore(now).Ledger(),
		availability: source,
		calendar:     calendar.NewLocalClient(),
		sender:       messaging.NewLogSender(),
		bookings:     bookings,
		deduper:      handler.NewMemoryDeduper(handler.DefaultDedupeTTL, now),
		closers:      []func() error{bookings.Close},
	}, nil
}

func newProductionInfra(ctx context.Context, cfg *config.Config, loc *time.Location) (*infra, error) {
	in := &infra{}
	ok := false
	defer func() {
		if !ok {
			in.Close()
		}
	}()

	conn, err := database.NewDB(cfg.DB)
	if err != nil {
		return nil, err
	}
	in.closers = append(in.closers, conn.Close)
	db := repository.NewDBFromSQL(conn.DB.DB)
	if err := repository.Migrate(ctx, db); err != nil {
		return nil, err
	}
	in.ledger = repository.NewPostgresLedger(db)

	rdb := availability.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	in.closers = append(in.closers, rdb.Close)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	in.availability = availability.NewRedisSource(rdb, cfg.AvailabilityMaxAge)
	in.deduper = handler.NewRedisDeduper(rdb, handler.DefaultDedupeTTL)

	in.calendar, err = newCalendar(ctx, cfg, loc)
	if err != nil {
		return nil, err
	}

	if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" || cfg.Twilio.From == "" {
		return nil, fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_WHATSAPP_FROM are required")
	}
	in.sender = messaging.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From)

	bookings, err := queue.NewAMQPQueue(queue.AMQPConfig{
		URL:        cfg.AMQP.URL,
		Exchange:   cfg.AMQP.Exchange,
		Queue:      cfg.AMQP.Queue,
		RoutingKey: cfg.AMQP.RoutingKey,
		Prefetch:   cfg.BookingWorkers,
	})
	if err != nil {
		return nil, err
	}
	in.bookings = bookings
	in.closers = append(in.closers, bookings.Close)

	ok = true
	return in, nil
}

func newCalendar(ctx context.Context, cfg *config.Config, loc *time.Location) (calendar.Client, error) {
	var opts []option.ClientOption
	if cfg.Calendar.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Calendar.CredentialsFile))
	}
	return calendar.NewGoogleClient(ctx, cfg.Calendar.DefaultID, cfg.Calendar.CourtIDs, loc, opts...)
}

// Close は作成した順と逆順に接続を閉じます
func (in *infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			log.Printf("Failed to close resource: %v", err)
		}
	}
	in.closers = nil
}
