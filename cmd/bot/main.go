package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/saulcastac/PIA-2.0/internal/common/config"
	"github.com/saulcastac/PIA-2.0/internal/handler"
	"github.com/saulcastac/PIA-2.0/internal/intent"
	"github.com/saulcastac/PIA-2.0/internal/messaging"
	"github.com/saulcastac/PIA-2.0/internal/model"
	"github.com/saulcastac/PIA-2.0/internal/service/batch"
	"github.com/saulcastac/PIA-2.0/internal/service/conversation"
	"github.com/saulcastac/PIA-2.0/internal/service/reservation"
)

const (
	projectName = "padel-bot"
)

func main() {
	// コマンドライン引数のパース
	availabilityFile := flag.String("availability", "", "ENV=LOCALで読み込むavailability_cache.jsonのパス")
	shutdownTimeout := flag.Duration("shutdown-timeout", 30*time.Second, "停止時に処理中のリクエストを待つ時間")
	flag.Parse()

	// 常駐プロセスはStep Functionsから起動されないためタスクトークンはない
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v\nStack trace:\n%s", err, debug.Stack())
	}

	// X-Ray設定
	if cfg.EnableTracing {
		if err := xray.Configure(xray.Config{
			DaemonAddr:     "127.0.0.1:2000", // X-Rayデーモンのアドレス
			ServiceVersion: "1.0.0",
		}); err != nil {
			log.Printf("Failed to configure X-Ray: %v", err)
			if configErr := xray.Configure(xray.Config{}); configErr != nil {
				log.Fatalf("Failed to configure default X-Ray settings: %v", configErr)
			}
		}
	}
	// リクエスト外のセグメントがない処理でもパニックさせない
	os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Failed to load timezone: %v", err)
	}
	now := func() time.Time { return time.Now().In(loc) }
	courts := model.NewCourtCatalog(cfg.Courts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 依存の初期化 (ENV=LOCALの場合はすべてプロセス内実装)
	infra, err := newInfra(ctx, cfg, loc, now, *availabilityFile)
	if err != nil {
		log.Fatalf("Failed to initialize infrastructure: %v\nStack trace:\n%s", err, debug.Stack())
	}
	defer infra.Close()

	var nlu intent.Extractor
	if cfg.OpenAI.APIKey != "" {
		nlu = intent.NewOpenAIExtractor(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Timeout, courts, loc)
	} else {
		log.Println("OPENAI_API_KEY is not set. Using keyword extraction only")
	}

	notifier := messaging.NewNotifier(infra.sender, loc)
	lifecycle := reservation.NewLifecycle(infra.ledger, infra.calendar, loc, cfg.Calendar.Timeout)
	worker := reservation.NewWorker(lifecycle, infra.ledger.Users, notifier, now)

	engine := conversation.NewEngine(conversation.Deps{
		Ledger:       infra.ledger,
		Resolver:     intent.NewResolver(nlu, courts, now),
		Availability: infra.availability,
		Bookings:     infra.bookings,
		Sender:       infra.sender,
		Courts:       courts,
		Location:     loc,
		CountryCode:  cfg.DefaultCountryCode,
		TurnTimeout:  cfg.TurnTimeout,
		Now:          now,
	})

	scheduler := batch.NewScheduler(
		batch.NewReminderBatchService(infra.ledger.Reservations, notifier, cfg.Reminder24hEnabled, cfg.Reminder3hEnabled, now),
		batch.NewNoShowBatchService(infra.ledger.Reservations, notifier, cfg.NoShowTolerance(), cfg.MaxStrikes, now),
		cfg.ReminderInterval, cfg.NoShowInterval, cfg.BatchTimeout,
	)

	// メッセージ処理はWebhookの応答とは独立したcontextで行う
	dispatcher := handler.NewDispatcher(engine, cfg.SenderQueueSize)
	dispatcher.Start(context.Background())

	webhook := handler.NewWebhook(dispatcher, infra.deduper, handler.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitBurst), handler.WebhookConfig{
		AuthToken:   validationToken(cfg),
		PublicURL:   cfg.Twilio.WebhookURL,
		CountryCode: cfg.DefaultCountryCode,
	})
	router := handler.NewRouter(webhook, handler.NewAdmin(lifecycle, cfg.AdminToken))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           xray.Handler(xray.NewFixedSegmentNamer(projectName), router),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	errChan := make(chan error, 3)
	go func() {
		if err := infra.bookings.Run(ctx, worker.Handle); err != nil {
			errChan <- err
		}
	}()
	go scheduler.Start(ctx)
	go func() {
		log.Printf("Server listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// シグナルハンドリング
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-errChan:
		log.Printf("Bot stopped unexpectedly: %v", err)
		exitCode = 1
	}

	// Webhookの受付を止めてから、受け付け済みのメッセージを処理し終える
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server: %v", err)
	}
	dispatcher.Stop()
	cancel()

	log.Println("Bot stopped")
	if exitCode != 0 {
		infra.Close()
		os.Exit(exitCode)
	}
}

// validationToken は署名検証に使うトークンを返します。検証が無効な場合は空文字です
func validationToken(cfg *config.Config) string {
	if !cfg.Twilio.ValidateSignature {
		return ""
	}
	return cfg.Twilio.AuthToken
}
