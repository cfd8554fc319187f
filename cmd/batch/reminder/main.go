package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/saulcastac/PIA-2.0/internal/common/config"
	"github.com/saulcastac/PIA-2.0/internal/common/database"
	"github.com/saulcastac/PIA-2.0/internal/messaging"
	"github.com/saulcastac/PIA-2.0/internal/repository"
	"github.com/saulcastac/PIA-2.0/internal/service/batch"
)

const (
	projectName = "padel-batch"
)

func main() {
	// コマンドライン引数のパース
	job := flag.String("job", batch.JobReminders, "実行するジョブ (reminders|noshow)")
	timeout := flag.Duration("timeout", 5*time.Minute, "バッチ処理のタイムアウト時間")
	flag.Parse()

	// 最後の引数として渡されたタスクトークンを取得
	// ENV=LOCALの場合はタスクトークンを取得しない
	taskToken := "DUMMY_TASK_TOKEN"
	if os.Getenv("ENV") != "LOCAL" {
		if flag.NArg() == 0 {
			log.Fatalf("Task token is required")
		}
		taskToken = flag.Arg(flag.NArg() - 1)
		if taskToken == "" {
			log.Fatalf("Task token is required")
		}
	}

	// 設定の読み込み
	cfg, err := config.LoadConfig(taskToken)
	if err != nil {
		log.Fatalf("Failed to load config: %v\nStack trace:\n%s", err, debug.Stack())
	}
	cfg.BatchTimeout = *timeout

	// X-Ray設定
	if cfg.EnableTracing {
		if err := xray.Configure(xray.Config{
			DaemonAddr:     "127.0.0.1:2000", // X-Rayデーモンのアドレス
			ServiceVersion: "1.0.0",
		}); err != nil {
			log.Printf("Failed to configure X-Ray: %v", err)
			// X-Ray設定失敗時はデフォルトの設定を使用
			if configErr := xray.Configure(xray.Config{}); configErr != nil {
				log.Fatalf("Failed to configure default X-Ray settings: %v", configErr)
			}
		}
		os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
	}

	// Step Functionsクライアントの初期化
	var sfnClient *sfn.Client
	if !cfg.IsLocal() {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			log.Fatalf("Failed to load AWS config: %v\nStack trace:\n%s", err, debug.Stack())
		}
		sfnClient = sfn.NewFromConfig(awsCfg)
	}
	reporter := batch.NewTaskReporter(sfnClient, cfg.SFN.TaskToken, cfg.IsLocal())

	// 予約はDBにあるため、一回実行のバッチはENV=LOCALでもPostgreSQLを使う
	conn, err := database.NewDB(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v\nStack trace:\n%s", err, debug.Stack())
	}
	defer conn.Close()
	ledger := repository.NewPostgresLedger(repository.NewDBFromSQL(conn.DB.DB))

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Failed to load timezone: %v", err)
	}
	now := func() time.Time { return time.Now().In(loc) }

	var sender messaging.Sender
	if cfg.IsLocal() {
		sender = messaging.NewLogSender()
	} else {
		sender = messaging.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From)
	}
	notifier := messaging.NewNotifier(sender, loc)

	scheduler := batch.NewScheduler(
		batch.NewReminderBatchService(ledger.Reservations, notifier, cfg.Reminder24hEnabled, cfg.Reminder3hEnabled, now),
		batch.NewNoShowBatchService(ledger.Reservations, notifier, cfg.NoShowTolerance(), cfg.MaxStrikes, now),
		cfg.ReminderInterval, cfg.NoShowInterval, cfg.BatchTimeout,
	)

	// コンテキストを作成
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// X-Rayセグメントの作成
	if cfg.EnableTracing {
		var seg *xray.Segment
		ctx, seg = xray.BeginSegment(ctx, projectName)
		defer seg.Close(nil)

		// セグメントにメタデータを追加
		if err := seg.AddMetadata("job", *job); err != nil {
			log.Printf("Failed to add job metadata: %v", err)
		}
		if err := seg.AddMetadata("timeout", timeout.String()); err != nil {
			log.Printf("Failed to add timeout metadata: %v", err)
		}
	}

	// シグナルハンドリング
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// バッチ処理の実行
	type result struct {
		report batch.Report
		err    error
	}
	resultChan := make(chan result, 1)
	go func() {
		report, err := scheduler.RunJob(ctx, *job)
		resultChan <- result{report: report, err: err}
	}()

	// シグナルを待機
	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
		cancel()
	case res := <-resultChan:
		if res.err != nil {
			log.Printf("Batch process failed: %v", res.err)
			if err := reporter.ReportFailure(context.Background(), *job, res.err); err != nil {
				log.Printf("Failed to report task failure: %v", err)
			}
			conn.Close()
			os.Exit(1)
		}
		if err := reporter.ReportSuccess(ctx, res.report); err != nil {
			log.Printf("Failed to report task success: %v", err)
			conn.Close()
			os.Exit(1)
		}
		log.Printf("Batch process completed successfully: %+v", res.report)
	}
}
