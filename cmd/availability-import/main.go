package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/saulcastac/PIA-2.0/internal/availability"
	"github.com/saulcastac/PIA-2.0/internal/common/config"
)

func main() {
	file := flag.String("file", "availability_cache.json", "スクレイパーが出力したファイル")
	timeout := flag.Duration("timeout", 30*time.Second, "インポートのタイムアウト時間")
	flag.Parse()

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Failed to load timezone: %v", err)
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *file, err)
	}
	defer f.Close()

	client := availability.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer client.Close()
	store := availability.NewRedisSource(client, cfg.AvailabilityMaxAge)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	n, err := availability.Import(ctx, store, f, loc)
	if err != nil {
		log.Fatalf("Failed to import availability (%d days saved): %v", n, err)
	}
	log.Printf("Imported availability for %d days from %s", n, *file)
}
