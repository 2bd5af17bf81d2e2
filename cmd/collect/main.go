package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"github.com/finsurehub/finsurehub/internal/config"
	"github.com/finsurehub/finsurehub/internal/logx"
	"github.com/finsurehub/finsurehub/internal/scheduler"
	"github.com/finsurehub/finsurehub/internal/storage"
)

// 只执行一轮采集后退出，适合手动触发或交给外部 cron
func main() {
	timeout := flag.Duration("timeout", 10*time.Minute, "overall run timeout")
	flag.Parse()

	cfg := config.Load()
	logx.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rdb := storage.NewRedisClient(cfg.RedisAddr)
	store, err := storage.Open(ctx, cfg, rdb)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}
	defer store.Close()

	s, err := scheduler.NewFromConfig(cfg, store, rdb, false)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}

	rep, err := s.RunOnce(ctx)
	if errors.Is(err, scheduler.ErrBusy) {
		logx.Warnf("another instance is ingesting, skip")
		return
	}
	if err != nil {
		log.Fatalf("ingestion failed: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rep)
}
