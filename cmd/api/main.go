package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/finsurehub/finsurehub/internal/api"
	"github.com/finsurehub/finsurehub/internal/config"
	"github.com/finsurehub/finsurehub/internal/logx"
	"github.com/finsurehub/finsurehub/internal/posts"
	"github.com/finsurehub/finsurehub/internal/scheduler"
	"github.com/finsurehub/finsurehub/internal/storage"
)

func main() {
	cfg := config.Load()
	logx.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := storage.NewRedisClient(cfg.RedisAddr)
	store, err := storage.Open(ctx, cfg, rdb)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}
	defer store.Close()

	in := cfg.Settings.Ingest
	svc := posts.NewService(store, posts.Options{
		DefaultCategory: in.DefaultCategory,
		MetaLength:      in.MetaDescriptionLength,
		ExcerptLength:   in.ExcerptLength,
	})

	s, err := scheduler.NewFromConfig(cfg, store, rdb, true)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}
	s.Start()

	uploads, err := api.NewUploader(cfg.UploadsDir, cfg.Settings.Upload)
	if err != nil {
		log.Fatalf("init uploads failed: %v", err)
	}

	r := gin.Default()
	// 配置了全局访问密码时启用 Basic Auth（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}
	api.NewServer(svc, s, uploads).RegisterRoutes(r)

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r}
	go func() {
		logx.Infof("starting api server at %s ...", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server exit: %v", err)
		}
	}()

	<-ctx.Done()
	logx.Infof("shutting down ...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Warnf("http shutdown: %v", err)
	}
	// 等待正在执行的采集结束
	select {
	case <-s.Stop().Done():
	case <-shutdownCtx.Done():
		logx.Warnf("ingestion still running at shutdown")
	}
}
