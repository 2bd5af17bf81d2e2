package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/finsurehub/finsurehub/internal/collector"
	"github.com/finsurehub/finsurehub/internal/logx"
	"github.com/finsurehub/finsurehub/internal/processor"
	"github.com/finsurehub/finsurehub/internal/storage"
)

// Report 一轮采集的统计
type Report struct {
	Fetched     int       `json:"fetched"`
	FailedFeeds int       `json:"failedFeeds"`
	Recent      int       `json:"recent"`
	Enriched    int       `json:"enriched"`
	Added       int       `json:"added"`
	Skipped     int       `json:"skipped"`
	StartedAt   time.Time `json:"startedAt"`
	Duration    string    `json:"duration"`
}

type Options struct {
	Spec         string
	LookbackDays int
	Concurrency  int
	FeedTimeout  time.Duration
	RunOnStart   bool

	// Extractor 非空时，摘要过短的条目改抓原文正文
	Extractor       collector.Extractor
	MinContentChars int
}

type Scheduler struct {
	cron      *cron.Cron
	fetchers  []collector.Fetcher
	assembler *processor.Assembler
	store     storage.Store
	locker    Locker
	opts      Options
	now       func() time.Time

	// 定时任务与手动触发共用同一把锁，串行执行
	mu sync.Mutex
}

// New locker 可为空；多实例部署时传入 RedisLocker
func New(opts Options, fetchers []collector.Fetcher, a *processor.Assembler, store storage.Store, locker Locker) (*Scheduler, error) {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 7
	}
	if opts.MinContentChars <= 0 {
		opts.MinContentChars = 200
	}
	s := &Scheduler{
		cron:      cron.New(),
		fetchers:  fetchers,
		assembler: a,
		store:     store,
		locker:    locker,
		opts:      opts,
		now:       time.Now,
	}
	if opts.Spec != "" {
		if _, err := s.cron.AddFunc(opts.Spec, s.runScheduled); err != nil {
			return nil, fmt.Errorf("bad cron spec %q: %w", opts.Spec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	if s.opts.RunOnStart {
		// 延迟执行首轮采集，避免和启动阶段的请求争抢资源
		const startupDelay = 15 * time.Second
		time.AfterFunc(startupDelay, s.runScheduled)
	}
}

// Stop 停止调度，返回的 ctx 在正在执行的任务结束后关闭
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runScheduled() {
	rep, err := s.RunOnce(context.Background())
	if err != nil {
		logx.Errorf("scheduled ingestion failed: %v", err)
		return
	}
	logx.Infof("scheduled ingestion done: fetched=%d recent=%d added=%d skipped=%d", rep.Fetched, rep.Recent, rep.Added, rep.Skipped)
}

// RunOnce 执行一轮：抓取 → 过滤近期 → 去重组装 → 批量写入。
// 另一个实例持有 Redis 锁时返回 ErrBusy。
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx)
		if err != nil {
			return Report{}, err
		}
		defer unlock()
	}

	rep := Report{StartedAt: s.now()}
	logx.Infof("start ingestion job, feeds=%d", len(s.fetchers))

	items, failed := collector.FetchAll(ctx, s.fetchers, s.opts.Concurrency, s.opts.FeedTimeout)
	rep.Fetched, rep.FailedFeeds = len(items), failed

	recent := collector.FilterRecent(items, s.opts.LookbackDays, rep.StartedAt)
	rep.Recent = len(recent)

	if s.opts.Extractor != nil && len(recent) > 0 {
		rep.Enriched = collector.EnrichShort(ctx, recent, s.opts.Extractor, s.opts.MinContentChars, s.opts.Concurrency)
	}

	// 去重必须读源数据，缓存里的旧列表会导致重复插入
	existing, err := storage.Uncached(s.store).List(ctx, storage.Filter{})
	if err != nil {
		return rep, fmt.Errorf("load existing posts: %w", err)
	}

	drafts, skipped := s.assembler.Build(ctx, recent, existing)
	rep.Skipped = skipped
	if len(drafts) > 0 {
		if err := s.store.InsertMany(ctx, drafts); err != nil {
			return rep, fmt.Errorf("save drafts: %w", err)
		}
	}
	rep.Added = len(drafts)
	rep.Duration = s.now().Sub(rep.StartedAt).Round(time.Millisecond).String()

	logx.Infof("ingestion job done: fetched=%d failedFeeds=%d recent=%d added=%d skipped=%d",
		rep.Fetched, rep.FailedFeeds, rep.Recent, rep.Added, rep.Skipped)
	return rep, nil
}

var ErrBusy = errors.New("ingestion already running")
