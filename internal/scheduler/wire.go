package scheduler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finsurehub/finsurehub/internal/collector"
	"github.com/finsurehub/finsurehub/internal/config"
	"github.com/finsurehub/finsurehub/internal/fetch"
	"github.com/finsurehub/finsurehub/internal/processor"
	"github.com/finsurehub/finsurehub/internal/storage"
)

// NewFromConfig 按配置组装采集链路；withCron 为 false 时只能手动 RunOnce
func NewFromConfig(cfg *config.Config, store storage.Store, rdb *redis.Client, withCron bool) (*Scheduler, error) {
	in := cfg.Settings.Ingest
	cl, err := fetch.New(fetch.Options{
		ProxyHTTP:  cfg.ProxyHTTP,
		ProxyHTTPS: cfg.ProxyHTTPS,
		Timeout:    in.FeedTimeout(),
		Retry:      in.Retry,
	})
	if err != nil {
		return nil, fmt.Errorf("init fetch client: %w", err)
	}

	var finder processor.PageImageFinder
	if in.OpenGraphImages {
		finder = collector.NewOGImageFinder(cl.HTTPClient(), cl.UserAgent(), in.FeedTimeout())
	}

	opts := Options{
		LookbackDays:    in.LookbackDays,
		Concurrency:     in.Concurrency,
		FeedTimeout:     in.FeedTimeout(),
		MinContentChars: in.MinContentChars,
	}
	if withCron {
		opts.Spec = in.CronSpec
		opts.RunOnStart = in.RunOnStart
	}
	if cfg.BrowserScraperURL != "" {
		opts.Extractor = collector.NewScraperClient(cfg.BrowserScraperURL, 4000, &http.Client{Timeout: 30 * time.Second})
	}

	return New(opts,
		collector.NewRSSFetchers(in.Feeds, cl),
		processor.NewAssemblerFromSettings(in, finder),
		store,
		NewRedisLocker(rdb),
	)
}
