package collector

import (
	"context"
	"sync"
	"time"

	"github.com/finsurehub/finsurehub/internal/logx"
)

// FeedItem 订阅条目归一化后的结构
type FeedItem struct {
	Feed  string
	Title string
	URL   string
	Date  time.Time
	// 纯文本摘要，段落之间以空行分隔
	Content string
}

// Fetcher 抽象每一个数据源
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]FeedItem, error)
}

// FetchAll 并发抓取所有数据源，单个源失败只记日志；返回结果按 fetchers 顺序拼接
func FetchAll(ctx context.Context, fetchers []Fetcher, concurrency int, timeout time.Duration) (items []FeedItem, failed int) {
	results := make([][]FeedItem, len(fetchers))
	errs := make([]error, len(fetchers))

	sem := make(chan struct{}, max(1, concurrency))
	var wg sync.WaitGroup
loop:
	for i, f := range fetchers {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			// 取消后剩下的源都记为失败
			for j := i; j < len(fetchers); j++ {
				errs[j] = ctx.Err()
			}
			break loop
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			fctx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			got, err := f.Fetch(fctx)
			if err != nil {
				errs[i] = err
				logx.Warnf("fetch %s error: %v", f.Name(), err)
				return
			}
			logx.Debugf("fetch %s got %d items", f.Name(), len(got))
			results[i] = got
		}()
	}
	wg.Wait()

	for i := range fetchers {
		if errs[i] != nil {
			failed++
			continue
		}
		items = append(items, results[i]...)
	}
	return items, failed
}

// FilterRecent 只保留 date 不早于 now 往前 days 天的条目
func FilterRecent(items []FeedItem, days int, now time.Time) []FeedItem {
	cutoff := now.AddDate(0, 0, -days)
	out := make([]FeedItem, 0, len(items))
	for _, it := range items {
		if !it.Date.Before(cutoff) {
			out = append(out, it)
		}
	}
	return out
}
