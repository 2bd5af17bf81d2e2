package processor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"

	"github.com/finsurehub/finsurehub/internal/collector"
	"github.com/finsurehub/finsurehub/internal/config"
	"github.com/finsurehub/finsurehub/internal/logx"
)

type AuthorPicker interface {
	Pick(item collector.FeedItem) string
}

// ImagePolicy 返回两张图：第一张做封面
type ImagePolicy interface {
	Images(ctx context.Context, item collector.FeedItem) ([]string, error)
}

// PageImageFinder 从原文页面找配图，collector.OGImageFinder 实现了它
type PageImageFinder interface {
	Find(ctx context.Context, pageURL string) (string, error)
}

// RandomAuthor 从作者名单里随机挑一个
type RandomAuthor struct {
	roster []string
	mu     sync.Mutex
	rnd    *rand.Rand
}

func NewRandomAuthor(roster []string) *RandomAuthor {
	if len(roster) == 0 {
		roster = config.DefaultAuthors
	}
	return &RandomAuthor{roster: roster, rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

func (r *RandomAuthor) Pick(collector.FeedItem) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roster[r.rnd.IntN(len(r.roster))]
}

// FixedAuthor 固定作者
type FixedAuthor string

func (f FixedAuthor) Pick(collector.FeedItem) string { return string(f) }

// PlaceholderImages 用标题填充图片地址模板（模板中的 %s）
type PlaceholderImages struct {
	templates []string
}

func NewPlaceholderImages(templates []string) *PlaceholderImages {
	if len(templates) == 0 {
		templates = config.DefaultImageTemplates
	}
	return &PlaceholderImages{templates: templates}
}

func (p *PlaceholderImages) Images(_ context.Context, item collector.FeedItem) ([]string, error) {
	// 与 encodeURIComponent 一致，空格编码为 %20
	kw := strings.ReplaceAll(url.QueryEscape(item.Title), "+", "%20")
	out := make([]string, 2)
	for i := range out {
		tmpl := p.templates[min(i, len(p.templates)-1)]
		if strings.Contains(tmpl, "%s") {
			out[i] = fmt.Sprintf(tmpl, kw)
		} else {
			out[i] = tmpl
		}
	}
	return out, nil
}

// OpenGraphImages 封面优先用原文页面的 og:image，取不到回退到 Fallback
type OpenGraphImages struct {
	Finder   PageImageFinder
	Fallback ImagePolicy
}

func (o *OpenGraphImages) Images(ctx context.Context, item collector.FeedItem) ([]string, error) {
	imgs, err := o.Fallback.Images(ctx, item)
	if err != nil {
		return nil, err
	}
	cover, err := o.Finder.Find(ctx, item.URL)
	if err != nil {
		logx.Debugf("og:image for %s: %v, use placeholder", item.URL, err)
		return imgs, nil
	}
	imgs[0] = cover
	return imgs, nil
}
