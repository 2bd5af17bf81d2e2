package collector

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

var ErrNoImage = errors.New("no og:image found")

// OGImageFinder 抓取原文页面，取 og:image / twitter:image 作为配图
type OGImageFinder struct {
	base *colly.Collector
}

func NewOGImageFinder(hc *http.Client, userAgent string, timeout time.Duration) *OGImageFinder {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.MaxBodySize(2<<20),
		colly.AllowURLRevisit(),
	)
	// 复用外部 client 时超时以它为准，SetRequestTimeout 会改写共享的 client
	if hc != nil {
		c.SetClient(hc)
	} else if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}
	return &OGImageFinder{base: c}
}

func (f *OGImageFinder) Find(ctx context.Context, pageURL string) (string, error) {
	if pageURL == "" {
		return "", ErrNoImage
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := f.base.Clone()
	var found string
	c.OnHTML(`meta[property="og:image"], meta[name="og:image"], meta[name="twitter:image"]`, func(e *colly.HTMLElement) {
		if found != "" {
			return
		}
		content := strings.TrimSpace(e.Attr("content"))
		if content == "" {
			return
		}
		found = e.Request.AbsoluteURL(content)
	})
	// 请求还没发出时 ctx 已取消则放弃
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	if err := c.Visit(pageURL); err != nil {
		return "", err
	}
	if found == "" {
		return "", ErrNoImage
	}
	if u, err := url.Parse(found); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", ErrNoImage
	}
	return found, nil
}
