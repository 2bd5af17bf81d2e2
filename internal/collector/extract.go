package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/finsurehub/finsurehub/internal/logx"
)

// Extractor 抓取原文正文
type Extractor interface {
	Extract(ctx context.Context, pageURL string) (string, error)
}

// ExtractRequest / ExtractResponse 是 browser-scraper 的 /extract 接口
type ExtractRequest struct {
	URL      string `json:"url"`
	MaxChars int    `json:"maxChars"`
}

type ExtractResponse struct {
	OK    bool   `json:"ok"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// ScraperClient 调用 cmd/browser-scraper 服务
type ScraperClient struct {
	endpoint string
	maxChars int
	hc       *http.Client
}

func NewScraperClient(baseURL string, maxChars int, hc *http.Client) *ScraperClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &ScraperClient{
		endpoint: strings.TrimRight(baseURL, "/") + "/extract",
		maxChars: maxChars,
		hc:       hc,
	}
}

func (c *ScraperClient) Extract(ctx context.Context, pageURL string) (string, error) {
	body, err := json.Marshal(ExtractRequest{URL: pageURL, MaxChars: c.maxChars})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("call scraper: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scraper status %d", resp.StatusCode)
	}
	var out ExtractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode scraper response: %w", err)
	}
	if !out.OK {
		return "", fmt.Errorf("scraper: %s", out.Error)
	}
	return out.Text, nil
}

// EnrichShort 正文少于 minChars 个字符的条目改用原文正文；失败保留摘要
func EnrichShort(ctx context.Context, items []FeedItem, ex Extractor, minChars, concurrency int) (enriched int) {
	sem := make(chan struct{}, max(1, concurrency))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
loop:
	for i := range items {
		if items[i].URL == "" || utf8.RuneCountInString(items[i].Content) >= minChars {
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break loop
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			text, err := ex.Extract(ctx, items[i].URL)
			if err != nil {
				logx.Debugf("extract %s: %v", items[i].URL, err)
				return
			}
			if utf8.RuneCountInString(text) <= utf8.RuneCountInString(items[i].Content) {
				return
			}
			items[i].Content = text
			mu.Lock()
			enriched++
			mu.Unlock()
		}()
	}
	wg.Wait()
	return enriched
}
