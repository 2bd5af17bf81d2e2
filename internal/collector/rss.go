package collector

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/finsurehub/finsurehub/internal/fetch"
	"github.com/finsurehub/finsurehub/internal/logx"
)

// RSSFetcher 抓取单个 RSS/Atom/JSON Feed
type RSSFetcher struct {
	url    string
	client *fetch.Client
	now    func() time.Time
}

func NewRSSFetcher(url string, cl *fetch.Client) *RSSFetcher {
	return &RSSFetcher{url: url, client: cl, now: time.Now}
}

// NewRSSFetchers 按配置顺序为每个订阅地址创建 Fetcher
func NewRSSFetchers(urls []string, cl *fetch.Client) []Fetcher {
	out := make([]Fetcher, 0, len(urls))
	for _, u := range urls {
		out = append(out, NewRSSFetcher(u, cl))
	}
	return out
}

func (f *RSSFetcher) Name() string { return f.url }

func (f *RSSFetcher) Fetch(ctx context.Context) ([]FeedItem, error) {
	// gofeed 不直接接收自定义 http.Client，先用 fetch.Client 拿到 body 再解析
	resp, err := f.client.Get(ctx, f.url)
	if err != nil {
		return nil, fmt.Errorf("GET feed %s: %w", f.url, err)
	}
	defer resp.Body.Close()

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", f.url, err)
	}

	fetchedAt := f.now()
	items := make([]FeedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		title := strings.TrimSpace(it.Title)
		if title == "" {
			logx.Debugf("skip untitled item in %s: %s", f.url, it.Link)
			continue
		}
		body := it.Content
		if strings.TrimSpace(body) == "" {
			body = it.Description
		}
		items = append(items, FeedItem{
			Feed:    f.url,
			Title:   title,
			URL:     strings.TrimSpace(it.Link),
			Date:    pickTime(fetchedAt, it.PublishedParsed, it.UpdatedParsed),
			Content: HTMLToText(body),
		})
	}
	return items, nil
}

func pickTime(fallback time.Time, candidates ...*time.Time) time.Time {
	for _, t := range candidates {
		if t != nil && !t.IsZero() {
			return *t
		}
	}
	return fallback
}

var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "ul": true, "ol": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "table": true, "section": true, "article": true, "pre": true,
}

var paragraphBreak = regexp.MustCompile(`\n[ \t\r]*\n`)

// HTMLToText 去掉标签，块级元素之间保留空行作为段落分隔
func HTMLToText(s string) string {
	if !strings.Contains(s, "<") {
		return normalizeParagraphs(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return normalizeParagraphs(s)
	}
	var b strings.Builder
	writeText(&b, doc.Selection)
	return normalizeParagraphs(b.String())
}

func writeText(b *strings.Builder, sel *goquery.Selection) {
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		name := goquery.NodeName(c)
		switch {
		case name == "#text":
			b.WriteString(c.Text())
		case name == "br":
			b.WriteString("\n")
		case name == "script" || name == "style" || name == "#comment":
		case blockTags[name]:
			b.WriteString("\n\n")
			writeText(b, c)
			b.WriteString("\n\n")
		default:
			writeText(b, c)
		}
	})
}

// normalizeParagraphs 段内空白压成一个空格，去掉空段
func normalizeParagraphs(s string) string {
	parts := paragraphBreak.Split(strings.ReplaceAll(s, "\r\n", "\n"), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
