package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/finsurehub/finsurehub/internal/fetch"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>Test</title>
  <item>
    <title>  Markets rally on bank earnings </title>
    <link>https://example.com/a</link>
    <pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate>
    <description><![CDATA[<p>First <b>para</b>.</p><p>Second para.</p>]]></description>
  </item>
  <item>
    <title>Plain text</title>
    <link>https://example.com/b</link>
    <description>just text</description>
  </item>
  <item>
    <title></title>
    <link>https://example.com/c</link>
  </item>
</channel>
</rss>`

func newTestClient(t *testing.T) *fetch.Client {
	t.Helper()
	cl, err := fetch.New(fetch.Options{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("fetch client: %v", err)
	}
	return cl
}

func TestRSSFetcherParsesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testRSS)
	}))
	defer srv.Close()

	f := NewRSSFetcher(srv.URL, newTestClient(t))
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return fixed }

	items, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 titled items, got %d: %+v", len(items), items)
	}
	a := items[0]
	if a.Title != "Markets rally on bank earnings" || a.URL != "https://example.com/a" {
		t.Fatalf("unexpected first item: %+v", a)
	}
	if a.Date.Year() != 2006 {
		t.Fatalf("pubDate not parsed: %v", a.Date)
	}
	if a.Content != "First para.\n\nSecond para." {
		t.Fatalf("content = %q", a.Content)
	}
	if !items[1].Date.Equal(fixed) {
		t.Fatalf("missing date should fall back to fetch time, got %v", items[1].Date)
	}
	if items[1].Feed != srv.URL {
		t.Fatalf("feed = %q", items[1].Feed)
	}
}

func TestRSSFetcherBadFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not a feed</html>")
	}))
	defer srv.Close()

	if _, err := NewRSSFetcher(srv.URL, newTestClient(t)).Fetch(context.Background()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestHTMLToText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain  text\n\nsecond", "plain text\n\nsecond"},
		{"<p>a</p>\n<p>b <i>c</i></p>", "a\n\nb c"},
		{"line<br>break", "line break"},
		{"<div><script>x()</script>kept</div>", "kept"},
		{"<ul><li>one</li><li>two</li></ul>", "one\n\ntwo"},
		{"", ""},
		{"<p>   </p>", ""},
		{"&amp; entity <p>after</p>", "& entity\n\nafter"},
	}
	for _, tc := range cases {
		if got := HTMLToText(tc.in); got != tc.want {
			t.Fatalf("HTMLToText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

type stubFetcher struct {
	name  string
	items []FeedItem
	err   error
	delay time.Duration
}

func (s stubFetcher) Name() string { return s.name }

func (s stubFetcher) Fetch(ctx context.Context) ([]FeedItem, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.items, s.err
}

func TestFetchAllKeepsOrderAndIsolatesFailures(t *testing.T) {
	fetchers := []Fetcher{
		stubFetcher{name: "slow", items: []FeedItem{{Title: "1"}}, delay: 50 * time.Millisecond},
		stubFetcher{name: "broken", err: errors.New("boom")},
		stubFetcher{name: "fast", items: []FeedItem{{Title: "2"}, {Title: "3"}}},
		stubFetcher{name: "hang", delay: time.Minute},
	}
	items, failed := FetchAll(context.Background(), fetchers, 4, 200*time.Millisecond)
	if failed != 2 {
		t.Fatalf("failed = %d, want 2", failed)
	}
	var titles []string
	for _, it := range items {
		titles = append(titles, it.Title)
	}
	if strings.Join(titles, ",") != "1,2,3" {
		t.Fatalf("order = %v", titles)
	}
}

// blockingFetcher 不理会 ctx，直到 release 关闭才返回
type blockingFetcher struct {
	calls   *atomic.Int32
	release chan struct{}
}

func (b blockingFetcher) Name() string { return "blocking" }

func (b blockingFetcher) Fetch(context.Context) ([]FeedItem, error) {
	b.calls.Add(1)
	<-b.release
	return []FeedItem{{Title: "late"}}, nil
}

func TestFetchAllStopsSchedulingOnCancel(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	f := blockingFetcher{calls: &calls, release: release}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() {
		_, failed := FetchAll(ctx, []Fetcher{f, f, f}, 1, 0)
		done <- failed
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case failed := <-done:
		if failed != 2 {
			t.Fatalf("failed = %d, want 2", failed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("FetchAll did not return after cancel")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("fetch calls = %d, want 1", n)
	}
}

func TestFilterRecent(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	items := []FeedItem{
		{Title: "old", Date: now.AddDate(0, 0, -10)},
		{Title: "recent", Date: now.AddDate(0, 0, -2)},
		{Title: "edge", Date: now.AddDate(0, 0, -7)},
	}
	got := FilterRecent(items, 7, now)
	if len(got) != 2 || got[0].Title != "recent" || got[1].Title != "edge" {
		t.Fatalf("unexpected filter result: %+v", got)
	}
}

func TestOGImageFinder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/with":
			fmt.Fprint(w, `<html><head><meta property="og:image" content="/img/cover.jpg"></head><body></body></html>`)
		default:
			fmt.Fprint(w, `<html><head><title>none</title></head></html>`)
		}
	}))
	defer srv.Close()

	f := NewOGImageFinder(nil, "test", 2*time.Second)
	got, err := f.Find(context.Background(), srv.URL+"/with")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got != srv.URL+"/img/cover.jpg" {
		t.Fatalf("image = %q", got)
	}
	// 同一地址允许重复抓取
	if _, err := f.Find(context.Background(), srv.URL+"/with"); err != nil {
		t.Fatalf("revisit: %v", err)
	}
	if _, err := f.Find(context.Background(), srv.URL+"/without"); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}
