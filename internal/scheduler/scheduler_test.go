package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/finsurehub/finsurehub/internal/collector"
	"github.com/finsurehub/finsurehub/internal/config"
	"github.com/finsurehub/finsurehub/internal/processor"
	"github.com/finsurehub/finsurehub/internal/storage"
)

type staticFetcher struct {
	items []collector.FeedItem
	err   error
}

func (f staticFetcher) Name() string { return "static" }

func (f staticFetcher) Fetch(context.Context) ([]collector.FeedItem, error) {
	return f.items, f.err
}

type busyLocker struct{}

func (busyLocker) Lock(context.Context) (func(), error) { return nil, ErrBusy }

func newTestScheduler(t *testing.T, fetchers []collector.Fetcher, locker Locker) (*Scheduler, storage.Store) {
	t.Helper()
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "posts.json"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	in := config.IngestSettings{}
	a := processor.NewAssembler(processor.NewClassifier(in), processor.FixedAuthor("Sarah Lawson"), processor.NewPlaceholderImages(nil), 150)
	s, err := New(Options{Spec: "0 */6 * * *", LookbackDays: 7, Concurrency: 2}, fetchers, a, store, locker)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, store
}

func TestRunOnceLookbackWindow(t *testing.T) {
	now := time.Now()
	old := staticFetcher{items: []collector.FeedItem{{Title: "Old market news", URL: "https://e/old", Date: now.AddDate(0, 0, -10)}}}
	s, store := newTestScheduler(t, []collector.Fetcher{old}, nil)

	rep, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Fetched != 1 || rep.Recent != 0 || rep.Added != 0 {
		t.Fatalf("unexpected report for stale item: %+v", rep)
	}

	fresh := staticFetcher{items: []collector.FeedItem{{Title: "Fresh policy update", URL: "https://e/new", Date: now.AddDate(0, 0, -2), Content: "body"}}}
	s.fetchers = []collector.Fetcher{fresh}
	rep, err = s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Added != 1 {
		t.Fatalf("expected one draft, got %+v", rep)
	}
	posts, _ := store.List(context.Background(), storage.Filter{})
	if len(posts) != 1 || posts[0].Status != storage.StatusDraft || posts[0].Category != "Insurance" {
		t.Fatalf("unexpected posts: %+v", posts)
	}
}

func TestRunOnceIsIdempotent(t *testing.T) {
	now := time.Now()
	f := staticFetcher{items: []collector.FeedItem{
		{Title: "Bank earnings beat", URL: "https://e/1", Date: now},
		{Title: "Claims surge after storm", URL: "https://e/2", Date: now.Add(-time.Hour)},
	}}
	broken := staticFetcher{err: errors.New("feed down")}
	s, store := newTestScheduler(t, []collector.Fetcher{f, broken}, nil)

	first, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Added != 2 || first.FailedFeeds != 1 {
		t.Fatalf("first report: %+v", first)
	}
	second, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Added != 0 || second.Skipped != 2 {
		t.Fatalf("second run should add nothing: %+v", second)
	}
	posts, _ := store.List(context.Background(), storage.Filter{})
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
}

func TestRunOnceBusyLock(t *testing.T) {
	s, _ := newTestScheduler(t, nil, busyLocker{})
	if _, err := s.RunOnce(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestNewRejectsBadSpec(t *testing.T) {
	if _, err := New(Options{Spec: "not a cron"}, nil, nil, nil, nil); err == nil {
		t.Fatalf("expected error for bad cron spec")
	}
}

func TestNewRedisLockerNil(t *testing.T) {
	if NewRedisLocker(nil) != nil {
		t.Fatalf("nil client should yield nil locker")
	}
}

type fullTextExtractor struct{}

func (fullTextExtractor) Extract(_ context.Context, u string) (string, error) {
	return "Full article body fetched from " + u + ". It talks about premium changes and coverage rules.", nil
}

func TestRunOnceEnrichesShortContent(t *testing.T) {
	f := staticFetcher{items: []collector.FeedItem{{Title: "Rates move", URL: "https://e/rates", Date: time.Now(), Content: "Short."}}}
	s, store := newTestScheduler(t, []collector.Fetcher{f}, nil)
	s.opts.Extractor = fullTextExtractor{}

	rep, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Enriched != 1 || rep.Added != 1 {
		t.Fatalf("report: %+v", rep)
	}
	posts, _ := store.List(context.Background(), storage.Filter{})
	if len(posts) != 1 || !strings.Contains(posts[0].Content, "Full article body") {
		t.Fatalf("content not enriched: %+v", posts)
	}
}
