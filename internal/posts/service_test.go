package posts

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/finsurehub/finsurehub/internal/storage"
)

func newTestService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "posts.json"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return NewService(store, Options{}), store
}

func strPtr(s string) *string { return &s }

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Create(ctx, CreateRequest{Title: "x"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing content should fail validation, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateRequest{Content: "x"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing title should fail validation, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateRequest{Title: "x", Content: "y", Status: "archived"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown status should fail validation, got %v", err)
	}
}

func TestCreateDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	p, err := svc.Create(context.Background(), CreateRequest{Title: "Hello World", Content: "body", Images: []string{"a.jpg", "b.jpg"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Status != storage.StatusDraft || p.Slug != "hello-world" || p.Category != "General" {
		t.Fatalf("unexpected defaults: %+v", p)
	}
	if p.Image != "a.jpg" {
		t.Fatalf("cover should fall back to images[0], got %q", p.Image)
	}
}

func TestCreatePublishedAlias(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	yes := true
	first, err := svc.Create(ctx, CreateRequest{Title: "Same", Content: "a", Published: &yes})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := svc.Create(ctx, CreateRequest{Title: "Same", Content: "b", Status: "published"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !first.Published() || first.Slug != "same" || second.Slug != "same-1" {
		t.Fatalf("slugs = %q, %q", first.Slug, second.Slug)
	}
}

func TestPublishDisambiguatesSlug(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Create(ctx, CreateRequest{Title: "My New Plan", Content: "a", Status: "published"}); err != nil {
		t.Fatalf("create published: %v", err)
	}
	draft, err := svc.Create(ctx, CreateRequest{Title: "My New Plan", Content: "b", Excerpt: strings.Repeat("e", 200)})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if draft.Slug != "my-new-plan" {
		t.Fatalf("draft keeps base slug, got %q", draft.Slug)
	}

	p, err := svc.Publish(ctx, draft.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if p.Slug != "my-new-plan-1" || !p.Published() {
		t.Fatalf("publish result: %+v", p)
	}
	if len(p.MetaDescription) != 160 {
		t.Fatalf("meta description should be backfilled from excerpt, got %d chars", len(p.MetaDescription))
	}

	// 再次发布不应与自身冲突
	again, err := svc.Publish(ctx, draft.ID)
	if err != nil {
		t.Fatalf("republish: %v", err)
	}
	if again.Slug != "my-new-plan-1" {
		t.Fatalf("republish slug = %q", again.Slug)
	}
}

func TestPublishMissing(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Publish(context.Background(), storage.NewID()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Publish(context.Background(), "bad id"); !errors.Is(err, storage.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestUpdateRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Create(ctx, CreateRequest{Title: "Taken Title", Content: "x", Status: "published"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	p, err := svc.Create(ctx, CreateRequest{Title: "Original", Content: "x", Status: "published"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// 已发布文章改标题，slug 按其它已发布 slug 重新生成
	p, err = svc.Update(ctx, p.ID, UpdateRequest{Title: strPtr("Taken Title"), Category: strPtr("Finance")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Slug != "taken-title-1" || p.Category != "Finance" {
		t.Fatalf("retitle result: %+v", p)
	}

	// 不改标题 slug 不变
	p, err = svc.Update(ctx, p.ID, UpdateRequest{Content: strPtr("new body")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Slug != "taken-title-1" || p.Content != "new body" {
		t.Fatalf("content update: %+v", p)
	}

	if _, err := svc.Update(ctx, p.ID, UpdateRequest{Status: strPtr("draft")}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	no := false
	if _, err := svc.Update(ctx, p.ID, UpdateRequest{Published: &no}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("published=false should also be rejected, got %v", err)
	}
	if _, err := svc.Update(ctx, p.ID, UpdateRequest{Title: strPtr("  ")}); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank title should fail, got %v", err)
	}
}

func TestUpdateDraftToPublished(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Create(ctx, CreateRequest{Title: "Plan", Content: "x", Status: "published"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	d, _ := svc.Create(ctx, CreateRequest{Title: "Plan", Content: "x", Excerpt: "short"})
	p, err := svc.Update(ctx, d.ID, UpdateRequest{Status: strPtr("published")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !p.Published() || p.Slug != "plan-1" || p.MetaDescription != "short" {
		t.Fatalf("draft publish via update: %+v", p)
	}
}

func TestDeleteAndStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	st, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalArticles != 0 || len(st.Categories) != 3 {
		t.Fatalf("empty stats: %+v", st)
	}

	a, _ := svc.Create(ctx, CreateRequest{Title: "A", Content: "x", Category: "Finance", Status: "published"})
	_, _ = svc.Create(ctx, CreateRequest{Title: "B", Content: "x", Category: "Insurance"})
	_, _ = svc.Create(ctx, CreateRequest{Title: "C", Content: "x", Category: "Finance"})

	st, _ = svc.Stats(ctx)
	if st.TotalArticles != 3 || st.PublishedArticles != 1 || st.Drafts != 2 {
		t.Fatalf("stats: %+v", st)
	}
	if strings.Join(st.Categories, ",") != "Finance,Insurance" {
		t.Fatalf("categories: %v", st.Categories)
	}

	if err := svc.Delete(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, a.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	pub, _ := svc.List(ctx, storage.Filter{Status: storage.StatusPublished})
	if len(pub) != 0 {
		t.Fatalf("published list should be empty, got %d", len(pub))
	}
	if _, err := svc.List(ctx, storage.Filter{Status: "weird"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown status filter should fail, got %v", err)
	}
}
