package posts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/finsurehub/finsurehub/internal/logx"
	"github.com/finsurehub/finsurehub/internal/processor"
	"github.com/finsurehub/finsurehub/internal/storage"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("published posts cannot go back to draft")
)

// 统计为空时返回的默认分类
var defaultCategories = []string{"finance", "insurance", "investing"}

// CreateRequest published 是 status 的别名，两者都给时以 status 为准
type CreateRequest struct {
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Excerpt         string   `json:"excerpt"`
	Category        string   `json:"category"`
	Author          string   `json:"author"`
	Image           string   `json:"image"`
	Images          []string `json:"images"`
	MetaDescription string   `json:"metaDescription"`
	ReadTime        string   `json:"readTime"`
	Status          string   `json:"status"`
	Published       *bool    `json:"published"`
}

// UpdateRequest 只允许修改这些字段，nil 表示不改
type UpdateRequest struct {
	Title           *string   `json:"title"`
	Content         *string   `json:"content"`
	MetaDescription *string   `json:"metaDescription"`
	Category        *string   `json:"category"`
	Image           *string   `json:"image"`
	Images          *[]string `json:"images"`
	Status          *string   `json:"status"`
	Excerpt         *string   `json:"excerpt"`
	ReadTime        *string   `json:"readTime"`
	Published       *bool     `json:"published"`
}

type Stats struct {
	TotalArticles     int      `json:"totalArticles"`
	PublishedArticles int      `json:"publishedArticles"`
	Drafts            int      `json:"drafts"`
	Categories        []string `json:"categories"`
}

type Options struct {
	DefaultCategory string
	MetaLength      int
	ExcerptLength   int
}

// Service 两套路由共用的文章业务规则；读改写操作串行执行
type Service struct {
	store storage.Store
	opts  Options
	mu    sync.Mutex
	now   func() time.Time
}

func NewService(store storage.Store, opts Options) *Service {
	if opts.MetaLength <= 0 {
		opts.MetaLength = 160
	}
	if opts.ExcerptLength <= 0 {
		opts.ExcerptLength = 150
	}
	if opts.DefaultCategory == "" {
		opts.DefaultCategory = "General"
	}
	return &Service{store: store, opts: opts, now: time.Now}
}

func (s *Service) List(ctx context.Context, f storage.Filter) ([]storage.Post, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
	}
	return s.store.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, id string) (storage.Post, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func parseStatus(status string, published *bool) (storage.Status, error) {
	if status != "" {
		st := storage.Status(strings.ToLower(strings.TrimSpace(status)))
		if !st.Valid() {
			return "", fmt.Errorf("%w: unknown status %q", ErrValidation, status)
		}
		return st, nil
	}
	if published != nil && *published {
		return storage.StatusPublished, nil
	}
	return storage.StatusDraft, nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (storage.Post, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || strings.TrimSpace(req.Content) == "" {
		return storage.Post{}, fmt.Errorf("%w: title and content are required", ErrValidation)
	}
	status, err := parseStatus(req.Status, req.Published)
	if err != nil {
		return storage.Post{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := storage.Post{
		Title:           title,
		Content:         req.Content,
		Excerpt:         req.Excerpt,
		Category:        req.Category,
		Author:          req.Author,
		Image:           req.Image,
		Images:          req.Images,
		MetaDescription: req.MetaDescription,
		ReadTime:        req.ReadTime,
		Status:          status,
		Slug:            processor.Slugify(title),
	}
	if p.Category == "" {
		p.Category = s.opts.DefaultCategory
	}
	syncCover(&p)
	if p.Published() {
		if err := s.applyPublish(ctx, &p); err != nil {
			return storage.Post{}, err
		}
	}
	if err := s.store.Create(ctx, &p); err != nil {
		return storage.Post{}, fmt.Errorf("create post: %w", err)
	}
	logx.Infof("post created: %s status=%s slug=%s", p.ID, p.Status, p.Slug)
	return p, nil
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (storage.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return storage.Post{}, err
	}
	wasPublished := p.Published()
	oldTitle := p.Title

	if req.Status != nil || req.Published != nil {
		st := p.Status
		if req.Status != nil {
			st, err = parseStatus(*req.Status, nil)
		} else if *req.Published {
			st = storage.StatusPublished
		} else {
			st = storage.StatusDraft
		}
		if err != nil {
			return storage.Post{}, err
		}
		if wasPublished && st == storage.StatusDraft {
			return storage.Post{}, ErrInvalidTransition
		}
		p.Status = st
	}
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		if t == "" {
			return storage.Post{}, fmt.Errorf("%w: title cannot be empty", ErrValidation)
		}
		p.Title = t
	}
	if req.Content != nil {
		p.Content = *req.Content
	}
	if req.MetaDescription != nil {
		p.MetaDescription = *req.MetaDescription
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.Excerpt != nil {
		p.Excerpt = *req.Excerpt
	}
	if req.ReadTime != nil {
		p.ReadTime = *req.ReadTime
	}
	if req.Images != nil {
		p.Images = *req.Images
		if req.Image == nil {
			p.Image = ""
		}
	}
	if req.Image != nil {
		p.Image = *req.Image
	}
	syncCover(&p)

	switch {
	case !wasPublished && p.Published():
		// 草稿在更新时直接发布
		if err := s.applyPublish(ctx, &p); err != nil {
			return storage.Post{}, err
		}
	case wasPublished && p.Title != oldTitle:
		if err := s.reslug(ctx, &p); err != nil {
			return storage.Post{}, err
		}
	}

	p.UpdatedAt = s.now()
	if err := s.store.Update(ctx, p); err != nil {
		return storage.Post{}, fmt.Errorf("update post %s: %w", id, err)
	}
	return p, nil
}

// Publish 置为已发布，重新生成 slug，必要时用 excerpt 回填 metaDescription。
// 对已发布的文章再次调用同样会按当前标题重新生成 slug。
func (s *Service) Publish(ctx context.Context, id string) (storage.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return storage.Post{}, err
	}
	p.Status = storage.StatusPublished
	if err := s.applyPublish(ctx, &p); err != nil {
		return storage.Post{}, err
	}
	p.UpdatedAt = s.now()
	if err := s.store.Update(ctx, p); err != nil {
		return storage.Post{}, fmt.Errorf("publish post %s: %w", id, err)
	}
	logx.Infof("post published: %s slug=%s", p.ID, p.Slug)
	return p, nil
}

func (s *Service) applyPublish(ctx context.Context, p *storage.Post) error {
	if err := s.reslug(ctx, p); err != nil {
		return err
	}
	if strings.TrimSpace(p.MetaDescription) == "" {
		p.MetaDescription = processor.TruncateRunes(p.Excerpt, s.opts.MetaLength)
	}
	return nil
}

// reslug 只与其它已发布文章的 slug 去重
func (s *Service) reslug(ctx context.Context, p *storage.Post) error {
	published, err := s.store.List(ctx, storage.Filter{Status: storage.StatusPublished})
	if err != nil {
		return fmt.Errorf("load published posts: %w", err)
	}
	p.Slug = processor.UniqueSlug(p.Title, processor.PublishedSlugs(published, p.ID))
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	logx.Infof("post deleted: %s", id)
	return nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	all, err := s.store.List(ctx, storage.Filter{})
	if err != nil {
		return Stats{}, err
	}
	st := Stats{TotalArticles: len(all)}
	seen := map[string]struct{}{}
	for _, p := range all {
		if p.Published() {
			st.PublishedArticles++
		}
		if p.Category != "" {
			if _, ok := seen[p.Category]; !ok {
				seen[p.Category] = struct{}{}
				st.Categories = append(st.Categories, p.Category)
			}
		}
	}
	st.Drafts = st.TotalArticles - st.PublishedArticles
	sort.Strings(st.Categories)
	if len(st.Categories) == 0 {
		st.Categories = append([]string(nil), defaultCategories...)
	}
	return st, nil
}

// syncCover 只给了 images 时封面取第一张
func syncCover(p *storage.Post) {
	if p.Image == "" && len(p.Images) > 0 {
		p.Image = p.Images[0]
	}
}
