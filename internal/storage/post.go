package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finsurehub/finsurehub/internal/logx"
)

var (
	ErrNotFound  = errors.New("post not found")
	ErrInvalidID = errors.New("invalid post id")
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// Post 是唯一的业务实体；文件、SQL、Mongo 三种存储共用这一份结构
type Post struct {
	ID              string    `json:"id"`
	Slug            string    `json:"slug"`
	Title           string    `json:"title"`
	Category        string    `json:"category"`
	Author          string    `json:"author"`
	Content         string    `json:"content"`
	Excerpt         string    `json:"excerpt"`
	Image           string    `json:"image"`
	Images          []string  `json:"images"`
	MetaDescription string    `json:"metaDescription"`
	ReadTime        string    `json:"readTime"`
	Status          Status    `json:"status"`
	URL             string    `json:"url,omitempty"` // 自动采集的原文链接，用于去重
	Date            time.Time `json:"date"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (p Post) Published() bool {
	return p.Status == StatusPublished
}

// MarshalJSON 额外输出只读的 published 字段，兼容按 published 布尔值读取的前端
func (p Post) MarshalJSON() ([]byte, error) {
	type alias Post
	return json.Marshal(struct {
		alias
		Published bool `json:"published"`
	}{alias(p), p.Published()})
}

// UnmarshalJSON 兼容旧版 posts.json：数字 id（Date.now()）、RSS 原始 pubDate 字符串、
// 以及只有 published 布尔值没有 status 的记录
func (p *Post) UnmarshalJSON(b []byte) error {
	type alias Post
	aux := struct {
		*alias
		ID        json.RawMessage `json:"id"`
		Date      json.RawMessage `json:"date"`
		Published *bool           `json:"published"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.ID = rawToString(aux.ID)
	p.Date = parseLooseTime(rawToString(aux.Date))
	if p.Date.IsZero() {
		p.Date = p.CreatedAt
	}
	if p.Status == "" {
		p.Status = StatusDraft
		if aux.Published != nil && *aux.Published {
			p.Status = StatusPublished
		}
	}
	return nil
}

func rawToString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		var out string
		if err := json.Unmarshal(raw, &out); err == nil {
			return out
		}
	}
	return s
}

// looseTimeLayouts 覆盖 RSS pubDate 的常见写法：单位数日期、数字时区、无冒号偏移
var looseTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999Z0700",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04 -0700",
	"Mon, 2 Jan 2006 15:04 MST",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseLooseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range looseTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	logx.Warnf("unrecognized post date %q", s)
	return time.Time{}
}

// Filter 为空字段表示不过滤
type Filter struct {
	Status   Status
	Category string
}

func (f Filter) match(p Post) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
		return false
	}
	return true
}

// Store 抽象 Post 的持久化。List 一律按 date 倒序返回。
// Create/InsertMany 会就地补齐 ID 与时间戳。
type Store interface {
	List(ctx context.Context, f Filter) ([]Post, error)
	Get(ctx context.Context, id string) (Post, error)
	Create(ctx context.Context, p *Post) error
	Update(ctx context.Context, p Post) error
	Delete(ctx context.Context, id string) error
	InsertMany(ctx context.Context, posts []Post) error
	Ping(ctx context.Context) error
	Close() error
}

// NewID 生成基于时间的 UUIDv7
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// validID 接受 UUID 以及旧数据里的纯数字 id
func validID(id string) bool {
	if id == "" {
		return false
	}
	if _, err := uuid.Parse(id); err == nil {
		return true
	}
	_, err := strconv.ParseUint(id, 10, 64)
	return err == nil
}

func prepareNew(p *Post, now time.Time) {
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.Status == "" {
		p.Status = StatusDraft
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	if p.Date.IsZero() {
		p.Date = p.CreatedAt
	}
}

// SortByDateDesc 按 date 倒序，date 相同时新创建的在前
func SortByDateDesc(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].Date.Equal(posts[j].Date) {
			return posts[i].Date.After(posts[j].Date)
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}
