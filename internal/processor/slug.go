package processor

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/finsurehub/finsurehub/internal/storage"
)

// Slugify 小写，只保留 [a-z0-9]，空白和连字符合并为单个 "-"，首尾不留 "-"。
// 结果为空时返回 "post"。
func Slugify(title string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(title) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if sep && b.Len() > 0 {
				b.WriteByte('-')
			}
			sep = false
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			sep = true
		}
	}
	if b.Len() == 0 {
		return "post"
	}
	return b.String()
}

// UniqueSlug base 未被占用则直接返回，否则取最小的 base-N（N>=1）
func UniqueSlug(title string, existing []string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		taken[s] = struct{}{}
	}
	return nextSlug(Slugify(title), taken)
}

func nextSlug(base string, taken map[string]struct{}) string {
	if _, ok := taken[base]; !ok {
		return base
	}
	for n := 1; ; n++ {
		cand := base + "-" + strconv.Itoa(n)
		if _, ok := taken[cand]; !ok {
			return cand
		}
	}
}

// PublishedSlugs 其它已发布文章的 slug，发布和改标题时的去重范围
func PublishedSlugs(posts []storage.Post, exceptID string) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		if p.ID != exceptID && p.Published() {
			out = append(out, p.Slug)
		}
	}
	return out
}

// Dedup 记录已有文章以及本批已接收条目的 slug 与 url
type Dedup struct {
	slugs map[string]struct{}
	urls  map[string]struct{}
}

func NewDedup(existing []storage.Post) *Dedup {
	d := &Dedup{
		slugs: make(map[string]struct{}, len(existing)),
		urls:  make(map[string]struct{}, len(existing)),
	}
	for _, p := range existing {
		d.Accept(p.Slug, p.URL)
	}
	return d
}

// Check slug 或 url 已存在时返回 false；否则返回可用的 slug（未登记，需要 Accept）
func (d *Dedup) Check(title, url string) (string, bool) {
	base := Slugify(title)
	if _, ok := d.slugs[base]; ok {
		return "", false
	}
	if url != "" {
		if _, ok := d.urls[url]; ok {
			return "", false
		}
	}
	return nextSlug(base, d.slugs), true
}

func (d *Dedup) Accept(slug, url string) {
	if slug != "" {
		d.slugs[slug] = struct{}{}
	}
	if url != "" {
		d.urls[url] = struct{}{}
	}
}
