package processor

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/finsurehub/finsurehub/internal/collector"
	"github.com/finsurehub/finsurehub/internal/config"
	"github.com/finsurehub/finsurehub/internal/logx"
	"github.com/finsurehub/finsurehub/internal/storage"
)

const wordsPerMinute = 200

// Assembler 把订阅条目组装成草稿文章，除作者/配图策略外不产生副作用
type Assembler struct {
	classifier *Classifier
	authors    AuthorPicker
	images     ImagePolicy
	excerptLen int
}

func NewAssembler(c *Classifier, authors AuthorPicker, images ImagePolicy, excerptLen int) *Assembler {
	if excerptLen <= 0 {
		excerptLen = 150
	}
	return &Assembler{classifier: c, authors: authors, images: images, excerptLen: excerptLen}
}

// NewAssemblerFromSettings 默认策略：随机作者 + 占位图，开启 open_graph_images 时优先原文配图
func NewAssemblerFromSettings(in config.IngestSettings, finder PageImageFinder) *Assembler {
	var images ImagePolicy = NewPlaceholderImages(in.ImageURLTemplates)
	if in.OpenGraphImages && finder != nil {
		images = &OpenGraphImages{Finder: finder, Fallback: images}
	}
	return NewAssembler(NewClassifier(in), NewRandomAuthor(in.Authors), images, in.ExcerptLength)
}

func (a *Assembler) Assemble(ctx context.Context, item collector.FeedItem, slug string) (storage.Post, error) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return storage.Post{}, fmt.Errorf("item %s has no title", item.URL)
	}
	imgs, err := a.images.Images(ctx, item)
	if err != nil {
		return storage.Post{}, fmt.Errorf("images for %q: %w", title, err)
	}
	if len(imgs) < 2 {
		return storage.Post{}, fmt.Errorf("images for %q: need 2, got %d", title, len(imgs))
	}

	return storage.Post{
		Slug:            slug,
		Title:           title,
		URL:             item.URL,
		Date:            item.Date,
		Category:        a.classifier.Classify(title, item.Content),
		Author:          a.authors.Pick(item),
		ReadTime:        ReadTime(item.Content),
		Excerpt:         Excerpt(item.Content, a.excerptLen),
		MetaDescription: TruncateRunes(item.Content, a.excerptLen),
		Image:           imgs[0],
		Images:          imgs[:2],
		Status:          storage.StatusDraft,
		Content:         RenderBody(title, item.Content, imgs[0], imgs[1]),
	}, nil
}

// Build 去重并组装一批草稿；单条组装失败只记日志
func (a *Assembler) Build(ctx context.Context, items []collector.FeedItem, existing []storage.Post) (drafts []storage.Post, skipped int) {
	d := NewDedup(existing)
	for _, it := range items {
		slug, ok := d.Check(it.Title, it.URL)
		if !ok {
			skipped++
			continue
		}
		p, err := a.Assemble(ctx, it, slug)
		if err != nil {
			logx.Warnf("assemble %q failed: %v", it.Title, err)
			skipped++
			continue
		}
		d.Accept(slug, it.URL)
		drafts = append(drafts, p)
		logx.Infof("draft prepared: %s [%s]", p.Title, p.Category)
	}
	return drafts, skipped
}

// TruncateRunes 按 rune 截断，不加省略号
func TruncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

// Excerpt 超过 limit 时截断并追加 "..."
func Excerpt(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return TruncateRunes(s, limit) + "..."
}

// ReadTime 按每分钟 200 词估算，至少 1 分钟
func ReadTime(text string) string {
	words := len(strings.Fields(text))
	mins := (words + wordsPerMinute - 1) / wordsPerMinute
	if mins < 1 {
		mins = 1
	}
	return fmt.Sprintf("%d min", mins)
}

// RenderBody 首尾各一张图，中间按空行切段落，文本全部转义
func RenderBody(title, text, img1, img2 string) string {
	var b strings.Builder
	t := html.EscapeString(title)
	fmt.Fprintf(&b, "<img src=\"%s\" alt=\"%s Image 1\">\n", html.EscapeString(img1), t)
	for _, para := range splitParagraphs(text) {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(para))
		b.WriteString("</p>")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "<img src=\"%s\" alt=\"%s Image 2\">", html.EscapeString(img2), t)
	return b.String()
}

func splitParagraphs(text string) []string {
	parts := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = append(out, "")
	}
	return out
}
