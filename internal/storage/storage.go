package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormPost 是 posts 表的行结构；date 是保留字，列名用 post_date
type gormPost struct {
	ID              string                      `gorm:"primaryKey;size:40"`
	Slug            string                      `gorm:"size:255;index"`
	Title           string                      `gorm:"size:512"`
	Category        string                      `gorm:"size:64;index"`
	Author          string                      `gorm:"size:128"`
	Content         string                      `gorm:"type:text"`
	Excerpt         string                      `gorm:"type:text"`
	Image           string                      `gorm:"size:1024"`
	Images          datatypes.JSONSlice[string] `gorm:"column:images"`
	MetaDescription string                      `gorm:"size:600"`
	ReadTime        string                      `gorm:"size:32"`
	Status          string                      `gorm:"size:16;index"`
	URL             string                      `gorm:"size:1024;index"`
	PostDate        time.Time                   `gorm:"column:post_date;index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (gormPost) TableName() string { return "posts" }

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误（部分 RSS 源含混编）
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// truncateRunesDB 按 rune 数截断，保证不超过 varchar 长度
func truncateRunesDB(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

func toGormPost(p Post) gormPost {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return gormPost{
		ID:              p.ID,
		Slug:            p.Slug,
		Title:           truncateRunesDB(toValidUTF8(p.Title), 512),
		Category:        truncateRunesDB(p.Category, 64),
		Author:          truncateRunesDB(toValidUTF8(p.Author), 128),
		Content:         toValidUTF8(p.Content),
		Excerpt:         toValidUTF8(p.Excerpt),
		Image:           p.Image,
		Images:          datatypes.JSONSlice[string](images),
		MetaDescription: truncateRunesDB(toValidUTF8(p.MetaDescription), 600),
		ReadTime:        p.ReadTime,
		Status:          string(p.Status),
		URL:             p.URL,
		PostDate:        p.Date,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func (g gormPost) toPost() Post {
	return Post{
		ID:              g.ID,
		Slug:            g.Slug,
		Title:           g.Title,
		Category:        g.Category,
		Author:          g.Author,
		Content:         g.Content,
		Excerpt:         g.Excerpt,
		Image:           g.Image,
		Images:          []string(g.Images),
		MetaDescription: g.MetaDescription,
		ReadTime:        g.ReadTime,
		Status:          Status(g.Status),
		URL:             g.URL,
		Date:            g.PostDate,
		CreatedAt:       g.CreatedAt,
		UpdatedAt:       g.UpdatedAt,
	}
}

// GormStore 用 GORM 对接 PostgreSQL / MySQL
type GormStore struct {
	DB *gorm.DB
}

func OpenPostgres(dsn string) (*GormStore, error) {
	return NewGormStore(postgres.Open(dsn))
}

func OpenMySQL(dsn string) (*GormStore, error) {
	return NewGormStore(mysql.Open(dsn))
}

func NewGormStore(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&gormPost{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{DB: db}, nil
}

func (s *GormStore) List(ctx context.Context, f Filter) ([]Post, error) {
	db := s.DB.WithContext(ctx).Model(&gormPost{})
	if f.Status != "" {
		db = db.Where("status = ?", string(f.Status))
	}
	if f.Category != "" {
		db = db.Where("LOWER(category) = LOWER(?)", f.Category)
	}
	var rows []gormPost
	if err := db.Order("post_date DESC").Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	out := make([]Post, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toPost())
	}
	return out, nil
}

func (s *GormStore) Get(ctx context.Context, id string) (Post, error) {
	if !validID(id) {
		return Post{}, ErrInvalidID
	}
	var row gormPost
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("get post %s: %w", id, err)
	}
	return row.toPost(), nil
}

func (s *GormStore) Create(ctx context.Context, p *Post) error {
	prepareNew(p, time.Now())
	row := toGormPost(*p)
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (s *GormStore) Update(ctx context.Context, p Post) error {
	if !validID(p.ID) {
		return ErrInvalidID
	}
	row := toGormPost(p)
	res := s.DB.WithContext(ctx).Model(&gormPost{ID: p.ID}).
		Select("*").Omit("id", "created_at").
		Updates(&row)
	if res.Error != nil {
		return fmt.Errorf("update post %s: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrInvalidID
	}
	res := s.DB.WithContext(ctx).Where("id = ?", id).Delete(&gormPost{})
	if res.Error != nil {
		return fmt.Errorf("delete post %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertMany 批量写入，CreateInBatches 在一个事务里完成
func (s *GormStore) InsertMany(ctx context.Context, batch []Post) error {
	if len(batch) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]gormPost, 0, len(batch))
	for i := range batch {
		prepareNew(&batch[i], now)
		rows = append(rows, toGormPost(batch[i]))
	}
	if err := s.DB.WithContext(ctx).CreateInBatches(rows, 100).Error; err != nil {
		return fmt.Errorf("insert posts: %w", err)
	}
	return nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
