package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// 时间以定长 UTC 文本存储，字典序即时间序
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore 基于 modernc.org/sqlite（纯 Go 实现）
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS posts (
            id TEXT PRIMARY KEY,
            slug TEXT NOT NULL DEFAULT '',
            title TEXT NOT NULL DEFAULT '',
            category TEXT NOT NULL DEFAULT '',
            author TEXT NOT NULL DEFAULT '',
            content TEXT NOT NULL DEFAULT '',
            excerpt TEXT NOT NULL DEFAULT '',
            image TEXT NOT NULL DEFAULT '',
            images TEXT NOT NULL DEFAULT '[]',
            meta_description TEXT NOT NULL DEFAULT '',
            read_time TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'draft',
            url TEXT NOT NULL DEFAULT '',
            post_date TEXT NOT NULL,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_posts_status ON posts(status);`,
		`CREATE INDEX IF NOT EXISTS idx_posts_slug ON posts(slug);`,
		`CREATE INDEX IF NOT EXISTS idx_posts_url ON posts(url);`,
		`CREATE INDEX IF NOT EXISTS idx_posts_post_date ON posts(post_date);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const sqliteColumns = `id, slug, title, category, author, content, excerpt, image, images,
    meta_description, read_time, status, url, post_date, created_at, updated_at`

func fmtSQLiteTime(t time.Time) string { return t.UTC().Format(sqliteTimeLayout) }

func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePost(r rowScanner) (Post, error) {
	var (
		p                         Post
		images, status            string
		date, created, updatedStr string
	)
	if err := r.Scan(&p.ID, &p.Slug, &p.Title, &p.Category, &p.Author, &p.Content, &p.Excerpt,
		&p.Image, &images, &p.MetaDescription, &p.ReadTime, &status, &p.URL,
		&date, &created, &updatedStr); err != nil {
		return Post{}, err
	}
	if images != "" {
		if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
			return Post{}, fmt.Errorf("decode images of %s: %w", p.ID, err)
		}
	}
	p.Status = Status(status)
	p.Date = parseSQLiteTime(date)
	p.CreatedAt = parseSQLiteTime(created)
	p.UpdatedAt = parseSQLiteTime(updatedStr)
	return p, nil
}

func sqliteArgs(p Post) ([]any, error) {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("encode images: %w", err)
	}
	return []any{p.ID, p.Slug, p.Title, p.Category, p.Author, p.Content, p.Excerpt, p.Image, string(b),
		p.MetaDescription, p.ReadTime, string(p.Status), p.URL,
		fmtSQLiteTime(p.Date), fmtSQLiteTime(p.CreatedAt), fmtSQLiteTime(p.UpdatedAt)}, nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Post, error) {
	q := `SELECT ` + sqliteColumns + ` FROM posts`
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		where = append(where, "LOWER(category) = LOWER(?)")
		args = append(args, f.Category)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY post_date DESC, created_at DESC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()
	out := []Post{}
	for rows.Next() {
		p, err := scanSQLitePost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan posts: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Post, error) {
	if !validID(id) {
		return Post{}, ErrInvalidID
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM posts WHERE id = ?`, id)
	p, err := scanSQLitePost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("get post %s: %w", id, err)
	}
	return p, nil
}

const sqliteInsert = `INSERT INTO posts(` + sqliteColumns + `) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

func (s *SQLiteStore) Create(ctx context.Context, p *Post) error {
	prepareNew(p, time.Now())
	args, err := sqliteArgs(*p)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteInsert, args...); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, p Post) error {
	if !validID(p.ID) {
		return ErrInvalidID
	}
	args, err := sqliteArgs(p)
	if err != nil {
		return err
	}
	// 去掉 id 与 created_at，id 放到 WHERE
	upd := append(args[1:14:14], args[15], p.ID)
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET slug=?, title=?, category=?, author=?, content=?,
        excerpt=?, image=?, images=?, meta_description=?, read_time=?, status=?, url=?, post_date=?,
        updated_at=? WHERE id = ?`, upd...)
	if err != nil {
		return fmt.Errorf("update post %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrInvalidID
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertMany 在单个事务内写入，任一失败整体回滚
func (s *SQLiteStore) InsertMany(ctx context.Context, batch []Post) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteInsert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i := range batch {
		prepareNew(&batch[i], now)
		args, err := sqliteArgs(batch[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert post %q: %w", batch[i].Slug, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
