package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore 把全部文章保存在一个 JSON 数组文件里，每次写入都整体重写。
// 写入先落临时文件再 rename，失败时旧文件保持不变。
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Path() string { return s.path }

// load 文件不存在视为空集合
func (s *FileStore) load() ([]Post, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(b) == 0 {
		return nil, nil
	}
	var posts []Post
	if err := json.Unmarshal(b, &posts); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return posts, nil
}

func (s *FileStore) save(posts []Post) error {
	if posts == nil {
		posts = []Post{}
	}
	b, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode posts: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".posts-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) List(_ context.Context, f Filter) ([]Post, error) {
	s.mu.Lock()
	posts, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if f.match(p) {
			out = append(out, p)
		}
	}
	SortByDateDesc(out)
	return out, nil
}

func (s *FileStore) Get(_ context.Context, id string) (Post, error) {
	if !validID(id) {
		return Post{}, ErrInvalidID
	}
	s.mu.Lock()
	posts, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return Post{}, err
	}
	for _, p := range posts {
		if p.ID == id {
			return p, nil
		}
	}
	return Post{}, ErrNotFound
}

func (s *FileStore) Create(_ context.Context, p *Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts, err := s.load()
	if err != nil {
		return err
	}
	prepareNew(p, time.Now())
	return s.save(append(posts, *p))
}

func (s *FileStore) Update(_ context.Context, p Post) error {
	if !validID(p.ID) {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	posts, err := s.load()
	if err != nil {
		return err
	}
	for i := range posts {
		if posts[i].ID == p.ID {
			posts[i] = p
			return s.save(posts)
		}
	}
	return ErrNotFound
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	posts, err := s.load()
	if err != nil {
		return err
	}
	kept := posts[:0]
	for _, p := range posts {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(posts) {
		return ErrNotFound
	}
	return s.save(kept)
}

// InsertMany 读出全量、追加、整体替换写回
func (s *FileStore) InsertMany(_ context.Context, batch []Post) error {
	if len(batch) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	posts, err := s.load()
	if err != nil {
		return err
	}
	now := time.Now()
	for i := range batch {
		prepareNew(&batch[i], now)
	}
	return s.save(append(posts, batch...))
}

func (s *FileStore) Ping(_ context.Context) error {
	_, err := os.Stat(filepath.Dir(s.path))
	return err
}

func (s *FileStore) Close() error { return nil }
