package api

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/finsurehub/finsurehub/internal/config"
	"github.com/finsurehub/finsurehub/internal/logx"
	"github.com/finsurehub/finsurehub/internal/processor"
)

var errBadUpload = errors.New("bad upload")

// Uploader 把上传的图片落到 uploads 目录；宽度超过 MaxWidth 的缩放后转成 JPEG
type Uploader struct {
	dir string
	cfg config.UploadSettings
	now func() time.Time
}

func NewUploader(dir string, cfg config.UploadSettings) (*Uploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 20
	}
	if cfg.MaxFileMB <= 0 {
		cfg.MaxFileMB = 10
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = 1200
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 80
	}
	return &Uploader{dir: dir, cfg: cfg, now: time.Now}, nil
}

func (u *Uploader) Dir() string { return u.dir }

func (u *Uploader) maxBytes() int64 { return int64(u.cfg.MaxFileMB) << 20 }

// formatExt 只认解码器报告的格式，客户端文件名的扩展名不可信
var formatExt = map[string]string{
	"png":  ".png",
	"jpeg": ".jpg",
	"gif":  ".gif",
	"webp": ".webp",
}

// preparedImage 是已校验、待落盘的图片
type preparedImage struct {
	original string
	data     []byte
	ext      string
}

// SaveAll 先校验并解码全部文件再统一写盘，返回保存后的文件名；任何一步失败都不留下文件
func (u *Uploader) SaveAll(files []*multipart.FileHeader) ([]string, error) {
	prepared := make([]preparedImage, 0, len(files))
	for _, fh := range files {
		img, err := u.prepare(fh)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, img)
	}

	names := make([]string, 0, len(prepared))
	for _, img := range prepared {
		name, err := u.write(img)
		if err != nil {
			u.remove(names)
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (u *Uploader) remove(names []string) {
	for _, name := range names {
		if err := os.Remove(filepath.Join(u.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Warnf("upload: remove %s: %v", name, err)
		}
	}
}

func (u *Uploader) prepare(fh *multipart.FileHeader) (preparedImage, error) {
	if fh.Size > u.maxBytes() {
		return preparedImage{}, fmt.Errorf("%w: %s is larger than %dMB", errBadUpload, fh.Filename, u.cfg.MaxFileMB)
	}
	src, err := fh.Open()
	if err != nil {
		return preparedImage{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer src.Close()

	raw, err := io.ReadAll(io.LimitReader(src, u.maxBytes()+1))
	if err != nil {
		return preparedImage{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	if int64(len(raw)) > u.maxBytes() {
		return preparedImage{}, fmt.Errorf("%w: %s is larger than %dMB", errBadUpload, fh.Filename, u.cfg.MaxFileMB)
	}

	data, ext, err := u.process(raw)
	if err != nil {
		return preparedImage{}, fmt.Errorf("%w: %s: %v", errBadUpload, fh.Filename, err)
	}
	return preparedImage{original: fh.Filename, data: data, ext: ext}, nil
}

func (u *Uploader) write(img preparedImage) (string, error) {
	name := u.uniqueName(img.original, img.ext)
	if err := os.WriteFile(filepath.Join(u.dir, name), img.data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return name, nil
}

// process 返回要写入的字节和扩展名；宽度超限的缩放后统一转成 JPEG
func (u *Uploader) process(raw []byte) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	ext, ok := formatExt[format]
	if !ok {
		return nil, "", fmt.Errorf("unsupported image format %q", format)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= u.cfg.MaxWidth {
		return raw, ext, nil
	}

	newH := h * u.cfg.MaxWidth / w
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, u.cfg.MaxWidth, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: u.cfg.JPEGQuality}); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), ".jpg", nil
}

// uniqueName 毫秒时间戳 + slug 化的原文件名，冲突时追加序号
func (u *Uploader) uniqueName(original, ext string) string {
	base := processor.Slugify(strings.TrimSuffix(original, filepath.Ext(original)))
	stem := fmt.Sprintf("%d-%s", u.now().UnixMilli(), base)
	candidate := stem + ext
	for i := 2; ; i++ {
		if _, err := os.Stat(filepath.Join(u.dir, candidate)); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
}

func (s *Server) upload(c *gin.Context) {
	if s.uploads == nil {
		fail(c, http.StatusServiceUnavailable, "unavailable", "uploads are not configured")
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, "bad_request", "expected multipart form")
		return
	}
	files := form.File["images"]
	if len(files) == 0 {
		fail(c, http.StatusBadRequest, "bad_request", "No files uploaded")
		return
	}
	if len(files) > s.uploads.cfg.MaxFiles {
		fail(c, http.StatusBadRequest, "bad_request", fmt.Sprintf("at most %d files per upload", s.uploads.cfg.MaxFiles))
		return
	}

	names, err := s.uploads.SaveAll(files)
	if err != nil {
		if errors.Is(err, errBadUpload) {
			fail(c, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		logx.Errorf("upload: %v", err)
		fail(c, http.StatusInternalServerError, "internal_error", "Upload failed")
		return
	}

	base := baseURL(c)
	urls := make([]string, 0, len(names))
	for _, name := range names {
		urls = append(urls, base+"/uploads/"+name)
	}
	logx.Infof("uploaded %d image(s)", len(urls))
	c.JSON(http.StatusOK, gin.H{"urls": urls})
}

func baseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if p := c.GetHeader("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + c.Request.Host
}
