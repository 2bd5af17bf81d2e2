package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/finsurehub/finsurehub/internal/logx"
	"github.com/finsurehub/finsurehub/internal/posts"
	"github.com/finsurehub/finsurehub/internal/scheduler"
	"github.com/finsurehub/finsurehub/internal/storage"
)

// Ingester 手动触发一轮采集，scheduler.Scheduler 实现了它
type Ingester interface {
	RunOnce(ctx context.Context) (scheduler.Report, error)
}

type Server struct {
	svc      *posts.Service
	ingester Ingester
	uploads  *Uploader
}

func NewServer(svc *posts.Service, ingester Ingester, uploads *Uploader) *Server {
	return &Server{svc: svc, ingester: ingester, uploads: uploads}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		api.GET("/health", s.health)

		api.GET("/posts", s.listPosts)
		api.POST("/posts", s.createPost)
		api.GET("/posts/:id", s.getPost)
		api.PUT("/posts/:id", s.updatePost)
		api.DELETE("/posts/:id", s.deletePost)
		api.GET("/published", s.listPublished)
		api.POST("/publish/:id", s.publishPost)
		api.POST("/update-drafts", s.updateDrafts)
		api.POST("/upload", s.upload)

		// 与 serverless 版本一致的 /articles 路由，直接返回文档本身
		articles := api.Group("/articles")
		articles.GET("", s.listArticles)
		articles.POST("", s.createArticle)
		articles.GET("/published", s.listPublishedArticles)
		articles.GET("/stats", s.articleStats)
		articles.GET("/:id", s.getArticle)
		articles.PUT("/:id", s.updateArticle)
		articles.DELETE("/:id", s.deleteArticle)
	}

	if s.uploads != nil {
		r.Static("/uploads", s.uploads.Dir())
	}
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := s.svc.Ping(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":    "Error",
			"database":  "Connection failed",
			"error":     err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"database":  "Connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "FinsureHub API",
	})
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":    code,
		"message": msg,
	})
}

// failErr 按错误类型映射 HTTP 状态码
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidID):
		fail(c, http.StatusBadRequest, "invalid_id", "invalid post id")
	case errors.Is(err, storage.ErrNotFound):
		fail(c, http.StatusNotFound, "not_found", "post not found")
	case errors.Is(err, posts.ErrValidation):
		fail(c, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, posts.ErrInvalidTransition):
		fail(c, http.StatusBadRequest, "invalid_transition", err.Error())
	case errors.Is(err, scheduler.ErrBusy):
		fail(c, http.StatusConflict, "busy", err.Error())
	default:
		logx.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// BasicAuth 为整个站点增加一个简单的访问密码，/health 不做认证便于健康检查
func BasicAuth(user, pass string) gin.HandlerFunc {
	const realm = "Restricted"
	uBytes := []byte(user)
	pBytes := []byte(pass)

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), uBytes) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pBytes) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
