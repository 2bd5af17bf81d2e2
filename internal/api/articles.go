package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/finsurehub/finsurehub/internal/storage"
)

// /api/articles 系列：成功时直接返回文档或数组，不包 code/data

func (s *Server) listArticles(c *gin.Context) {
	list, err := s.svc.List(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) listPublishedArticles(c *gin.Context) {
	list, err := s.svc.List(c.Request.Context(), storage.Filter{Status: storage.StatusPublished})
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) getArticle(c *gin.Context) {
	p, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) createArticle(c *gin.Context) {
	p, err := s.create(c)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) updateArticle(c *gin.Context) {
	p, err := s.update(c)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) deleteArticle(c *gin.Context) {
	if err := s.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Article deleted successfully"})
}

func (s *Server) articleStats(c *gin.Context) {
	st, err := s.svc.Stats(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
