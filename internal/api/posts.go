package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/finsurehub/finsurehub/internal/posts"
	"github.com/finsurehub/finsurehub/internal/storage"
)

func filterFromQuery(c *gin.Context) storage.Filter {
	return storage.Filter{
		Status:   storage.Status(c.Query("status")),
		Category: c.Query("category"),
	}
}

func (s *Server) listPosts(c *gin.Context) {
	list, err := s.svc.List(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) listPublished(c *gin.Context) {
	f := filterFromQuery(c)
	f.Status = storage.StatusPublished
	list, err := s.svc.List(c.Request.Context(), f)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) getPost(c *gin.Context) {
	p, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

func (s *Server) createPost(c *gin.Context) {
	p, err := s.create(c)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}

func (s *Server) create(c *gin.Context) (storage.Post, error) {
	var req posts.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return storage.Post{}, fmt.Errorf("%w: %v", posts.ErrValidation, err)
	}
	return s.svc.Create(c.Request.Context(), req)
}

func (s *Server) updatePost(c *gin.Context) {
	p, err := s.update(c)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// update 只接受白名单字段，出现其它字段直接 400
func (s *Server) update(c *gin.Context) (storage.Post, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return storage.Post{}, fmt.Errorf("%w: read body: %v", posts.ErrValidation, err)
	}
	var req posts.UpdateRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return storage.Post{}, fmt.Errorf("%w: %v", posts.ErrValidation, err)
	}
	return s.svc.Update(c.Request.Context(), c.Param("id"), req)
}

func (s *Server) deletePost(c *gin.Context) {
	if err := s.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": 1})
}

func (s *Server) publishPost(c *gin.Context) {
	p, err := s.svc.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

func (s *Server) updateDrafts(c *gin.Context) {
	if s.ingester == nil {
		fail(c, http.StatusServiceUnavailable, "unavailable", "ingestion is not configured")
		return
	}
	rep, err := s.ingester.RunOnce(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}
