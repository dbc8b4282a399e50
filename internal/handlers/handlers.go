package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/tripshare/backend/internal/apperr"
	"github.com/emilythestrangee/tripshare/backend/internal/config"
	"github.com/emilythestrangee/tripshare/backend/internal/feed"
	"github.com/emilythestrangee/tripshare/backend/internal/graph"
	"github.com/emilythestrangee/tripshare/backend/internal/interaction"
	"github.com/emilythestrangee/tripshare/backend/internal/models"
	"github.com/emilythestrangee/tripshare/backend/internal/publish"
	"github.com/emilythestrangee/tripshare/backend/internal/search"
)

// Services are the domain components the handlers delegate to.
type Services struct {
	Feed      *feed.Feed
	Engine    *interaction.Engine
	Graph     *graph.Graph
	Search    *search.Index
	Publisher *publish.Publisher
}

// Handler combines all handler types
type Handler struct {
	Post    *PostHandler
	Comment *CommentHandler
	User    *UserHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(s Services) *Handler {
	return &Handler{
		Post:    NewPostHandler(s.Feed, s.Engine, s.Search, s.Publisher),
		Comment: NewCommentHandler(s.Engine),
		User:    NewUserHandler(s.Graph, s.Feed, s.Search),
	}
}

// respondError writes err as {"error": message}. Storage and internal
// failures are logged and reported with a generic message.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := kind.Status()
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"kind":   kind.String(),
		}).Error("request failed")
	}
	c.JSON(status, gin.H{"error": apperr.Public(err)})
}

// pageFrom reads ?page= and ?limit= (or ?pageSize=). Out of range values are
// clamped rather than rejected.
func pageFrom(c *gin.Context) models.Page {
	size := c.Query("limit")
	if size == "" {
		size = c.Query("pageSize")
	}
	return models.NewPage(config.IntFromString(c.Query("page"), 1), config.IntFromString(size, models.DefaultPageSize))
}

// paginationJSON renders p with its total under totalKey.
func paginationJSON(p models.Pagination, totalKey string) gin.H {
	return gin.H{
		"currentPage": p.CurrentPage,
		"totalPages":  p.TotalPages,
		totalKey:      p.Total,
		"hasNext":     p.HasNext,
		"hasPrev":     p.HasPrev,
	}
}
