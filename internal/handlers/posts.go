package handlers

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/tripshare/backend/internal/apperr"
	"github.com/emilythestrangee/tripshare/backend/internal/config"
	"github.com/emilythestrangee/tripshare/backend/internal/feed"
	"github.com/emilythestrangee/tripshare/backend/internal/interaction"
	"github.com/emilythestrangee/tripshare/backend/internal/middleware"
	"github.com/emilythestrangee/tripshare/backend/internal/models"
	"github.com/emilythestrangee/tripshare/backend/internal/publish"
	"github.com/emilythestrangee/tripshare/backend/internal/search"
)

type PostHandler struct {
	feed      *feed.Feed
	engine    *interaction.Engine
	search    *search.Index
	publisher *publish.Publisher
}

func NewPostHandler(f *feed.Feed, e *interaction.Engine, s *search.Index, p *publish.Publisher) *PostHandler {
	return &PostHandler{feed: f, engine: e, search: s, publisher: p}
}

// GetPosts returns the feed page visible to the caller
func (h *PostHandler) GetPosts(c *gin.Context) {
	page, err := h.feed.List(c.Request.Context(), middleware.UserID(c), pageFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"posts":      page.Posts,
		"pagination": paginationJSON(page.Pagination, "totalPosts"),
	})
}

// GetPost returns a single post by ID
func (h *PostHandler) GetPost(c *gin.Context) {
	post, err := h.feed.Get(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}

// CreatePost creates a new post (PROTECTED - requires authentication).
// It accepts a JSON draft, or a multipart form whose "media" parts are
// uploaded in order.
func (h *PostHandler) CreatePost(c *gin.Context) {
	var (
		draft models.PostDraft
		files []publish.File
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		d, opened, err := draftFromForm(c)
		defer closeAll(opened)
		if err != nil {
			respondError(c, err)
			return
		}
		draft = d
		for _, f := range opened {
			files = append(files, publish.File{Name: f.name, Body: f.file})
		}
	} else if err := c.ShouldBindJSON(&draft); err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ctx := c.Request.Context()
	post, err := h.publisher.Create(ctx, middleware.UserID(c), draft, files)
	if err != nil {
		respondError(c, err)
		return
	}

	one := []models.Post{*post}
	if err := h.feed.Hydrate(ctx, one); err != nil {
		log.WithError(err).WithField("post_id", post.ID).Warn("failed to attach author to new post")
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Post created successfully",
		"post":    one[0],
	})
}

// DeletePost retires a post (PROTECTED - requires ownership)
func (h *PostHandler) DeletePost(c *gin.Context) {
	if err := h.publisher.Delete(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted successfully"})
}

// LikePost toggles the caller's like (PROTECTED - requires authentication)
func (h *PostHandler) LikePost(c *gin.Context) {
	res, err := h.engine.ToggleLike(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	msg := "Post unliked"
	if res.Liked {
		msg = "Post liked"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   msg,
		"likeCount": res.LikeCount,
		"isLiked":   res.Liked,
	})
}

// SharePost records the caller's share once (PROTECTED - requires authentication)
func (h *PostHandler) SharePost(c *gin.Context) {
	res, err := h.engine.Share(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Post shared successfully",
		"shareCount": res.ShareCount,
		"isShared":   res.Shared,
	})
}

// SearchPosts matches posts the caller may read
func (h *PostHandler) SearchPosts(c *gin.Context) {
	query := c.Param("query")
	page, err := h.search.Search(c.Request.Context(), query, middleware.UserID(c), pageFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"posts":      page.Posts,
		"query":      query,
		"pagination": paginationJSON(page.Pagination, "totalPosts"),
	})
}

type openedFile struct {
	name string
	file multipart.File
}

func closeAll(files []openedFile) {
	for _, f := range files {
		_ = f.file.Close()
	}
}

// draftFromForm reads the flat multipart field layout used by upload
// clients. Files opened before an error are returned so they can be closed.
func draftFromForm(c *gin.Context) (models.PostDraft, []openedFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return models.PostDraft{}, nil, apperr.Validation("Invalid multipart form")
	}
	headers := form.File["media"]
	if len(headers) > publish.MaxMediaFiles {
		return models.PostDraft{}, nil, apperr.Validation(fmt.Sprintf("media must contain at most %d items", publish.MaxMediaFiles))
	}

	lat, err := optionalFloat(c.PostForm("latitude"), "latitude")
	if err != nil {
		return models.PostDraft{}, nil, err
	}
	lng, err := optionalFloat(c.PostForm("longitude"), "longitude")
	if err != nil {
		return models.PostDraft{}, nil, err
	}
	coords, err := models.NewCoordinates(lat, lng)
	if err != nil {
		return models.PostDraft{}, nil, err
	}
	start, err := formDate(c.PostForm("startDate"), "startDate")
	if err != nil {
		return models.PostDraft{}, nil, err
	}
	end, err := formDate(c.PostForm("endDate"), "endDate")
	if err != nil {
		return models.PostDraft{}, nil, err
	}

	draft := models.PostDraft{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Location: models.Location{
			Name:        c.PostForm("locationName"),
			Coordinates: coords,
			Country:     c.PostForm("country"),
			City:        c.PostForm("city"),
		},
		TripDate:   models.TripDate{Start: start, End: end},
		Tags:       models.SplitTags(c.PostForm("tags")),
		Visibility: models.Visibility(c.PostForm("visibility")),
		TripType:   models.TripType(c.PostForm("tripType")),
		Budget:     models.Budget(c.PostForm("budget")),
		Rating:     config.IntFromString(c.PostForm("rating"), 0),
	}

	opened := make([]openedFile, 0, len(headers))
	for i, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return draft, opened, apperr.Validation(fmt.Sprintf("Failed to read media file %d", i+1))
		}
		opened = append(opened, openedFile{name: fh.Filename, file: f})
	}
	return draft, opened, nil
}

func optionalFloat(s, field string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, apperr.Validation(field + " must be a number")
	}
	return &v, nil
}

// formDate accepts RFC 3339 timestamps and plain dates. An empty value is
// left for draft validation to report.
func formDate(s, field string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperr.Validation(field + " must be a date")
}
