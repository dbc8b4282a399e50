// Package interaction applies likes, comments and shares to posts. Input is
// validated before the store is touched; the store performs each mutation as
// one conditional update.
package interaction

import (
	"context"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/tripshare/backend/internal/apperr"
	"github.com/emilythestrangee/tripshare/backend/internal/models"
	"github.com/emilythestrangee/tripshare/backend/internal/monitoring"
	"github.com/emilythestrangee/tripshare/backend/internal/store"
	"github.com/emilythestrangee/tripshare/backend/internal/visibility"
)

// Invalidator drops cached copies of a post after it changes.
type Invalidator interface {
	Invalidate(ctx context.Context, postID string) error
}

type Engine struct {
	store store.Store
	cache Invalidator
}

// New builds an engine. cache may be nil.
func New(s store.Store, cache Invalidator) *Engine {
	return &Engine{store: s, cache: cache}
}

func (e *Engine) ToggleLike(ctx context.Context, postID, userID string) (models.LikeResult, error) {
	if err := requireIDs(postID, userID); err != nil {
		return models.LikeResult{}, err
	}
	if err := e.checkAccess(ctx, postID, userID); err != nil {
		return models.LikeResult{}, err
	}
	res, err := e.store.ToggleLike(ctx, postID, userID)
	if err != nil {
		return models.LikeResult{}, err
	}
	outcome := "unliked"
	if res.Liked {
		outcome = "liked"
	}
	monitoring.Interactions.WithLabelValues("like", outcome).Inc()
	e.invalidate(ctx, postID)
	return res, nil
}

// AddComment trims text and appends it to the post. Empty text and text
// longer than models.MaxCommentLength characters are rejected.
func (e *Engine) AddComment(ctx context.Context, postID, userID, text string) (*models.Comment, error) {
	if err := requireIDs(postID, userID); err != nil {
		return nil, err
	}
	text, err := CleanComment(text)
	if err != nil {
		return nil, err
	}
	if err := e.checkAccess(ctx, postID, userID); err != nil {
		return nil, err
	}
	c := &models.Comment{
		ID:        store.NewID(),
		PostID:    postID,
		UserID:    userID,
		Text:      text,
		CreatedAt: store.Now(),
	}
	if err := e.store.AppendComment(ctx, postID, c); err != nil {
		return nil, err
	}
	monitoring.Interactions.WithLabelValues("comment", "added").Inc()
	e.invalidate(ctx, postID)

	if users, err := e.store.Summaries(ctx, []string{userID}); err == nil {
		if u, ok := users[userID]; ok {
			c.User = &u
		}
	}
	return c, nil
}

// Share records the user's share once. Repeated calls leave a single record.
func (e *Engine) Share(ctx context.Context, postID, userID string) (models.ShareResult, error) {
	if err := requireIDs(postID, userID); err != nil {
		return models.ShareResult{}, err
	}
	if err := e.checkAccess(ctx, postID, userID); err != nil {
		return models.ShareResult{}, err
	}
	res, err := e.store.AddShareOnce(ctx, postID, userID)
	if err != nil {
		return models.ShareResult{}, err
	}
	outcome := "repeat"
	if res.Recorded {
		outcome = "recorded"
		e.invalidate(ctx, postID)
	}
	monitoring.Interactions.WithLabelValues("share", outcome).Inc()
	return res, nil
}

// CleanComment returns the trimmed comment text or a validation error.
func CleanComment(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.Validation("Comment text is required")
	}
	if utf8.RuneCountInString(text) > models.MaxCommentLength {
		return "", apperr.Validation("Comment cannot exceed 500 characters")
	}
	return text, nil
}

// checkAccess refuses interactions on posts the user cannot read.
func (e *Engine) checkAccess(ctx context.Context, postID, userID string) error {
	p, err := e.store.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if p.Visibility == models.VisibilityPublic || p.AuthorID == userID {
		return nil
	}
	follows := false
	if p.Visibility == models.VisibilityFollowers {
		if follows, err = e.store.IsFollowing(ctx, userID, p.AuthorID); err != nil {
			return err
		}
	}
	return visibility.Check(p, visibility.RelationOf(userID, p.AuthorID, follows))
}

func (e *Engine) invalidate(ctx context.Context, postID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, postID); err != nil {
		log.WithError(err).WithField("post_id", postID).Warn("failed to invalidate cached post")
	}
}

func requireIDs(postID, userID string) error {
	if strings.TrimSpace(postID) == "" {
		return apperr.Validation("Post id is required")
	}
	if strings.TrimSpace(userID) == "" {
		return apperr.Validation("User id is required")
	}
	return nil
}
