// Package publish creates and retires posts. Media bytes go to the uploader
// and new posts are handed to the search indexer in the background.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/tripshare/backend/internal/apperr"
	"github.com/emilythestrangee/tripshare/backend/internal/media"
	"github.com/emilythestrangee/tripshare/backend/internal/models"
	"github.com/emilythestrangee/tripshare/backend/internal/store"
)

const (
	MaxMediaFiles = 10
	indexTimeout  = 10 * time.Second
)

// Indexer keeps an external search index in step with the store.
type Indexer interface {
	IndexPost(ctx context.Context, post *models.Post) error
	Deactivate(ctx context.Context, postID string) error
}

type Invalidator interface {
	Invalidate(ctx context.Context, postID string) error
}

// File is one uploaded media file in submission order.
type File struct {
	Name string
	Body io.Reader
}

type Publisher struct {
	store    store.Store
	uploader media.Uploader
	indexer  Indexer
	cache    Invalidator
	pending  sync.WaitGroup
}

type Option func(*Publisher)

func WithUploader(u media.Uploader) Option {
	return func(p *Publisher) { p.uploader = u }
}

func WithIndexer(i Indexer) Option {
	return func(p *Publisher) { p.indexer = i }
}

func WithCache(c Invalidator) Option {
	return func(p *Publisher) { p.cache = c }
}

func New(s store.Store, opts ...Option) *Publisher {
	p := &Publisher{store: s}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create validates the draft, stores the files and persists the post. Files
// already uploaded are removed again if a later step fails.
func (p *Publisher) Create(ctx context.Context, authorID string, draft models.PostDraft, files []File) (*models.Post, error) {
	if authorID == "" {
		return nil, apperr.Unauthorized("User not authenticated")
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	if len(draft.Media)+len(files) > MaxMediaFiles {
		return nil, apperr.Validation(fmt.Sprintf("media must contain at most %d items", MaxMediaFiles))
	}
	if len(files) > 0 && p.uploader == nil {
		return nil, apperr.Validation("Media uploads are not configured")
	}

	post := &models.Post{
		ID:          store.NewID(),
		AuthorID:    authorID,
		Title:       draft.Title,
		Description: draft.Description,
		Location:    draft.Location,
		TripDate:    draft.TripDate,
		Media:       append([]models.MediaItem(nil), draft.Media...),
		Tags:        draft.Tags,
		Visibility:  draft.Visibility,
		TripType:    draft.TripType,
		Budget:      draft.Budget,
		Rating:      draft.Rating,
		Active:      true,
		CreatedAt:   store.Now(),
	}

	uploaded, err := p.upload(ctx, post, files)
	if err != nil {
		p.cleanup(ctx, uploaded)
		return nil, err
	}
	if post.Media == nil {
		post.Media = []models.MediaItem{}
	}
	if post.Tags == nil {
		post.Tags = []string{}
	}

	if err := p.store.CreatePost(ctx, post); err != nil {
		p.cleanup(ctx, uploaded)
		return nil, err
	}
	log.WithFields(log.Fields{"post_id": post.ID, "author_id": authorID, "media": len(post.Media)}).Info("post created")

	if p.indexer != nil {
		indexed := *post
		p.background(func(ctx context.Context) error { return p.indexer.IndexPost(ctx, &indexed) }, "failed to index post", post.ID)
	}
	return post, nil
}

// Delete retires a post. Only its author may do so and the post is kept in
// storage with its active flag cleared.
func (p *Publisher) Delete(ctx context.Context, postID, authorID string) error {
	if authorID == "" {
		return apperr.Unauthorized("User not authenticated")
	}
	if err := p.store.DeactivatePost(ctx, postID, authorID); err != nil {
		return err
	}
	if p.cache != nil {
		if err := p.cache.Invalidate(ctx, postID); err != nil {
			log.WithError(err).WithField("post_id", postID).Warn("failed to invalidate cached post")
		}
	}
	if p.indexer != nil {
		p.background(func(ctx context.Context) error { return p.indexer.Deactivate(ctx, postID) }, "failed to deactivate indexed post", postID)
	}
	return nil
}

// Wait blocks until background indexing started so far has finished.
func (p *Publisher) Wait() {
	p.pending.Wait()
}

func (p *Publisher) upload(ctx context.Context, post *models.Post, files []File) ([]string, error) {
	paths := make([]string, 0, len(files))
	for i, f := range files {
		order := len(post.Media)
		stored, err := p.uploader.Upload(ctx, media.ObjectPath(post.AuthorID, post.ID, order, f.Name), f.Body)
		if errors.Is(err, media.ErrUnsupported) {
			return paths, apperr.Validation(fmt.Sprintf("Media file %d must be an image or a video", i+1))
		}
		if err != nil {
			log.WithError(err).WithField("file", f.Name).Error("media upload failed")
			return paths, apperr.Validation(fmt.Sprintf("Failed to upload media file %d", i+1))
		}
		paths = append(paths, stored.Path)

		kind, err := media.KindFor(stored.ContentType)
		if err != nil {
			return paths, apperr.Validation(fmt.Sprintf("Media file %d must be an image or a video", i+1))
		}
		post.Media = append(post.Media, models.MediaItem{
			Kind:     kind,
			URL:      stored.URL,
			PublicID: stored.Path,
			Order:    order,
		})
	}
	return paths, nil
}

func (p *Publisher) cleanup(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	if err := p.uploader.Remove(ctx, paths); err != nil {
		log.WithError(err).WithField("paths", paths).Warn("failed to remove orphaned media")
	}
}

func (p *Publisher) background(fn func(context.Context) error, msg, postID string) {
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.WithError(err).WithField("post_id", postID).Warn(msg)
		}
	}()
}
