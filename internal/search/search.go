// Package search matches posts and users against free text. Post matches are
// filtered by the same visibility scope as the feed before they are counted.
package search

import (
	"context"
	"strings"

	"github.com/emilythestrangee/tripshare/backend/internal/apperr"
	"github.com/emilythestrangee/tripshare/backend/internal/feed"
	"github.com/emilythestrangee/tripshare/backend/internal/models"
	"github.com/emilythestrangee/tripshare/backend/internal/store"
	"github.com/emilythestrangee/tripshare/backend/internal/visibility"
)

// Searcher finds active posts whose title, description, location or tags
// contain text, scoped to what viewer may read, newest first.
type Searcher interface {
	SearchPosts(ctx context.Context, text string, viewer visibility.Viewer, page models.Page) ([]models.Post, int64, error)
}

// Hydrator fills author and commenter summaries on posts.
type Hydrator interface {
	Hydrate(ctx context.Context, posts []models.Post) error
}

// UserPage is one page of matching users.
type UserPage struct {
	Users      []models.UserSummary
	Pagination models.Pagination
}

type Index struct {
	users    store.UserStore
	posts    Searcher
	hydrator Hydrator
}

func NewIndex(users store.UserStore, posts Searcher, hydrator Hydrator) *Index {
	return &Index{users: users, posts: posts, hydrator: hydrator}
}

func (i *Index) Search(ctx context.Context, query, viewerID string, page models.Page) (*feed.Page, error) {
	text := strings.TrimSpace(query)
	if text == "" {
		return nil, apperr.Validation("Search query is required")
	}
	page = models.NewPage(page.Number, page.Size)
	viewer, err := store.ViewerFor(ctx, i.users, viewerID)
	if err != nil {
		return nil, err
	}
	posts, total, err := i.posts.SearchPosts(ctx, text, viewer, page)
	if err != nil {
		return nil, err
	}
	visible := posts[:0]
	for _, p := range posts {
		if viewer.Allows(&p) {
			visible = append(visible, p)
		}
	}
	if err := i.hydrator.Hydrate(ctx, visible); err != nil {
		return nil, err
	}
	return &feed.Page{Posts: visible, Pagination: models.NewPagination(page, total)}, nil
}

// SearchUsers matches username, full name or location. The user directory is
// public so no visibility filter applies.
func (i *Index) SearchUsers(ctx context.Context, query string, page models.Page) (*UserPage, error) {
	text := strings.TrimSpace(query)
	if text == "" {
		return nil, apperr.Validation("Search query is required")
	}
	page = models.NewPage(page.Number, page.Size)
	users, total, err := i.users.SearchUsers(ctx, text, page)
	if err != nil {
		return nil, err
	}
	return &UserPage{Users: users, Pagination: models.NewPagination(page, total)}, nil
}

// StoreSearcher pushes the match into the post store query.
type StoreSearcher struct {
	posts store.PostStore
}

func NewStoreSearcher(posts store.PostStore) *StoreSearcher {
	return &StoreSearcher{posts: posts}
}

func (s *StoreSearcher) SearchPosts(ctx context.Context, text string, viewer visibility.Viewer, page models.Page) ([]models.Post, int64, error) {
	return s.posts.ListPosts(ctx, store.PostQuery{Text: text, Viewer: viewer, Page: page})
}
