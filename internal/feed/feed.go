// Package feed serves paginated, visibility filtered post listings and single
// post reads.
package feed

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/tripshare/backend/internal/models"
	"github.com/emilythestrangee/tripshare/backend/internal/monitoring"
	"github.com/emilythestrangee/tripshare/backend/internal/store"
	"github.com/emilythestrangee/tripshare/backend/internal/visibility"
)

// PostCache is a read-through cache of single posts. Fill must not write if
// the post was invalidated after Generation returned gen.
type PostCache interface {
	Get(ctx context.Context, postID string) (*models.Post, error)
	Generation(ctx context.Context, postID string) (int64, error)
	Fill(ctx context.Context, post *models.Post, gen int64) (bool, error)
}

// Page is one page of posts and the pagination derived from the same count.
type Page struct {
	Posts      []models.Post
	Pagination models.Pagination
}

type Feed struct {
	store store.Store
	cache PostCache
}

// New builds a feed. cache may be nil.
func New(s store.Store, cache PostCache) *Feed {
	return &Feed{store: s, cache: cache}
}

// List returns the active posts viewerID may read, newest first.
func (f *Feed) List(ctx context.Context, viewerID string, page models.Page) (*Page, error) {
	return f.list(ctx, store.PostQuery{Page: page}, viewerID)
}

// ListByAuthor is List restricted to one author.
func (f *Feed) ListByAuthor(ctx context.Context, authorID, viewerID string, page models.Page) (*Page, error) {
	if _, err := f.store.GetUser(ctx, authorID); err != nil {
		return nil, err
	}
	return f.list(ctx, store.PostQuery{AuthorID: authorID, Page: page}, viewerID)
}

func (f *Feed) list(ctx context.Context, q store.PostQuery, viewerID string) (*Page, error) {
	viewer, err := store.ViewerFor(ctx, f.store, viewerID)
	if err != nil {
		return nil, err
	}
	q.Viewer = viewer
	q.Page = models.NewPage(q.Page.Number, q.Page.Size)

	posts, total, err := f.store.ListPosts(ctx, q)
	if err != nil {
		return nil, err
	}
	// The store already scoped the query; this guards against a backend
	// returning a document it should not have.
	visible := posts[:0]
	for _, p := range posts {
		if viewer.Allows(&p) {
			visible = append(visible, p)
		}
	}
	if err := f.Hydrate(ctx, visible); err != nil {
		return nil, err
	}
	return &Page{Posts: visible, Pagination: models.NewPagination(q.Page, total)}, nil
}

// Get fetches one post for viewerID. Missing and inactive posts are NotFound;
// posts the viewer may not read are Forbidden.
func (f *Feed) Get(ctx context.Context, postID, viewerID string) (*models.Post, error) {
	p, err := f.load(ctx, postID)
	if err != nil {
		return nil, err
	}
	follows := false
	if p.Visibility == models.VisibilityFollowers && viewerID != "" && viewerID != p.AuthorID {
		if follows, err = f.store.IsFollowing(ctx, viewerID, p.AuthorID); err != nil {
			return nil, err
		}
	}
	if err := visibility.Check(p, visibility.RelationOf(viewerID, p.AuthorID, follows)); err != nil {
		return nil, err
	}
	one := []models.Post{*p}
	if err := f.Hydrate(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

func (f *Feed) load(ctx context.Context, postID string) (*models.Post, error) {
	if f.cache == nil {
		return f.store.GetPost(ctx, postID)
	}
	cached, err := f.cache.Get(ctx, postID)
	switch {
	case err != nil:
		log.WithError(err).WithField("post_id", postID).Warn("post cache read failed")
	case cached != nil:
		monitoring.PostCacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	default:
		monitoring.PostCacheLookups.WithLabelValues("miss").Inc()
	}

	gen, genErr := f.cache.Generation(ctx, postID)
	p, err := f.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		log.WithError(genErr).WithField("post_id", postID).Warn("post cache generation read failed")
		return p, nil
	}
	if _, err := f.cache.Fill(ctx, p, gen); err != nil {
		log.WithError(err).WithField("post_id", postID).Warn("post cache write failed")
	}
	return p, nil
}

// Hydrate attaches author and commenter summaries to posts in place.
func (f *Feed) Hydrate(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0, len(posts))
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, p := range posts {
		add(p.AuthorID)
		for _, c := range p.Comments {
			add(c.UserID)
		}
	}
	users, err := f.store.Summaries(ctx, ids)
	if err != nil {
		return err
	}
	for i := range posts {
		if u, ok := users[posts[i].AuthorID]; ok {
			posts[i].Author = &u
		}
		comments := make([]models.Comment, len(posts[i].Comments))
		copy(comments, posts[i].Comments)
		for j := range comments {
			if u, ok := users[comments[j].UserID]; ok {
				comments[j].User = &u
			}
		}
		posts[i].Comments = comments
	}
	return nil
}
