// Package graph maintains the follow relation between users. Both sides of an
// edge change together inside the store.
package graph

import (
	"context"
	"strings"

	"github.com/emilythestrangee/tripshare/backend/internal/apperr"
	"github.com/emilythestrangee/tripshare/backend/internal/models"
	"github.com/emilythestrangee/tripshare/backend/internal/monitoring"
	"github.com/emilythestrangee/tripshare/backend/internal/store"
	"github.com/emilythestrangee/tripshare/backend/internal/visibility"
)

// ProfilePostLimit is how many recent posts a profile page carries.
const ProfilePostLimit = 20

type Graph struct {
	store store.Store
}

func New(s store.Store) *Graph {
	return &Graph{store: s}
}

// ToggleFollow follows followeeID if followerID does not follow them yet and
// unfollows otherwise. Following oneself is refused before any storage access.
func (g *Graph) ToggleFollow(ctx context.Context, followerID, followeeID string) (models.FollowResult, error) {
	if strings.TrimSpace(followerID) == "" || strings.TrimSpace(followeeID) == "" {
		return models.FollowResult{}, apperr.Validation("User id is required")
	}
	if followerID == followeeID {
		return models.FollowResult{}, apperr.ErrSelfFollow
	}
	res, err := g.store.ToggleFollow(ctx, followerID, followeeID)
	if err != nil {
		return models.FollowResult{}, err
	}
	state := "unfollowed"
	if res.Following {
		state = "followed"
	}
	monitoring.FollowToggles.WithLabelValues(state).Inc()
	return res, nil
}

func (g *Graph) Followers(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return g.store.Followers(ctx, userID)
}

func (g *Graph) Following(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return g.store.Following(ctx, userID)
}

// Viewer resolves the follow set of viewerID for visibility decisions. An
// empty id is the anonymous viewer.
func (g *Graph) Viewer(ctx context.Context, viewerID string) (visibility.Viewer, error) {
	return store.ViewerFor(ctx, g.store, viewerID)
}

// Profile is userID's page as seen by viewerID, with the latest posts the
// viewer may read.
func (g *Graph) Profile(ctx context.Context, userID, viewerID string) (*models.Profile, error) {
	u, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	viewer, err := g.Viewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	posts, _, err := g.store.ListPosts(ctx, store.PostQuery{
		AuthorID: userID,
		Viewer:   viewer,
		Page:     models.NewPage(1, ProfilePostLimit),
	})
	if err != nil {
		return nil, err
	}
	summary := u.Summary()
	for i := range posts {
		posts[i].Author = &summary
	}
	return &models.Profile{
		User:           summary,
		Bio:            u.Bio,
		FollowersCount: len(u.Followers),
		FollowingCount: len(u.Following),
		IsFollowing:    viewer.RelationTo(userID) == visibility.Follower,
		CreatedAt:      u.CreatedAt,
		Posts:          posts,
	}, nil
}
