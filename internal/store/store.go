// Package store declares the document store consumed by the core. Every
// mutating method must be atomic at the document level in the backend: the
// decision to insert or remove a sub-entry is evaluated against persisted
// state, never against a snapshot the caller read earlier.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/emilythestrangee/tripshare/backend/internal/models"
	"github.com/emilythestrangee/tripshare/backend/internal/visibility"
)

// PostQuery selects active posts readable by Viewer. Text, when set, is a
// case-insensitive literal substring matched against title, description,
// location name/city/country and tags.
type PostQuery struct {
	AuthorID string
	Text     string
	Viewer   visibility.Viewer
	Page     models.Page
}

type PostStore interface {
	// GetPost returns NotFound for missing and inactive posts.
	GetPost(ctx context.Context, id string) (*models.Post, error)
	// CreatePost persists the post and increments the author's trip counter
	// in the same unit of work.
	CreatePost(ctx context.Context, post *models.Post) error
	ToggleLike(ctx context.Context, postID, userID string) (models.LikeResult, error)
	AppendComment(ctx context.Context, postID string, comment *models.Comment) error
	AddShareOnce(ctx context.Context, postID, userID string) (models.ShareResult, error)
	// DeactivatePost is the logical delete; only the author may do it.
	DeactivatePost(ctx context.Context, postID, authorID string) error
	// ListPosts returns one page ordered by creation time then id, both
	// descending, and the total matching count.
	ListPosts(ctx context.Context, q PostQuery) ([]models.Post, int64, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	Summaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
	// ToggleFollow flips the edge follower->followee on both sides at once.
	ToggleFollow(ctx context.Context, followerID, followeeID string) (models.FollowResult, error)
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
	FollowingIDs(ctx context.Context, userID string) ([]string, error)
	Followers(ctx context.Context, userID string) ([]models.UserSummary, error)
	Following(ctx context.Context, userID string) ([]models.UserSummary, error)
	// SearchUsers orders matches by ASCII-lowercased username, then id, in
	// byte order.
	SearchUsers(ctx context.Context, text string, page models.Page) ([]models.UserSummary, int64, error)
}

// Store is a complete backend.
type Store interface {
	PostStore
	UserStore
	Health(ctx context.Context) map[string]string
	Close() error
}

// NewID returns a time ordered identifier so that id order follows creation
// order for posts created in the same instant.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Now is truncated to millisecond precision, the finest every backend keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// ViewerFor loads the follow set of viewerID. An empty id is anonymous.
func ViewerFor(ctx context.Context, users UserStore, viewerID string) (visibility.Viewer, error) {
	if viewerID == "" {
		return visibility.Anonymous(), nil
	}
	following, err := users.FollowingIDs(ctx, viewerID)
	if err != nil {
		return visibility.Viewer{}, err
	}
	return visibility.NewViewer(viewerID, following), nil
}
