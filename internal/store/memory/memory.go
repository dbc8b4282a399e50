// Package memory is a store backed by process memory. Every mutation runs
// under a single write lock against the live records, which makes each toggle
// and each follow pair atomic.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/emilythestrangee/tripshare/backend/internal/apperr"
	"github.com/emilythestrangee/tripshare/backend/internal/models"
	"github.com/emilythestrangee/tripshare/backend/internal/store"
)

type Store struct {
	mu    sync.RWMutex
	posts map[string]*models.Post
	users map[string]*models.User
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		posts: make(map[string]*models.Post),
		users: make(map[string]*models.User),
	}
}

func (s *Store) Health(context.Context) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]string{
		"status":  "up",
		"backend": "memory",
	}
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) GetPost(_ context.Context, id string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok || !p.Active {
		return nil, apperr.NotFound("Post")
	}
	return clonePost(p), nil
}

func (s *Store) CreatePost(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	author, ok := s.users[post.AuthorID]
	if !ok {
		return apperr.NotFound("User")
	}
	if post.ID == "" {
		post.ID = store.NewID()
	}
	if _, exists := s.posts[post.ID]; exists {
		return apperr.Conflict("Post already exists", nil)
	}
	now := store.Now()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now
	post.Active = true
	s.posts[post.ID] = clonePost(post)
	author.TotalTrips++
	return nil
}

func (s *Store) ToggleLike(_ context.Context, postID, userID string) (models.LikeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.activePost(postID)
	if err != nil {
		return models.LikeResult{}, err
	}
	for i, l := range p.Likes {
		if l.UserID == userID {
			p.Likes = append(p.Likes[:i], p.Likes[i+1:]...)
			return models.LikeResult{Liked: false, LikeCount: len(p.Likes)}, nil
		}
	}
	p.Likes = append(p.Likes, models.Like{PostID: postID, UserID: userID, CreatedAt: store.Now()})
	return models.LikeResult{Liked: true, LikeCount: len(p.Likes)}, nil
}

func (s *Store) AppendComment(_ context.Context, postID string, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.activePost(postID)
	if err != nil {
		return err
	}
	if comment.ID == "" {
		comment.ID = store.NewID()
	}
	comment.PostID = postID
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = store.Now()
	}
	c := *comment
	c.User = nil
	p.Comments = append(p.Comments, c)
	return nil
}

func (s *Store) AddShareOnce(_ context.Context, postID, userID string) (models.ShareResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.activePost(postID)
	if err != nil {
		return models.ShareResult{}, err
	}
	for _, sh := range p.Shares {
		if sh.UserID == userID {
			return models.ShareResult{Shared: true, ShareCount: len(p.Shares)}, nil
		}
	}
	p.Shares = append(p.Shares, models.Share{PostID: postID, UserID: userID, SharedAt: store.Now()})
	return models.ShareResult{Shared: true, ShareCount: len(p.Shares), Recorded: true}, nil
}

func (s *Store) DeactivatePost(_ context.Context, postID, authorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.activePost(postID)
	if err != nil {
		return err
	}
	if p.AuthorID != authorID {
		return apperr.Forbidden("You can only delete your own posts")
	}
	p.Active = false
	p.UpdatedAt = store.Now()
	return nil
}

func (s *Store) ListPosts(_ context.Context, q store.PostQuery) ([]models.Post, int64, error) {
	s.mu.RLock()
	matched := make([]*models.Post, 0)
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	for _, p := range s.posts {
		if !p.Active {
			continue
		}
		if q.AuthorID != "" && p.AuthorID != q.AuthorID {
			continue
		}
		if !q.Viewer.Allows(p) {
			continue
		}
		if needle != "" && !matchesText(p, needle) {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool { return models.Newer(matched[i], matched[j]) })

	total := int64(len(matched))
	start := min(q.Page.Offset(), len(matched))
	end := min(start+q.Page.Size, len(matched))
	page := make([]models.Post, 0, end-start)
	for _, p := range matched[start:end] {
		page = append(page, *clonePost(p))
	}
	s.mu.RUnlock()
	return page, total, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("User")
	}
	return cloneUser(u), nil
}

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = store.NewID()
	}
	if _, exists := s.users[user.ID]; exists {
		return apperr.Conflict("User already exists", nil)
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Username, user.Username) {
			return apperr.Conflict("Username already taken", nil)
		}
	}
	now := store.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	user.Followers, user.Following = nil, nil
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *Store) Summaries(_ context.Context, ids []string) (map[string]models.UserSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.UserSummary, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u.Summary()
		}
	}
	return out, nil
}

func (s *Store) ToggleFollow(_ context.Context, followerID, followeeID string) (models.FollowResult, error) {
	if followerID == followeeID {
		return models.FollowResult{}, apperr.ErrSelfFollow
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	follower, ok := s.users[followerID]
	if !ok {
		return models.FollowResult{}, apperr.NotFound("User")
	}
	followee, ok := s.users[followeeID]
	if !ok {
		return models.FollowResult{}, apperr.NotFound("User")
	}
	if slices.Contains(follower.Following, followeeID) {
		follower.Following = slices.DeleteFunc(follower.Following, func(id string) bool { return id == followeeID })
		followee.Followers = slices.DeleteFunc(followee.Followers, func(id string) bool { return id == followerID })
		return models.FollowResult{Following: false, FollowersCount: len(followee.Followers)}, nil
	}
	follower.Following = append(follower.Following, followeeID)
	followee.Followers = append(followee.Followers, followerID)
	return models.FollowResult{Following: true, FollowersCount: len(followee.Followers)}, nil
}

func (s *Store) IsFollowing(_ context.Context, followerID, followeeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[followerID]
	if !ok {
		return false, nil
	}
	return slices.Contains(u.Following, followeeID), nil
}

func (s *Store) FollowingIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), u.Following...), nil
}

func (s *Store) Followers(_ context.Context, userID string) ([]models.UserSummary, error) {
	return s.edgeSummaries(userID, func(u *models.User) []string { return u.Followers })
}

func (s *Store) Following(_ context.Context, userID string) ([]models.UserSummary, error) {
	return s.edgeSummaries(userID, func(u *models.User) []string { return u.Following })
}

func (s *Store) SearchUsers(_ context.Context, text string, page models.Page) ([]models.UserSummary, int64, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	s.mu.RLock()
	matched := make([]models.UserSummary, 0)
	for _, u := range s.users {
		if strings.Contains(strings.ToLower(u.Username), needle) ||
			strings.Contains(strings.ToLower(u.FullName), needle) ||
			strings.Contains(strings.ToLower(u.Location), needle) {
			matched = append(matched, u.Summary())
		}
	}
	s.mu.RUnlock()
	sort.Slice(matched, func(i, j int) bool {
		a, b := asciiLower(matched[i].Username), asciiLower(matched[j].Username)
		if a != b {
			return a < b
		}
		return matched[i].ID < matched[j].ID
	})

	total := int64(len(matched))
	start := min(page.Offset(), len(matched))
	end := min(start+page.Size, len(matched))
	return matched[start:end], total, nil
}

func (s *Store) edgeSummaries(userID string, edges func(*models.User) []string) ([]models.UserSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, apperr.NotFound("User")
	}
	ids := edges(u)
	out := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		if other, ok := s.users[id]; ok {
			out = append(out, other.Summary())
		}
	}
	return out, nil
}

// activePost must be called with the write lock held.
func (s *Store) activePost(id string) (*models.Post, error) {
	p, ok := s.posts[id]
	if !ok || !p.Active {
		return nil, apperr.NotFound("Post")
	}
	return p, nil
}

func matchesText(p *models.Post, needle string) bool {
	fields := []string{p.Title, p.Description, p.Location.Name, p.Location.City, p.Location.Country}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	for _, t := range p.Tags {
		if strings.Contains(strings.ToLower(t), needle) {
			return true
		}
	}
	return false
}

// copyOf never returns nil so empty lists encode as [].
func copyOf[T any](s []T) []T {
	return append(make([]T, 0, len(s)), s...)
}

func clonePost(p *models.Post) *models.Post {
	c := *p
	c.Media = copyOf(p.Media)
	c.Tags = copyOf(p.Tags)
	c.Likes = copyOf(p.Likes)
	c.Comments = copyOf(p.Comments)
	c.Shares = copyOf(p.Shares)
	if p.Location.Coordinates != nil {
		coords := *p.Location.Coordinates
		c.Location.Coordinates = &coords
	}
	c.Author = nil
	return &c
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Followers = copyOf(u.Followers)
	c.Following = copyOf(u.Following)
	return &c
}

// asciiLower folds A-Z only, matching lower() under the C collation and
// Mongo's $toLower.
func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}
