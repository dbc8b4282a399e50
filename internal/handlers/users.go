package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/tripshare/backend/internal/feed"
	"github.com/emilythestrangee/tripshare/backend/internal/graph"
	"github.com/emilythestrangee/tripshare/backend/internal/middleware"
	"github.com/emilythestrangee/tripshare/backend/internal/search"
)

type UserHandler struct {
	graph  *graph.Graph
	feed   *feed.Feed
	search *search.Index
}

func NewUserHandler(g *graph.Graph, f *feed.Feed, s *search.Index) *UserHandler {
	return &UserHandler{graph: g, feed: f, search: s}
}

// GetUserProfile returns a user's profile
func (h *UserHandler) GetUserProfile(c *gin.Context) {
	p, err := h.graph.Profile(c.Request.Context(), c.Param("userId"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":             p.User.ID,
			"username":       p.User.Username,
			"fullName":       p.User.FullName,
			"bio":            p.Bio,
			"profilePicture": p.User.ProfilePicture,
			"location":       p.User.Location,
			"totalTrips":     p.User.TotalTrips,
			"isVerified":     p.User.IsVerified,
			"createdAt":      p.CreatedAt,
			"followersCount": p.FollowersCount,
			"followingCount": p.FollowingCount,
			"isFollowing":    p.IsFollowing,
		},
		"posts": p.Posts,
	})
}

// GetUserPosts returns the posts of one author visible to the caller
func (h *UserHandler) GetUserPosts(c *gin.Context) {
	page, err := h.feed.ListByAuthor(c.Request.Context(), c.Param("userId"), middleware.UserID(c), pageFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"posts":      page.Posts,
		"pagination": paginationJSON(page.Pagination, "totalPosts"),
	})
}

// FollowUser follows or unfollows a user
func (h *UserHandler) FollowUser(c *gin.Context) {
	res, err := h.graph.ToggleFollow(c.Request.Context(), middleware.UserID(c), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	msg := "User unfollowed"
	if res.Following {
		msg = "User followed"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":        msg,
		"isFollowing":    res.Following,
		"followersCount": res.FollowersCount,
	})
}

// GetFollowers returns users following the specified user
func (h *UserHandler) GetFollowers(c *gin.Context) {
	followers, err := h.graph.Followers(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"followers": followers})
}

// GetFollowing returns users the specified user follows
func (h *UserHandler) GetFollowing(c *gin.Context) {
	following, err := h.graph.Following(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": following})
}

// SearchUsers matches username, full name or location
func (h *UserHandler) SearchUsers(c *gin.Context) {
	query := c.Param("query")
	page, err := h.search.SearchUsers(c.Request.Context(), query, pageFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"users":      page.Users,
		"query":      query,
		"pagination": paginationJSON(page.Pagination, "totalUsers"),
	})
}
