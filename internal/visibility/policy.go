// Package visibility decides which viewers may read a post. The same rule is
// used per document and, through Viewer, inside store queries so that counts
// and page boundaries only ever reflect readable posts.
package visibility

import (
	"sort"

	"github.com/emilythestrangee/tripshare/backend/internal/apperr"
	"github.com/emilythestrangee/tripshare/backend/internal/models"
)

// Relation is the viewer's relationship to a post author.
type Relation int

const (
	Stranger Relation = iota
	Follower
	Self
)

type Decision int

const (
	Allow Decision = iota
	DenyNotFound
	DenyForbidden
)

// Decide is the policy itself. Inactive posts are reported as missing rather
// than forbidden, for everyone including the author.
func Decide(p *models.Post, rel Relation) Decision {
	if !p.Active {
		return DenyNotFound
	}
	switch p.Visibility {
	case models.VisibilityPublic:
		return Allow
	case models.VisibilityFollowers:
		if rel == Self || rel == Follower {
			return Allow
		}
	case models.VisibilityPrivate:
		if rel == Self {
			return Allow
		}
	}
	return DenyForbidden
}

// Check converts a decision into the API error for a single post fetch.
func Check(p *models.Post, rel Relation) error {
	switch Decide(p, rel) {
	case Allow:
		return nil
	case DenyNotFound:
		return apperr.NotFound("Post")
	default:
		return apperr.Forbidden("Access denied")
	}
}

// RelationOf builds a relation from an explicit follow check. An empty viewer
// id is anonymous and always a stranger.
func RelationOf(viewerID, authorID string, follows bool) Relation {
	switch {
	case viewerID == "":
		return Stranger
	case viewerID == authorID:
		return Self
	case follows:
		return Follower
	default:
		return Stranger
	}
}

// Viewer is a reader together with the authors they follow.
type Viewer struct {
	ID        string
	following map[string]struct{}
}

func Anonymous() Viewer {
	return Viewer{}
}

func NewViewer(id string, following []string) Viewer {
	v := Viewer{ID: id, following: make(map[string]struct{}, len(following))}
	for _, f := range following {
		v.following[f] = struct{}{}
	}
	return v
}

func (v Viewer) IsAnonymous() bool {
	return v.ID == ""
}

func (v Viewer) RelationTo(authorID string) Relation {
	_, follows := v.following[authorID]
	return RelationOf(v.ID, authorID, follows)
}

// Allows applies the policy to one post.
func (v Viewer) Allows(p *models.Post) bool {
	return Decide(p, v.RelationTo(p.AuthorID)) == Allow
}

// FollowedAuthors returns the followed author ids in a stable order for use in
// query filters.
func (v Viewer) FollowedAuthors() []string {
	ids := make([]string, 0, len(v.following))
	for id := range v.following {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
