package models

import (
	"encoding/json"
	"strings"
	"time"
)

type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
	VisibilityPrivate   Visibility = "private"
)

type TripType string

const (
	TripSolo       TripType = "solo"
	TripCouple     TripType = "couple"
	TripFamily     TripType = "family"
	TripFriends    TripType = "friends"
	TripBusiness   TripType = "business"
	TripAdventure  TripType = "adventure"
	TripRelaxation TripType = "relaxation"
)

type Budget string

const (
	BudgetLow    Budget = "budget"
	BudgetMid    Budget = "mid-range"
	BudgetLuxury Budget = "luxury"
)

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Coordinates is only ever stored as a complete pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude" bson:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" bson:"longitude" validate:"gte=-180,lte=180"`
}

// UnmarshalJSON rejects an object that carries only one of the two members.
func (c *Coordinates) UnmarshalJSON(data []byte) error {
	var raw struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Latitude == nil || raw.Longitude == nil {
		return errHalfCoordinates
	}
	c.Latitude, c.Longitude = *raw.Latitude, *raw.Longitude
	return nil
}

type Location struct {
	Name        string       `gorm:"not null" json:"name" bson:"name" validate:"required,max=200"`
	Coordinates *Coordinates `gorm:"serializer:json;type:jsonb" json:"coordinates,omitempty" bson:"coordinates,omitempty"`
	Country     string       `json:"country,omitempty" bson:"country,omitempty" validate:"max=100"`
	City        string       `json:"city,omitempty" bson:"city,omitempty" validate:"max=100"`
}

type TripDate struct {
	Start time.Time `gorm:"not null" json:"startDate" bson:"start_date" validate:"required"`
	End   time.Time `gorm:"not null" json:"endDate" bson:"end_date" validate:"required,gtefield=Start"`
}

type MediaItem struct {
	Kind     MediaKind `json:"type" bson:"type" validate:"required,oneof=image video"`
	URL      string    `json:"url" bson:"url" validate:"required,url"`
	PublicID string    `json:"publicId,omitempty" bson:"public_id,omitempty"`
	Caption  string    `json:"caption,omitempty" bson:"caption,omitempty" validate:"max=500"`
	Order    int       `json:"order" bson:"order" validate:"gte=0"`
}

// Post is a published trip. Likes, comments and shares are sub-entities owned by
// the post; only the storage layer mutates them.
type Post struct {
	ID          string       `gorm:"primaryKey;type:uuid" json:"id" bson:"_id"`
	AuthorID    string       `gorm:"type:uuid;not null;index:idx_posts_author_created,priority:1" json:"authorId" bson:"author_id"`
	Author      *UserSummary `gorm:"-" json:"author,omitempty" bson:"-"`
	Title       string       `gorm:"size:200;not null" json:"title" bson:"title"`
	Description string       `gorm:"size:2000;not null" json:"description" bson:"description"`
	Location    Location     `gorm:"embedded;embeddedPrefix:location_" json:"location" bson:"location"`
	TripDate    TripDate     `gorm:"embedded;embeddedPrefix:trip_" json:"tripDate" bson:"trip_date"`
	Media       []MediaItem  `gorm:"serializer:json;type:jsonb" json:"media" bson:"media"`
	Tags        []string     `gorm:"serializer:json;type:jsonb" json:"tags" bson:"tags"`
	Likes       []Like       `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"likes" bson:"likes"`
	Comments    []Comment    `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"comments" bson:"comments"`
	Shares      []Share      `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"shares" bson:"shares"`
	Visibility  Visibility   `gorm:"size:16;not null;default:public;index" json:"visibility" bson:"visibility"`
	TripType    TripType     `gorm:"size:16;not null" json:"tripType" bson:"trip_type"`
	Budget      Budget       `gorm:"size:16;not null;default:mid-range" json:"budget" bson:"budget"`
	Rating      int          `gorm:"not null" json:"rating" bson:"rating"`
	Active      bool         `gorm:"column:is_active;not null;default:true;index" json:"isActive" bson:"is_active"`
	CreatedAt   time.Time    `gorm:"index:idx_posts_author_created,priority:2,sort:desc;index" json:"createdAt" bson:"created_at"`
	UpdatedAt   time.Time    `json:"updatedAt" bson:"updated_at"`
}

func (p *Post) LikeCount() int    { return len(p.Likes) }
func (p *Post) CommentCount() int { return len(p.Comments) }
func (p *Post) ShareCount() int   { return len(p.Shares) }

// LikedBy reports whether userID currently likes the post.
func (p *Post) LikedBy(userID string) bool {
	for _, l := range p.Likes {
		if l.UserID == userID {
			return true
		}
	}
	return false
}

// Newer orders posts by creation time descending, then id descending.
func Newer(a, b *Post) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// NormalizeTags trims and case-folds tags, dropping blanks and duplicates.
func NormalizeTags(raw []string) []string {
	tags := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	return tags
}

// SplitTags parses the comma separated form used by upload clients.
func SplitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return NormalizeTags(strings.Split(s, ","))
}
