package models

import "time"

// Like is unique per (post, user); the composite key enforces it.
type Like struct {
	PostID    string    `gorm:"primaryKey;type:uuid" json:"-" bson:"-"`
	UserID    string    `gorm:"primaryKey;type:uuid" json:"userId" bson:"user_id"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

func (Like) TableName() string {
	return "post_likes"
}

// Share is a per-user latch, not a repeatable event.
type Share struct {
	PostID   string    `gorm:"primaryKey;type:uuid" json:"-" bson:"-"`
	UserID   string    `gorm:"primaryKey;type:uuid" json:"userId" bson:"user_id"`
	SharedAt time.Time `gorm:"autoCreateTime" json:"sharedAt" bson:"shared_at"`
}

func (Share) TableName() string {
	return "post_shares"
}

// LikeResult is the state after a like toggle.
type LikeResult struct {
	Liked     bool `json:"isLiked"`
	LikeCount int  `json:"likeCount"`
}

// ShareResult is the state after a share. Recorded is false when the user had
// already shared the post and the call was a no-op.
type ShareResult struct {
	Shared     bool `json:"isShared"`
	ShareCount int  `json:"shareCount"`
	Recorded   bool `json:"-"`
}
