package models

import "time"

// MaxCommentLength is measured in characters, not bytes.
const MaxCommentLength = 500

type Comment struct {
	ID        string       `gorm:"primaryKey;type:uuid" json:"id" bson:"_id"`
	PostID    string       `gorm:"type:uuid;not null;index:idx_comments_post_created,priority:1" json:"postId" bson:"-"`
	UserID    string       `gorm:"type:uuid;not null" json:"userId" bson:"user_id"`
	User      *UserSummary `gorm:"-" json:"user,omitempty" bson:"-"`
	Text      string       `gorm:"size:2000;not null" json:"text" bson:"text"`
	CreatedAt time.Time    `gorm:"index:idx_comments_post_created,priority:2" json:"createdAt" bson:"created_at"`
}

func (Comment) TableName() string {
	return "post_comments"
}
