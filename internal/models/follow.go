package models

import "time"

// Follow is one directed edge. A single row backs both the follower's
// "following" set and the followee's "followers" set.
type Follow struct {
	FollowerID  string    `gorm:"primaryKey;type:uuid" json:"followerId"`
	FollowingID string    `gorm:"primaryKey;type:uuid;index" json:"followingId"`
	Follower    User      `gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE" json:"-"`
	Following   User      `gorm:"foreignKey:FollowingID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (Follow) TableName() string {
	return "user_follows"
}

// FollowResult is the state after a follow toggle.
type FollowResult struct {
	Following      bool `json:"isFollowing"`
	FollowersCount int  `json:"followersCount"`
}
