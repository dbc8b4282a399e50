package models

import "time"

type User struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id" bson:"_id"`
	Username       string    `gorm:"size:50;uniqueIndex;not null" json:"username" bson:"username"`
	Email          string    `gorm:"size:100;uniqueIndex;not null" json:"-" bson:"email"`
	FullName       string    `gorm:"size:100" json:"fullName" bson:"full_name"`
	Bio            string    `gorm:"size:500" json:"bio" bson:"bio"`
	ProfilePicture string    `json:"profilePicture" bson:"profile_picture"`
	Location       string    `gorm:"size:100" json:"location" bson:"location"`
	TotalTrips     int       `gorm:"not null;default:0" json:"totalTrips" bson:"total_trips"`
	IsVerified     bool      `gorm:"not null;default:false" json:"isVerified" bson:"is_verified"`
	Followers      []string  `gorm:"-" json:"followers" bson:"followers"`
	Following      []string  `gorm:"-" json:"following" bson:"following"`
	CreatedAt      time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"updated_at"`
}

// Summary is the public projection embedded in posts, comments and lists.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:             u.ID,
		Username:       u.Username,
		FullName:       u.FullName,
		ProfilePicture: u.ProfilePicture,
		Location:       u.Location,
		IsVerified:     u.IsVerified,
		TotalTrips:     u.TotalTrips,
	}
}

type UserSummary struct {
	ID             string `json:"id" bson:"_id"`
	Username       string `json:"username" bson:"username"`
	FullName       string `json:"fullName" bson:"full_name"`
	ProfilePicture string `json:"profilePicture" bson:"profile_picture"`
	Location       string `json:"location,omitempty" bson:"location"`
	IsVerified     bool   `json:"isVerified" bson:"is_verified"`
	TotalTrips     int    `json:"totalTrips" bson:"total_trips"`
}

// Profile is a user page as seen by a particular viewer.
type Profile struct {
	User           UserSummary `json:"user"`
	Bio            string      `json:"bio"`
	FollowersCount int         `json:"followersCount"`
	FollowingCount int         `json:"followingCount"`
	IsFollowing    bool        `json:"isFollowing"`
	CreatedAt      time.Time   `json:"createdAt"`
	Posts          []Post      `json:"posts"`
}
