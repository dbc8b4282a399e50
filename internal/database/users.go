package database

import (
	"context"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/tripshare/backend/internal/apperr"
	"github.com/emilythestrangee/tripshare/backend/internal/models"
	"github.com/emilythestrangee/tripshare/backend/internal/store"
)

func (s *service) GetUser(ctx context.Context, id string) (*models.User, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.Where("id = ?", id).Take(&user).Error; err != nil {
		return nil, translate(err, "User", "get user")
	}
	user.Followers = []string{}
	user.Following = []string{}
	err := db.Model(&models.Follow{}).
		Where("following_id = ?", id).
		Order("created_at").
		Pluck("follower_id", &user.Followers).Error
	if err != nil {
		return nil, translate(err, "User", "get followers")
	}
	err = db.Model(&models.Follow{}).
		Where("follower_id = ?", id).
		Order("created_at").
		Pluck("following_id", &user.Following).Error
	if err != nil {
		return nil, translate(err, "User", "get following")
	}
	return &user, nil
}

func (s *service) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = store.NewID()
	}
	err := s.db.WithContext(ctx).Create(user).Error
	return translate(err, "User", "create user")
}

func (s *service) Summaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	out := make(map[string]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, translate(err, "User", "load users")
	}
	for i := range users {
		out[users[i].ID] = users[i].Summary()
	}
	return out, nil
}

// ToggleFollow locks both user rows in id order so that concurrent toggles on
// the same pair, in either direction, cannot deadlock or interleave.
func (s *service) ToggleFollow(ctx context.Context, followerID, followeeID string) (models.FollowResult, error) {
	if followerID == followeeID {
		return models.FollowResult{}, apperr.ErrSelfFollow
	}
	var res models.FollowResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := []string{followerID, followeeID}
		sort.Strings(ids)
		for _, id := range ids {
			var u models.User
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Select("id").
				Where("id = ?", id).
				Take(&u).Error
			if err != nil {
				return translate(err, "User", "lock user")
			}
		}

		del := tx.Where("follower_id = ? AND following_id = ?", followerID, followeeID).Delete(&models.Follow{})
		if del.Error != nil {
			return del.Error
		}
		if del.RowsAffected == 0 {
			edge := models.Follow{FollowerID: followerID, FollowingID: followeeID, CreatedAt: store.Now()}
			if err := tx.Omit(clause.Associations).Create(&edge).Error; err != nil {
				return err
			}
			res.Following = true
		}

		var n int64
		if err := tx.Model(&models.Follow{}).Where("following_id = ?", followeeID).Count(&n).Error; err != nil {
			return err
		}
		res.FollowersCount = int(n)
		return nil
	})
	if err != nil {
		return models.FollowResult{}, translate(err, "User", "toggle follow")
	}
	return res, nil
}

func (s *service) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followeeID).
		Count(&n).Error
	if err = translate(err, "User", "check follow"); err != nil {
		// A malformed id cannot follow anyone.
		if apperr.KindOf(err) == apperr.KindNotFound {
			return false, nil
		}
		return false, err
	}
	return n > 0, nil
}

func (s *service) FollowingIDs(ctx context.Context, userID string) ([]string, error) {
	ids := []string{}
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Pluck("following_id", &ids).Error
	if err = translate(err, "User", "list following"); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return []string{}, nil
		}
		return nil, err
	}
	return ids, nil
}

func (s *service) Followers(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return s.edgeSummaries(ctx, userID, "user_follows.follower_id", "user_follows.following_id")
}

func (s *service) Following(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return s.edgeSummaries(ctx, userID, "user_follows.following_id", "user_follows.follower_id")
}

// edgeSummaries lists the users on the other end of userID's edges. joinCol
// is the edge column that points at the listed users.
func (s *service) edgeSummaries(ctx context.Context, userID, joinCol, anchorCol string) ([]models.UserSummary, error) {
	db := s.db.WithContext(ctx)
	if err := db.Select("id").Where("id = ?", userID).Take(&models.User{}).Error; err != nil {
		return nil, translate(err, "User", "get user")
	}
	var users []models.User
	err := db.Model(&models.User{}).
		Joins("JOIN user_follows ON "+joinCol+" = users.id").
		Where(anchorCol+" = ?", userID).
		Order("user_follows.created_at").
		Find(&users).Error
	if err != nil {
		return nil, translate(err, "User", "list follows")
	}
	out := make([]models.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary())
	}
	return out, nil
}

func (s *service) SearchUsers(ctx context.Context, text string, page models.Page) ([]models.UserSummary, int64, error) {
	p := containsPattern(text)
	base := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username ILIKE ? OR full_name ILIKE ? OR location ILIKE ?", p, p, p).
		Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, translate(err, "User", "search users")
	}
	var users []models.User
	err := base.Order(`lower(username) COLLATE "C", id`).Offset(page.Offset()).Limit(page.Size).Find(&users).Error
	if err != nil {
		return nil, 0, translate(err, "User", "search users")
	}
	out := make([]models.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary())
	}
	return out, total, nil
}
