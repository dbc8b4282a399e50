package database

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/tripshare/backend/internal/apperr"
	"github.com/emilythestrangee/tripshare/backend/internal/models"
	"github.com/emilythestrangee/tripshare/backend/internal/store"
	"github.com/emilythestrangee/tripshare/backend/internal/visibility"
)

func preloadInteractions(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Likes", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, user_id") }).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }).
		Preload("Shares", func(db *gorm.DB) *gorm.DB { return db.Order("shared_at, user_id") })
}

func (s *service) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := preloadInteractions(s.db.WithContext(ctx)).
		Where("id = ? AND is_active = ?", id, true).
		Take(&post).Error
	if err != nil {
		return nil, translate(err, "Post", "get post")
	}
	return &post, nil
}

func (s *service) CreatePost(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = store.NewID()
	}
	post.Active = true
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ?", post.AuthorID).
			UpdateColumn("total_trips", gorm.Expr("total_trips + 1"))
		if res.Error != nil {
			return translate(res.Error, "User", "create post")
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("User")
		}
		return tx.Omit(clause.Associations).Create(post).Error
	})
	return translate(err, "Post", "create post")
}

// lockActivePost takes the row lock that serializes every mutation of a post.
func lockActivePost(tx *gorm.DB, postID string) (*models.Post, error) {
	var post models.Post
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "author_id", "is_active").
		Where("id = ? AND is_active = ?", postID, true).
		Take(&post).Error
	if err != nil {
		return nil, translate(err, "Post", "lock post")
	}
	return &post, nil
}

func (s *service) ToggleLike(ctx context.Context, postID, userID string) (models.LikeResult, error) {
	var res models.LikeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockActivePost(tx, postID); err != nil {
			return err
		}
		del := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.Like{})
		if del.Error != nil {
			return del.Error
		}
		if del.RowsAffected == 0 {
			like := models.Like{PostID: postID, UserID: userID, CreatedAt: store.Now()}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
				return err
			}
			res.Liked = true
		}
		var n int64
		if err := tx.Model(&models.Like{}).Where("post_id = ?", postID).Count(&n).Error; err != nil {
			return err
		}
		res.LikeCount = int(n)
		return nil
	})
	if err != nil {
		return models.LikeResult{}, translate(err, "Post", "toggle like")
	}
	return res, nil
}

func (s *service) AppendComment(ctx context.Context, postID string, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = store.NewID()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = store.Now()
	}
	comment.PostID = postID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockActivePost(tx, postID); err != nil {
			return err
		}
		return tx.Create(comment).Error
	})
	return translate(err, "Post", "append comment")
}

func (s *service) AddShareOnce(ctx context.Context, postID, userID string) (models.ShareResult, error) {
	res := models.ShareResult{Shared: true}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockActivePost(tx, postID); err != nil {
			return err
		}
		share := models.Share{PostID: postID, UserID: userID, SharedAt: store.Now()}
		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&share)
		if ins.Error != nil {
			return ins.Error
		}
		res.Recorded = ins.RowsAffected == 1
		var n int64
		if err := tx.Model(&models.Share{}).Where("post_id = ?", postID).Count(&n).Error; err != nil {
			return err
		}
		res.ShareCount = int(n)
		return nil
	})
	if err != nil {
		return models.ShareResult{}, translate(err, "Post", "share post")
	}
	return res, nil
}

func (s *service) DeactivatePost(ctx context.Context, postID, authorID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := lockActivePost(tx, postID)
		if err != nil {
			return err
		}
		if post.AuthorID != authorID {
			return apperr.Forbidden("You can only delete your own posts")
		}
		return tx.Model(&models.Post{}).
			Where("id = ?", postID).
			Updates(map[string]any{"is_active": false, "updated_at": store.Now()}).Error
	})
	return translate(err, "Post", "delete post")
}

func (s *service) ListPosts(ctx context.Context, q store.PostQuery) ([]models.Post, int64, error) {
	var (
		posts []models.Post
		total int64
	)
	// One snapshot per page so the count and the rows agree.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		base := scopedPosts(tx, q).Session(&gorm.Session{})
		if err := base.Count(&total).Error; err != nil {
			return err
		}
		return preloadInteractions(base).
			Order("created_at DESC, id DESC").
			Offset(q.Page.Offset()).
			Limit(q.Page.Size).
			Find(&posts).Error
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, 0, translate(err, "Post", "list posts")
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return posts, total, nil
}

func scopedPosts(tx *gorm.DB, q store.PostQuery) *gorm.DB {
	db := tx.Model(&models.Post{}).Where("is_active = ?", true)
	if q.AuthorID != "" {
		db = db.Where("author_id = ?", q.AuthorID)
	}
	db = db.Where(visibilityScope(tx, q.Viewer))
	if q.Text != "" {
		p := containsPattern(q.Text)
		db = db.Where(
			"title ILIKE ? OR description ILIKE ? OR location_name ILIKE ? OR location_city ILIKE ? OR location_country ILIKE ? "+
				"OR EXISTS (SELECT 1 FROM jsonb_array_elements_text(tags) AS t(tag) WHERE t.tag ILIKE ?)",
			p, p, p, p, p, p,
		)
	}
	return db
}

// visibilityScope is the SQL form of visibility.Decide for active posts.
func visibilityScope(tx *gorm.DB, v visibility.Viewer) *gorm.DB {
	scope := tx.Where("visibility = ?", models.VisibilityPublic)
	if v.IsAnonymous() {
		return scope
	}
	scope = scope.Or("author_id = ?", v.ID)
	if followed := v.FollowedAuthors(); len(followed) > 0 {
		scope = scope.Or("visibility = ? AND author_id IN ?", models.VisibilityFollowers, followed)
	}
	return scope
}
