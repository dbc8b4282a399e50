package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/emilythestrangee/tripshare/backend/internal/apperr"
	"github.com/emilythestrangee/tripshare/backend/internal/models"
	"github.com/emilythestrangee/tripshare/backend/internal/store"
	"github.com/emilythestrangee/tripshare/backend/internal/visibility"
)

func activePost(id string) bson.M {
	return bson.M{"_id": id, "is_active": true}
}

// orEmpty reads an array field that may be missing or null as empty.
func orEmpty(field string) bson.M {
	return bson.M{"$ifNull": bson.A{"$" + field, bson.A{}}}
}

// literal keeps caller supplied values from being read as field paths.
func literal(v any) bson.M {
	return bson.M{"$literal": v}
}

func (s *Store) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	if err := s.posts.FindOne(ctx, activePost(id)).Decode(&post); err != nil {
		return nil, translate(err, "Post", "get post")
	}
	return &post, nil
}

func (s *Store) CreatePost(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = store.NewID()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = store.Now()
	}
	post.UpdatedAt = post.CreatedAt
	post.Active = true
	if post.Media == nil {
		post.Media = []models.MediaItem{}
	}
	if post.Tags == nil {
		post.Tags = []string{}
	}
	post.Likes = []models.Like{}
	post.Comments = []models.Comment{}
	post.Shares = []models.Share{}

	err := s.executeTransaction(ctx, func(ctx mongo.SessionContext) (any, error) {
		res, err := s.users.UpdateOne(ctx,
			bson.M{"_id": post.AuthorID},
			bson.M{"$inc": bson.M{"total_trips": 1}},
		)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, apperr.NotFound("User")
		}
		return s.posts.InsertOne(ctx, post)
	})
	return translate(err, "Post", "create post")
}

// ToggleLike decides and applies the toggle in one pipeline update, so the
// membership test runs against the stored array.
func (s *Store) ToggleLike(ctx context.Context, postID, userID string) (models.LikeResult, error) {
	like := models.Like{UserID: userID, CreatedAt: store.Now()}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"likes": bson.M{
				"$cond": bson.M{
					"if": bson.M{"$in": bson.A{literal(userID), orEmpty("likes.user_id")}},
					"then": bson.M{"$filter": bson.M{
						"input": orEmpty("likes"),
						"cond":  bson.M{"$ne": bson.A{"$$this.user_id", literal(userID)}},
					}},
					"else": bson.M{"$concatArrays": bson.A{orEmpty("likes"), bson.A{literal(like)}}},
				},
			},
		}}},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"likes": 1})

	var post models.Post
	err := s.posts.FindOneAndUpdate(ctx, activePost(postID), update, opts).Decode(&post)
	if err != nil {
		return models.LikeResult{}, translate(err, "Post", "toggle like")
	}
	return models.LikeResult{Liked: post.LikedBy(userID), LikeCount: post.LikeCount()}, nil
}

func (s *Store) AppendComment(ctx context.Context, postID string, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = store.NewID()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = store.Now()
	}
	comment.PostID = postID
	res, err := s.posts.UpdateOne(ctx, activePost(postID), bson.M{"$push": bson.M{"comments": comment}})
	if err != nil {
		return translate(err, "Post", "append comment")
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("Post")
	}
	return nil
}

// AddShareOnce appends only when the user is absent. The pre-image tells
// whether this call was the one that recorded the share.
func (s *Store) AddShareOnce(ctx context.Context, postID, userID string) (models.ShareResult, error) {
	share := models.Share{UserID: userID, SharedAt: store.Now()}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"shares": bson.M{
				"$cond": bson.M{
					"if":   bson.M{"$in": bson.A{literal(userID), orEmpty("shares.user_id")}},
					"then": orEmpty("shares"),
					"else": bson.M{"$concatArrays": bson.A{orEmpty("shares"), bson.A{literal(share)}}},
				},
			},
		}}},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(bson.M{"shares": 1})

	var before models.Post
	err := s.posts.FindOneAndUpdate(ctx, activePost(postID), update, opts).Decode(&before)
	if err != nil {
		return models.ShareResult{}, translate(err, "Post", "share post")
	}

	res := models.ShareResult{Shared: true, ShareCount: before.ShareCount()}
	for _, sh := range before.Shares {
		if sh.UserID == userID {
			return res, nil
		}
	}
	res.Recorded = true
	res.ShareCount++
	return res, nil
}

func (s *Store) DeactivatePost(ctx context.Context, postID, authorID string) error {
	var post models.Post
	opts := options.FindOne().SetProjection(bson.M{"author_id": 1})
	if err := s.posts.FindOne(ctx, activePost(postID), opts).Decode(&post); err != nil {
		return translate(err, "Post", "delete post")
	}
	if post.AuthorID != authorID {
		return apperr.Forbidden("You can only delete your own posts")
	}
	filter := activePost(postID)
	filter["author_id"] = authorID
	res, err := s.posts.UpdateOne(ctx, filter, bson.M{
		"$set": bson.M{"is_active": false, "updated_at": store.Now()},
	})
	if err != nil {
		return translate(err, "Post", "delete post")
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("Post")
	}
	return nil
}

// ListPosts reads the count and the page from one snapshot.
func (s *Store) ListPosts(ctx context.Context, q store.PostQuery) ([]models.Post, int64, error) {
	filter := postFilter(q)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(q.Page.Offset())).
		SetLimit(int64(q.Page.Size))

	var (
		posts []models.Post
		total int64
	)
	err := s.executeTransaction(ctx, func(ctx mongo.SessionContext) (any, error) {
		n, err := s.posts.CountDocuments(ctx, filter)
		if err != nil {
			return nil, err
		}
		cur, err := s.posts.Find(ctx, filter, opts)
		if err != nil {
			return nil, err
		}
		page := []models.Post{}
		if err := cur.All(ctx, &page); err != nil {
			return nil, err
		}
		posts, total = page, n
		return nil, nil
	}, snapshotRead())
	if err != nil {
		return nil, 0, translate(err, "Post", "list posts")
	}
	return posts, total, nil
}

func postFilter(q store.PostQuery) bson.M {
	clauses := bson.A{visibilityFilter(q.Viewer)}
	if q.Text != "" {
		re := containsRegex(q.Text)
		clauses = append(clauses, bson.M{"$or": bson.A{
			bson.M{"title": re},
			bson.M{"description": re},
			bson.M{"location.name": re},
			bson.M{"location.city": re},
			bson.M{"location.country": re},
			bson.M{"tags": re},
		}})
	}
	filter := bson.M{"is_active": true, "$and": clauses}
	if q.AuthorID != "" {
		filter["author_id"] = q.AuthorID
	}
	return filter
}

// visibilityFilter is the query form of visibility.Decide for active posts.
func visibilityFilter(v visibility.Viewer) bson.M {
	if v.IsAnonymous() {
		return bson.M{"visibility": models.VisibilityPublic}
	}
	return bson.M{"$or": bson.A{
		bson.M{"visibility": models.VisibilityPublic},
		bson.M{"author_id": v.ID},
		bson.M{
			"visibility": models.VisibilityFollowers,
			"author_id":  bson.M{"$in": v.FollowedAuthors()},
		},
	}}
}
