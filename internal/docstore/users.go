package docstore

import (
	"context"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/emilythestrangee/tripshare/backend/internal/apperr"
	"github.com/emilythestrangee/tripshare/backend/internal/models"
	"github.com/emilythestrangee/tripshare/backend/internal/store"
)

var summaryProjection = bson.M{
	"username":        1,
	"full_name":       1,
	"profile_picture": 1,
	"location":        1,
	"is_verified":     1,
	"total_trips":     1,
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, translate(err, "User", "get user")
	}
	if user.Followers == nil {
		user.Followers = []string{}
	}
	if user.Following == nil {
		user.Following = []string{}
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = store.NewID()
	}
	now := store.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Followers = []string{}
	user.Following = []string{}
	_, err := s.users.InsertOne(ctx, user)
	return translate(err, "User", "create user")
}

func (s *Store) Summaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	out := make(map[string]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	opts := options.Find().SetProjection(summaryProjection)
	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, translate(err, "User", "load users")
	}
	var users []models.UserSummary
	if err := cur.All(ctx, &users); err != nil {
		return nil, translate(err, "User", "load users")
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// ToggleFollow reads the edge and flips both arrays inside one transaction.
// A concurrent toggle on either document aborts one of the two, and the
// retried attempt sees the committed state.
func (s *Store) ToggleFollow(ctx context.Context, followerID, followeeID string) (models.FollowResult, error) {
	if followerID == followeeID {
		return models.FollowResult{}, apperr.ErrSelfFollow
	}
	var res models.FollowResult
	err := s.executeTransaction(ctx, func(ctx mongo.SessionContext) (any, error) {
		var follower, followee models.User
		edgeOnly := options.FindOne().SetProjection(bson.M{"following": 1, "followers": 1})
		if err := s.users.FindOne(ctx, bson.M{"_id": followerID}, edgeOnly).Decode(&follower); err != nil {
			return nil, translate(err, "User", "toggle follow")
		}
		if err := s.users.FindOne(ctx, bson.M{"_id": followeeID}, edgeOnly).Decode(&followee); err != nil {
			return nil, translate(err, "User", "toggle follow")
		}

		op := "$addToSet"
		following := !slices.Contains(follower.Following, followeeID)
		if !following {
			op = "$pull"
		}
		now := store.Now()
		if _, err := s.users.UpdateOne(ctx, bson.M{"_id": followerID}, bson.M{
			op:     bson.M{"following": followeeID},
			"$set": bson.M{"updated_at": now},
		}); err != nil {
			return nil, err
		}
		if _, err := s.users.UpdateOne(ctx, bson.M{"_id": followeeID}, bson.M{
			op:     bson.M{"followers": followerID},
			"$set": bson.M{"updated_at": now},
		}); err != nil {
			return nil, err
		}

		count := len(followee.Followers)
		has := slices.Contains(followee.Followers, followerID)
		switch {
		case following && !has:
			count++
		case !following && has:
			count--
		}
		res = models.FollowResult{Following: following, FollowersCount: count}
		return nil, nil
	})
	if err != nil {
		return models.FollowResult{}, translate(err, "User", "toggle follow")
	}
	return res, nil
}

func (s *Store) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	n, err := s.users.CountDocuments(ctx, bson.M{"_id": followerID, "following": followeeID})
	if err != nil {
		return false, translate(err, "User", "check follow")
	}
	return n > 0, nil
}

func (s *Store) FollowingIDs(ctx context.Context, userID string) ([]string, error) {
	var user models.User
	opts := options.FindOne().SetProjection(bson.M{"following": 1})
	err := s.users.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&user)
	if err = translate(err, "User", "list following"); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return []string{}, nil
		}
		return nil, err
	}
	if user.Following == nil {
		return []string{}, nil
	}
	return user.Following, nil
}

func (s *Store) Followers(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return s.edgeSummaries(ctx, userID, "followers")
}

func (s *Store) Following(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return s.edgeSummaries(ctx, userID, "following")
}

func (s *Store) edgeSummaries(ctx context.Context, userID, field string) ([]models.UserSummary, error) {
	var user models.User
	opts := options.FindOne().SetProjection(bson.M{field: 1})
	if err := s.users.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&user); err != nil {
		return nil, translate(err, "User", "get user")
	}
	ids := user.Followers
	if field == "following" {
		ids = user.Following
	}
	byID, err := s.Summaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) SearchUsers(ctx context.Context, text string, page models.Page) ([]models.UserSummary, int64, error) {
	re := containsRegex(text)
	filter := bson.M{"$or": bson.A{
		bson.M{"username": re},
		bson.M{"full_name": re},
		bson.M{"location": re},
	}}
	total, err := s.users.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, translate(err, "User", "search users")
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$addFields", Value: bson.M{"username_key": bson.M{"$toLower": "$username"}}}},
		{{Key: "$sort", Value: bson.D{{Key: "username_key", Value: 1}, {Key: "_id", Value: 1}}}},
		{{Key: "$skip", Value: int64(page.Offset())}},
		{{Key: "$limit", Value: int64(page.Size)}},
		{{Key: "$project", Value: summaryProjection}},
	}
	cur, err := s.users.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, translate(err, "User", "search users")
	}
	users := []models.UserSummary{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, 0, translate(err, "User", "search users")
	}
	return users, total, nil
}
