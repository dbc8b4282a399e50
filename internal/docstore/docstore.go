// Package docstore is the MongoDB store. Posts embed their likes, comments
// and shares; users embed both sides of the follow graph.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/emilythestrangee/tripshare/backend/internal/apperr"
	"github.com/emilythestrangee/tripshare/backend/internal/store"
)

const (
	postsCollection = "posts"
	usersCollection = "users"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	posts  *mongo.Collection
	users  *mongo.Collection
}

var _ store.Store = (*Store)(nil)

// New connects to uri. Transactions need a replica set or a sharded cluster.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongo: %w", err)
	}
	s, err := Open(ctx, client, database)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// Open uses an already connected client and ensures the indexes exist.
func Open(ctx context.Context, client *mongo.Client, database string) (*Store, error) {
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("error pinging mongo: %w", err)
	}
	db := client.Database(database)
	s := &Store{
		client: client,
		db:     db,
		posts:  db.Collection(postsCollection),
		users:  db.Collection(usersCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	log.WithField("database", database).Info("mongo connected")
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "author_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "visibility", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("error creating post indexes: %w", err)
	}
	_, err = s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("error creating user indexes: %w", err)
	}
	return nil
}

// executeTransaction runs operation in a majority-committed transaction.
// WithTransaction retries it on transient conflicts, so operation must
// derive every decision from what it reads through ctx.
func (s *Store) executeTransaction(ctx context.Context, operation func(ctx mongo.SessionContext) (any, error), opts ...*options.TransactionOptions) error {
	txnOptions := options.Transaction().SetWriteConcern(writeconcern.Majority())
	txnOptions = options.MergeTransactionOptions(append([]*options.TransactionOptions{txnOptions}, opts...)...)

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("error starting session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, operation, txnOptions)
	return err
}

func snapshotRead() *options.TransactionOptions {
	return options.Transaction().SetReadConcern(readconcern.Snapshot())
}

func (s *Store) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stats := map[string]string{"backend": "mongo"}
	if err := s.client.Ping(ctx, nil); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("mongo down: %v", err)
		return stats
	}
	stats["status"] = "up"
	stats["message"] = "It's healthy"
	return stats
}

func (s *Store) Close() error {
	log.Infof("Disconnected from mongo database: %s", s.db.Name())
	return s.client.Disconnect(context.Background())
}

func translate(err error, entity, op string) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound(entity)
	}
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Conflict(entity+" already exists", err)
	}
	return apperr.Storage(op, err)
}

// containsRegex matches text literally anywhere, ignoring case.
func containsRegex(text string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(strings.TrimSpace(text)), "$options": "i"}
}
