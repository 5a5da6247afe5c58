package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Sopamo/taletwo/pkg/database"
	"github.com/Sopamo/taletwo/pkg/models"
)

// MongoStore is the production BookStore. All CAS operations ride on
// single-document conditional updates, so MatchedCount tells the caller
// whether it won.
type MongoStore struct {
	books *mongo.Collection
}

// NewMongo builds a MongoStore on the given database client.
func NewMongo(client *database.Client) *MongoStore {
	return &MongoStore{books: client.Books()}
}

func cachePath(key string) string   { return "story.branchCache." + key }
func cacheAtPath(key string) string { return "story.branchCacheAt." + key }
func pendingPath(key string) string { return "story.branchPending." + key }

func (s *MongoStore) updateOne(ctx context.Context, filter, update bson.M) (int64, error) {
	res, err := s.books.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (s *MongoStore) Insert(ctx context.Context, book *models.Book) error {
	if _, err := s.books.InsertOne(ctx, book); err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*models.Book, error) {
	var book models.Book
	if err := s.books.FindOne(ctx, bson.M{"_id": id}).Decode(&book); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load book: %w", err)
	}
	return &book, nil
}

func (s *MongoStore) InitStory(ctx context.Context, bookID string, story *models.StoryState) (bool, error) {
	filter := bson.M{"_id": bookID, "story": bson.M{"$exists": false}}
	update := bson.M{"$set": bson.M{"story": story, "updatedAt": time.Now().UTC()}}
	matched, err := s.updateOne(ctx, filter, update)
	return matched > 0, err
}

func (s *MongoStore) ApplyCommit(ctx context.Context, bookID string, commit StoryCommit) error {
	update := bson.M{"$set": bson.M{
		"story.pages":         commit.Pages,
		"story.index":         commit.Index,
		"story.summary":       commit.Summary,
		"story.notes":         commit.Notes,
		"story.turn":          commit.Turn,
		"story.pendingVerify": commit.PendingVerify,
		"updatedAt":           time.Now().UTC(),
	}}
	matched, err := s.updateOne(ctx, bson.M{"_id": bookID}, update)
	if err != nil {
		return fmt.Errorf("apply commit: %w", err)
	}
	if matched == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SetPendingVerify(ctx context.Context, bookID string, pv *models.PendingVerify) error {
	update := bson.M{"$set": bson.M{"story.pendingVerify": pv}}
	matched, err := s.updateOne(ctx, bson.M{"_id": bookID}, update)
	if err != nil {
		return err
	}
	if matched == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SetPlan(ctx context.Context, bookID string, plan *models.Plan) error {
	update := bson.M{"$set": bson.M{"plan": plan, "updatedAt": time.Now().UTC()}}
	matched, err := s.updateOne(ctx, bson.M{"_id": bookID}, update)
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	if matched == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SetPlanCursor(ctx context.Context, bookID string, curPoint, curSub int) error {
	update := bson.M{"$set": bson.M{"plan.curPoint": curPoint, "plan.curSub": curSub}}
	matched, err := s.updateOne(ctx, bson.M{"_id": bookID}, update)
	if err != nil {
		return err
	}
	if matched == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SetPlanUpdating(ctx context.Context, bookID string, updating bool) error {
	update := bson.M{"$set": bson.M{"planUpdating": updating}}
	matched, err := s.updateOne(ctx, bson.M{"_id": bookID}, update)
	if err != nil {
		return err
	}
	if matched == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ClaimPending(ctx context.Context, bookID, key string, now time.Time) (bool, error) {
	filter := bson.M{
		"_id":            bookID,
		cachePath(key):   bson.M{"$exists": false},
		pendingPath(key): bson.M{"$exists": false},
	}
	update := bson.M{"$set": bson.M{pendingPath(key): now.UTC()}}
	matched, err := s.updateOne(ctx, filter, update)
	return matched > 0, err
}

func (s *MongoStore) ClaimPendingAllowStale(ctx context.Context, bookID, key string, now, staleBefore time.Time) (bool, error) {
	filter := bson.M{
		"_id":            bookID,
		pendingPath(key): bson.M{"$exists": false},
		"$or": []bson.M{
			{cachePath(key): bson.M{"$exists": false}},
			{cacheAtPath(key): bson.M{"$lt": staleBefore.UTC()}},
		},
	}
	update := bson.M{"$set": bson.M{pendingPath(key): now.UTC()}}
	matched, err := s.updateOne(ctx, filter, update)
	return matched > 0, err
}

func (s *MongoStore) TakeoverPending(ctx context.Context, bookID, key string, observed, now time.Time) (bool, error) {
	filter := bson.M{"_id": bookID, pendingPath(key): observed.UTC()}
	update := bson.M{"$set": bson.M{pendingPath(key): now.UTC()}}
	matched, err := s.updateOne(ctx, filter, update)
	return matched > 0, err
}

func (s *MongoStore) ReleasePending(ctx context.Context, bookID, key string) error {
	update := bson.M{"$unset": bson.M{pendingPath(key): ""}}
	_, err := s.updateOne(ctx, bson.M{"_id": bookID}, update)
	return err
}

func (s *MongoStore) SetBranch(ctx context.Context, bookID, key string, cand models.Candidate, at time.Time) error {
	update := bson.M{
		"$set":   bson.M{cachePath(key): cand, cacheAtPath(key): at.UTC()},
		"$unset": bson.M{pendingPath(key): ""},
	}
	matched, err := s.updateOne(ctx, bson.M{"_id": bookID}, update)
	if err != nil {
		return fmt.Errorf("set branch: %w", err)
	}
	if matched == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ClearStaleBranch(ctx context.Context, bookID, key string, observedAt time.Time) (bool, error) {
	filter := bson.M{"_id": bookID, cacheAtPath(key): observedAt.UTC()}
	update := bson.M{"$unset": bson.M{cachePath(key): "", cacheAtPath(key): ""}}
	matched, err := s.updateOne(ctx, filter, update)
	return matched > 0, err
}

func (s *MongoStore) UnsetBranches(ctx context.Context, bookID string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	unset := bson.M{}
	for _, key := range keys {
		unset[cachePath(key)] = ""
		unset[cacheAtPath(key)] = ""
	}
	_, err := s.updateOne(ctx, bson.M{"_id": bookID}, bson.M{"$unset": unset})
	return err
}

func (s *MongoStore) ListIdleBooks(ctx context.Context, updatedBefore time.Time, limit int) ([]*models.Book, error) {
	filter := bson.M{"updatedAt": bson.M{"$lt": updatedBefore.UTC()}}
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: 1}}).
		SetLimit(int64(limit))

	cur, err := s.books.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list idle books: %w", err)
	}
	defer func() {
		_ = cur.Close(ctx)
	}()

	var out []*models.Book
	for cur.Next(ctx) {
		var book models.Book
		if err := cur.Decode(&book); err != nil {
			return nil, err
		}
		out = append(out, &book)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
