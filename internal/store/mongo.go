package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/spboyer/promptbench/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RunsCollection is the MongoDB collection runs are stored in.
const RunsCollection = "runs"

// MongoStore persists runs in MongoDB. Partial updates are issued as $set
// operations on dotted paths, so concurrent writers to different result
// indices never overwrite each other.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to uri and verifies the connection.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, &PersistenceError{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, &PersistenceError{Op: "ping", Err: err}
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(RunsCollection),
	}, nil
}

// Close disconnects from the server.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Insert(ctx context.Context, run *models.Run) error {
	if _, err := s.coll.InsertOne(ctx, run); err != nil {
		return &PersistenceError{Op: "insert", RunID: run.ID, Err: err}
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&run)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "find", RunID: id, Err: err}
	}
	return &run, nil
}

func (s *MongoStore) UpdateFields(ctx context.Context, id string, fields models.Fields) error {
	if len(fields) == 0 {
		return nil
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return &PersistenceError{Op: "update", RunID: id, Err: err}
	}
	if res.MatchedCount == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, filter ListFilter) ([]*models.Run, error) {
	query := bson.M{}
	if filter.PromptID != "" {
		query["promptId"] = filter.PromptID
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(filter.limit()))

	cursor, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}

	runs := []*models.Run{}
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, &PersistenceError{Op: "list", Err: fmt.Errorf("decoding runs: %w", err)}
	}
	return runs, nil
}
