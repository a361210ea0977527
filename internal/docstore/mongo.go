package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"genstudio/internal/domain"
)

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo connection uri is empty")
	}
	clientOptions := options.Client().ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetConnectTimeout(5 * time.Second).
		SetSocketTimeout(30 * time.Second)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// MongoStore implements Store on a MongoDB database. Document ids are stored in _id.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) Get(ctx context.Context, collection, id string, out any) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *MongoStore) Set(ctx context.Context, collection, id string, doc any, merge bool) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	coll := s.db.Collection(collection)
	filter := bson.M{"_id": id}
	var err error
	if merge {
		_, err = coll.UpdateOne(ctx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	} else {
		_, err = coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	}
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) ListVersions(ctx context.Context, stageType, promptID string) ([]domain.PromptVersion, error) {
	opts := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})
	cur, err := s.db.Collection(CollectionVersions).Find(ctx, bson.M{"stageType": stageType, "promptId": promptID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list versions %s/%s: %w", stageType, promptID, err)
	}
	var versions []domain.PromptVersion
	if err := cur.All(ctx, &versions); err != nil {
		return nil, fmt.Errorf("decode versions %s/%s: %w", stageType, promptID, err)
	}
	return versions, nil
}

func (s *MongoStore) FindAll(ctx context.Context, collection string, match map[string]any, out any) error {
	filter := bson.M{}
	for k, v := range match {
		filter[k] = v
	}
	cur, err := s.db.Collection(collection).Find(ctx, filter)
	if err != nil {
		return fmt.Errorf("find %s: %w", collection, err)
	}
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", collection, err)
	}
	return nil
}
