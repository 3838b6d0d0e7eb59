package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const collectionName = "crawled_data"

// MongoStore keeps documents in one MongoDB collection. Embedding search uses an
// Atlas $vectorSearch index over the embedding field.
type MongoStore struct {
	Client      *mongo.Client
	Collection  *mongo.Collection
	vectorIndex string
	now         func() time.Time
}

func NewMongo(ctx context.Context, uri, database, vectorIndex string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongodb uri is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	s := NewMongoFromCollection(client.Database(database).Collection(collectionName), vectorIndex)
	s.Client = client
	return s, nil
}

// NewMongoFromCollection wraps an existing collection. The caller owns the client.
func NewMongoFromCollection(coll *mongo.Collection, vectorIndex string) *MongoStore {
	return &MongoStore{
		Collection:  coll,
		vectorIndex: vectorIndex,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MongoStore) Insert(ctx context.Context, d *Document) error {
	prepareInsert(d, s.now())
	if _, err := s.Collection.InsertOne(ctx, d); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Document, error) {
	var d Document
	err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &d, nil
}

func (s *MongoStore) List(ctx context.Context, f Filter) ([]Document, error) {
	filter := bson.M{}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.SourceType != "" {
		filter["source_type"] = f.SourceType
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(f.limit())).
		SetSkip(int64(max(f.Offset, 0))).
		SetProjection(bson.M{"embedding": 0})
	return s.find(ctx, filter, opts)
}

func (s *MongoStore) Update(ctx context.Context, id string, p Patch) (*Document, error) {
	set := bson.M{"updated_at": s.now()}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Category != nil {
		set["category"] = *p.Category
	}
	if p.Content != nil {
		content := CapContent(*p.Content)
		set["content"] = content
		set["word_count"] = *WordCount(content)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d Document
	err := s.Collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	return &d, nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SearchContent(ctx context.Context, keyword string, limit int) ([]Document, error) {
	filter := bson.M{"content": primitive.Regex{Pattern: regexp.QuoteMeta(keyword), Options: "i"}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"embedding": 0})
	return s.find(ctx, filter, opts)
}

func (s *MongoStore) MatchEmbedding(ctx context.Context, vec []float32, threshold float64, count int) ([]Document, error) {
	if len(vec) == 0 {
		return nil, errors.New("query embedding is required")
	}
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: s.vectorIndex},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: vec},
			{Key: "numCandidates", Value: count * 20},
			{Key: "limit", Value: count},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "score", Value: bson.D{{Key: "$gt", Value: threshold}}}}}},
		{{Key: "$project", Value: bson.D{{Key: "embedding", Value: 0}}}},
	}
	cur, err := s.Collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer cur.Close(ctx)

	var docs []Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode vector search: %w", err)
	}
	return docs, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s.Client == nil {
		return nil
	}
	return s.Client.Disconnect(ctx)
}

func (s *MongoStore) find(ctx context.Context, filter any, opts *options.FindOptions) ([]Document, error) {
	cur, err := s.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	defer cur.Close(ctx)

	var docs []Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return docs, nil
}
