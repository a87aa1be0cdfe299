package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"zoomgo/internal/repositories/interfaces"
	"zoomgo/pkg/database"
	"zoomgo/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// documentStore keeps every record as a Mongo document with a hex string
// _id and a _createdAt timestamp. Watch needs a replica set for change streams.
type documentStore struct {
	db     *mongo.Database
	logger *logger.Logger
}

func NewDocumentStore(db *mongo.Database, log *logger.Logger) interfaces.DocumentStore {
	if log == nil {
		log = logger.Discard()
	}
	return &documentStore{
		db:     db,
		logger: log,
	}
}

func (s *documentStore) Create(ctx context.Context, collection string, fields interfaces.Fields) (interfaces.Document, error) {
	id := primitive.NewObjectID().Hex()
	// BSON dates keep millisecond precision
	createdAt := time.Now().UTC().Truncate(time.Millisecond)

	doc := bson.M{}
	for k, v := range fields {
		doc[k] = v
	}
	doc["_id"] = id
	doc[database.CreatedAtField] = createdAt

	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return interfaces.Document{}, fmt.Errorf("failed to insert into %s: %w", collection, err)
	}

	return interfaces.Document{ID: id, Fields: copyFields(fields), CreatedAt: createdAt}, nil
}

func (s *documentStore) Get(ctx context.Context, collection, id string) (interfaces.Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return interfaces.Document{}, interfaces.ErrDocumentNotFound
		}
		return interfaces.Document{}, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}

	return decodeDocument(raw), nil
}

func (s *documentStore) Set(ctx context.Context, collection, id string, fields interfaces.Fields) error {
	update := bson.M{
		"$setOnInsert": bson.M{database.CreatedAtField: time.Now().UTC().Truncate(time.Millisecond)},
	}
	if len(fields) > 0 {
		update["$set"] = bson.M(fields)
	}

	_, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *documentStore) Update(ctx context.Context, collection, id string, fields interfaces.Fields) error {
	result, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	if result.MatchedCount == 0 {
		return interfaces.ErrDocumentNotFound
	}
	return nil
}

func (s *documentStore) Query(ctx context.Context, collection string, predicate interfaces.Predicate) ([]interfaces.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: database.CreatedAtField, Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.db.Collection(collection).Find(ctx, bson.M{predicate.Field: predicate.Value}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s where %s: %w", collection, predicate, err)
	}
	defer cursor.Close(ctx)

	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", collection, err)
	}

	docs := make([]interfaces.Document, len(raws))
	for i, raw := range raws {
		docs[i] = decodeDocument(raw)
	}
	return docs, nil
}

// Watch opens the change stream before the initial read so no change
// between the two is lost.
func (s *documentStore) Watch(ctx context.Context, collection string, predicate interfaces.Predicate, fn interfaces.WatchFunc) (interfaces.UnsubscribeFunc, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"fullDocument." + predicate.Field: predicate.Value}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	watchCtx, cancel := context.WithCancel(ctx)
	stream, err := s.db.Collection(collection).Watch(watchCtx, pipeline, opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open change stream on %s: %w", collection, err)
	}

	initial, err := s.Query(watchCtx, collection, predicate)
	if err != nil {
		cancel()
		_ = stream.Close(context.Background())
		return nil, err
	}
	fn(initial)

	go func() {
		defer stream.Close(context.Background())

		log := s.logger.WithField("collection", collection).WithField("predicate", predicate.String())
		for stream.Next(watchCtx) {
			docs, err := s.Query(watchCtx, collection, predicate)
			if err != nil {
				if watchCtx.Err() == nil {
					log.WithError(err).Error("Failed to refresh watched documents")
				}
				return
			}
			if watchCtx.Err() != nil {
				return
			}
			fn(docs)
		}
		if err := stream.Err(); err != nil && watchCtx.Err() == nil {
			log.WithError(err).Error("Change stream ended")
		}
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
	}, nil
}

func decodeDocument(raw bson.M) interfaces.Document {
	doc := interfaces.Document{Fields: interfaces.Fields{}}
	for k, v := range raw {
		switch k {
		case "_id":
			doc.ID = fmt.Sprint(v)
		case database.CreatedAtField:
			if dt, ok := v.(primitive.DateTime); ok {
				doc.CreatedAt = dt.Time().UTC()
			}
		default:
			doc.Fields[k] = normalizeValue(v)
		}
	}
	return doc
}

func normalizeValue(v interface{}) interface{} {
	switch value := v.(type) {
	case primitive.DateTime:
		return value.Time().UTC()
	case int32:
		return int64(value)
	default:
		return v
	}
}

func copyFields(fields interfaces.Fields) interfaces.Fields {
	copied := make(interfaces.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return copied
}
