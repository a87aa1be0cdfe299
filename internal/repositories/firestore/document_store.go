package firestore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"zoomgo/internal/repositories/interfaces"
	"zoomgo/pkg/logger"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// documentStore maps collections and records one to one onto Firestore
// collections and documents. CreatedAt is the server create time.
type documentStore struct {
	client *firestore.Client
	logger *logger.Logger
}

func NewDocumentStore(client *firestore.Client, log *logger.Logger) interfaces.DocumentStore {
	if log == nil {
		log = logger.Discard()
	}
	return &documentStore{
		client: client,
		logger: log,
	}
}

func (s *documentStore) Create(ctx context.Context, collection string, fields interfaces.Fields) (interfaces.Document, error) {
	ref, result, err := s.client.Collection(collection).Add(ctx, map[string]interface{}(fields))
	if err != nil {
		return interfaces.Document{}, fmt.Errorf("failed to add to %s: %w", collection, err)
	}

	return interfaces.Document{ID: ref.ID, Fields: copyFields(fields), CreatedAt: result.UpdateTime.UTC()}, nil
}

func (s *documentStore) Get(ctx context.Context, collection, id string) (interfaces.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return interfaces.Document{}, interfaces.ErrDocumentNotFound
		}
		return interfaces.Document{}, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return decodeSnapshot(snap), nil
}

func (s *documentStore) Set(ctx context.Context, collection, id string, fields interfaces.Fields) error {
	_, err := s.client.Collection(collection).Doc(id).Set(ctx, map[string]interface{}(fields), firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *documentStore) Update(ctx context.Context, collection, id string, fields interfaces.Fields) error {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}

	_, err := s.client.Collection(collection).Doc(id).Update(ctx, updates)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return interfaces.ErrDocumentNotFound
		}
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *documentStore) Query(ctx context.Context, collection string, predicate interfaces.Predicate) ([]interfaces.Document, error) {
	snaps, err := s.query(collection, predicate).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s where %s: %w", collection, predicate, err)
	}
	return decodeSnapshots(snaps), nil
}

// Watch blocks until the listener's first snapshot and delivers it before
// returning.
func (s *documentStore) Watch(ctx context.Context, collection string, predicate interfaces.Predicate, fn interfaces.WatchFunc) (interfaces.UnsubscribeFunc, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	it := s.query(collection, predicate).Snapshots(watchCtx)

	first, err := it.Next()
	if err != nil {
		it.Stop()
		cancel()
		return nil, fmt.Errorf("failed to listen to %s where %s: %w", collection, predicate, err)
	}
	initial, err := first.Documents.GetAll()
	if err != nil {
		it.Stop()
		cancel()
		return nil, fmt.Errorf("failed to read %s snapshot: %w", collection, err)
	}
	fn(decodeSnapshots(initial))

	go func() {
		defer it.Stop()

		log := s.logger.WithField("collection", collection).WithField("predicate", predicate.String())
		for {
			snapshot, err := it.Next()
			if err != nil {
				if watchCtx.Err() == nil && status.Code(err) != codes.Canceled {
					log.WithError(err).Error("Snapshot listener ended")
				}
				return
			}

			snaps, err := snapshot.Documents.GetAll()
			if err != nil {
				log.WithError(err).Error("Failed to read snapshot documents")
				return
			}
			if watchCtx.Err() != nil {
				return
			}
			fn(decodeSnapshots(snaps))
		}
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
	}, nil
}

func (s *documentStore) query(collection string, predicate interfaces.Predicate) firestore.Query {
	return s.client.Collection(collection).Where(predicate.Field, "==", predicate.Value)
}

func decodeSnapshots(snaps []*firestore.DocumentSnapshot) []interfaces.Document {
	docs := make([]interfaces.Document, len(snaps))
	for i, snap := range snaps {
		docs[i] = decodeSnapshot(snap)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs
}

func decodeSnapshot(snap *firestore.DocumentSnapshot) interfaces.Document {
	return interfaces.Document{
		ID:        snap.Ref.ID,
		Fields:    interfaces.Fields(snap.Data()),
		CreatedAt: snap.CreateTime.UTC(),
	}
}

func copyFields(fields interfaces.Fields) interfaces.Fields {
	copied := make(interfaces.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return copied
}
