package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"zoomgo/internal/repositories/interfaces"
	"zoomgo/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// documentStore keeps records as JSONB rows in the documents table. Watch
// listens on the channel the table trigger notifies with the collection name,
// over a single connection held outside the pool.
type documentStore struct {
	pool     *pgxpool.Pool
	listener *changeListener
	logger   *logger.Logger
}

func NewDocumentStore(pool *pgxpool.Pool, log *logger.Logger) interfaces.DocumentStore {
	if log == nil {
		log = logger.Discard()
	}
	return &documentStore{
		pool:     pool,
		listener: newChangeListener(pool.Config().ConnConfig, log),
		logger:   log,
	}
}

func (s *documentStore) Create(ctx context.Context, collection string, fields interfaces.Fields) (interfaces.Document, error) {
	data, err := encodeFields(fields)
	if err != nil {
		return interfaces.Document{}, err
	}

	id := uuid.NewString()
	var createdAt time.Time
	err = s.pool.QueryRow(ctx,
		`INSERT INTO documents (collection, id, fields) VALUES ($1, $2, $3) RETURNING created_at`,
		collection, id, data,
	).Scan(&createdAt)
	if err != nil {
		return interfaces.Document{}, fmt.Errorf("failed to insert into %s: %w", collection, err)
	}

	return interfaces.Document{ID: id, Fields: copyFields(fields), CreatedAt: createdAt.UTC()}, nil
}

func (s *documentStore) Get(ctx context.Context, collection, id string) (interfaces.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, fields, created_at FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return interfaces.Document{}, interfaces.ErrDocumentNotFound
		}
		return interfaces.Document{}, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *documentStore) Set(ctx context.Context, collection, id string, fields interfaces.Fields) error {
	data, err := encodeFields(fields)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, fields) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id) DO UPDATE SET fields = documents.fields || EXCLUDED.fields`,
		collection, id, data,
	)
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *documentStore) Update(ctx context.Context, collection, id string, fields interfaces.Fields) error {
	data, err := encodeFields(fields)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET fields = fields || $3 WHERE collection = $1 AND id = $2`,
		collection, id, data,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrDocumentNotFound
	}
	return nil
}

func (s *documentStore) Query(ctx context.Context, collection string, predicate interfaces.Predicate) ([]interfaces.Document, error) {
	filter, err := encodeFields(interfaces.Fields{predicate.Field: predicate.Value})
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, fields, created_at FROM documents WHERE collection = $1 AND fields @> $2 ORDER BY seq`,
		collection, filter,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s where %s: %w", collection, predicate, err)
	}
	defer rows.Close()

	var docs []interfaces.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	return docs, nil
}

// Watch registers with the store's change listener before the initial read
// so no change between the two is lost.
func (s *documentStore) Watch(ctx context.Context, collection string, predicate interfaces.Predicate, fn interfaces.WatchFunc) (interfaces.UnsubscribeFunc, error) {
	watchCtx, cancel := context.WithCancel(ctx)

	w, err := s.listener.add(watchCtx, collection)
	if err != nil {
		cancel()
		return nil, err
	}

	initial, err := s.Query(watchCtx, collection, predicate)
	if err != nil {
		s.listener.remove(w)
		cancel()
		return nil, err
	}
	fn(initial)

	go func() {
		defer s.listener.remove(w)

		log := s.logger.WithField("collection", collection).WithField("predicate", predicate.String())
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-w.lost:
				if watchCtx.Err() == nil {
					log.Error("Document change listener ended")
				}
				return
			case <-w.wake:
			}

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
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
	}, nil
}

func scanDocument(row pgx.Row) (interfaces.Document, error) {
	var (
		doc       interfaces.Document
		data      []byte
		createdAt time.Time
	)
	if err := row.Scan(&doc.ID, &data, &createdAt); err != nil {
		return interfaces.Document{}, err
	}

	doc.Fields = interfaces.Fields{}
	if err := json.Unmarshal(data, &doc.Fields); err != nil {
		return interfaces.Document{}, fmt.Errorf("failed to decode fields of %s: %w", doc.ID, err)
	}
	doc.CreatedAt = createdAt.UTC()
	return doc, nil
}

func encodeFields(fields interfaces.Fields) ([]byte, error) {
	if fields == nil {
		fields = interfaces.Fields{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}
	return data, nil
}

func copyFields(fields interfaces.Fields) interfaces.Fields {
	copied := make(interfaces.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return copied
}
