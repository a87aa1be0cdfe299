// Package redisnotify serves Watch from Redis pub/sub instead of a backend
// change feed. Every write through the store publishes the collection it
// touched, and every watcher on any instance re-reads its matching set.
package redisnotify

import (
	"context"
	"fmt"
	"sync"

	"zoomgo/internal/repositories/interfaces"
	"zoomgo/pkg/cache"
	"zoomgo/pkg/logger"
)

const channelPrefix = "zoomgo:changes:"

type changeEvent struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

type documentStore struct {
	inner  interfaces.DocumentStore
	cache  *cache.RedisCache
	logger *logger.Logger
}

func NewDocumentStore(inner interfaces.DocumentStore, redisCache *cache.RedisCache, log *logger.Logger) interfaces.DocumentStore {
	if log == nil {
		log = logger.Discard()
	}
	return &documentStore{
		inner:  inner,
		cache:  redisCache,
		logger: log,
	}
}

func Channel(collection string) string {
	return channelPrefix + collection
}

func (s *documentStore) Create(ctx context.Context, collection string, fields interfaces.Fields) (interfaces.Document, error) {
	doc, err := s.inner.Create(ctx, collection, fields)
	if err != nil {
		return doc, err
	}
	s.publish(ctx, collection, doc.ID)
	return doc, nil
}

func (s *documentStore) Get(ctx context.Context, collection, id string) (interfaces.Document, error) {
	return s.inner.Get(ctx, collection, id)
}

func (s *documentStore) Set(ctx context.Context, collection, id string, fields interfaces.Fields) error {
	if err := s.inner.Set(ctx, collection, id, fields); err != nil {
		return err
	}
	s.publish(ctx, collection, id)
	return nil
}

func (s *documentStore) Update(ctx context.Context, collection, id string, fields interfaces.Fields) error {
	if err := s.inner.Update(ctx, collection, id, fields); err != nil {
		return err
	}
	s.publish(ctx, collection, id)
	return nil
}

func (s *documentStore) Query(ctx context.Context, collection string, predicate interfaces.Predicate) ([]interfaces.Document, error) {
	return s.inner.Query(ctx, collection, predicate)
}

// Watch subscribes before the initial read so no change between the two is lost.
func (s *documentStore) Watch(ctx context.Context, collection string, predicate interfaces.Predicate, fn interfaces.WatchFunc) (interfaces.UnsubscribeFunc, error) {
	watchCtx, cancel := context.WithCancel(ctx)

	pubsub := s.cache.Subscribe(watchCtx, Channel(collection))
	// the first reply confirms the subscription
	if _, err := pubsub.Receive(watchCtx); err != nil {
		_ = pubsub.Close()
		cancel()
		return nil, fmt.Errorf("failed to subscribe to %s changes: %w", collection, err)
	}

	initial, err := s.inner.Query(watchCtx, collection, predicate)
	if err != nil {
		_ = pubsub.Close()
		cancel()
		return nil, err
	}
	fn(initial)

	go func() {
		defer pubsub.Close()

		log := s.logger.WithField("collection", collection).WithField("predicate", predicate.String())
		messages := pubsub.Channel()
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					if watchCtx.Err() == nil {
						log.Error("Change subscription closed")
					}
					return
				}
			}

			docs, err := s.inner.Query(watchCtx, collection, predicate)
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

// publish failures leave the write in place; remote watchers catch up on
// the next change.
func (s *documentStore) publish(ctx context.Context, collection, id string) {
	if err := s.cache.Publish(ctx, Channel(collection), changeEvent{Collection: collection, ID: id}); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("collection", collection).Warn("Failed to publish document change")
	}
}
