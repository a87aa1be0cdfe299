package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"zoomgo/internal/repositories/interfaces"

	"github.com/google/uuid"
)

type record struct {
	id        string
	fields    interfaces.Fields
	createdAt time.Time
	seq       uint64
}

type watcher struct {
	collection string
	predicate  interfaces.Predicate
	fn         interfaces.WatchFunc
	notify     chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
}

func (w *watcher) stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *watcher) signal() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// DocumentStore keeps records in process memory. Query results are in
// insertion order.
type DocumentStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*record
	watchers    map[uint64]*watcher
	seq         uint64
	nextWatcher uint64
	now         func() time.Time
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		collections: make(map[string]map[string]*record),
		watchers:    make(map[uint64]*watcher),
		now:         time.Now,
	}
}

// WithClock replaces the creation clock, for deterministic tests.
func (s *DocumentStore) WithClock(now func() time.Time) *DocumentStore {
	s.now = now
	return s
}

func (s *DocumentStore) Create(ctx context.Context, collection string, fields interfaces.Fields) (interfaces.Document, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.Document{}, err
	}

	s.mu.Lock()
	s.seq++
	rec := &record{
		id:        uuid.NewString(),
		fields:    copyFields(fields),
		createdAt: s.now(),
		seq:       s.seq,
	}
	s.collectionLocked(collection)[rec.id] = rec
	doc := rec.document()
	s.signalLocked(collection, rec.fields)
	s.mu.Unlock()

	return doc, nil
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (interfaces.Document, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.Document{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return interfaces.Document{}, interfaces.ErrDocumentNotFound
	}
	return rec.document(), nil
}

func (s *DocumentStore) Set(ctx context.Context, collection, id string, fields interfaces.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.collectionLocked(collection)
	rec, ok := records[id]
	if !ok {
		s.seq++
		rec = &record{id: id, fields: interfaces.Fields{}, createdAt: s.now(), seq: s.seq}
		records[id] = rec
	}
	before := copyFields(rec.fields)
	for k, v := range fields {
		rec.fields[k] = v
	}
	s.signalLocked(collection, before, rec.fields)

	return nil
}

func (s *DocumentStore) Update(ctx context.Context, collection, id string, fields interfaces.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return interfaces.ErrDocumentNotFound
	}
	before := copyFields(rec.fields)
	for k, v := range fields {
		rec.fields[k] = v
	}
	s.signalLocked(collection, before, rec.fields)

	return nil
}

func (s *DocumentStore) Query(ctx context.Context, collection string, predicate interfaces.Predicate) ([]interfaces.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryLocked(collection, predicate), nil
}

func (s *DocumentStore) Watch(ctx context.Context, collection string, predicate interfaces.Predicate, fn interfaces.WatchFunc) (interfaces.UnsubscribeFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := &watcher{
		collection: collection,
		predicate:  predicate,
		fn:         fn,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	s.nextWatcher++
	id := s.nextWatcher
	s.watchers[id] = w
	initial := s.queryLocked(collection, predicate)
	s.mu.Unlock()

	unsubscribe := func() {
		w.stop()
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}

	fn(initial)
	go s.run(ctx, w, unsubscribe)

	return unsubscribe, nil
}

func (s *DocumentStore) run(ctx context.Context, w *watcher, unsubscribe func()) {
	for {
		select {
		case <-ctx.Done():
			unsubscribe()
			return
		case <-w.done:
			return
		case <-w.notify:
		}

		s.mu.RLock()
		docs := s.queryLocked(w.collection, w.predicate)
		s.mu.RUnlock()

		select {
		case <-w.done:
			return
		default:
		}
		w.fn(docs)
	}
}

// signalLocked wakes every watcher whose predicate matches any of the given
// field versions of a changed record.
func (s *DocumentStore) signalLocked(collection string, versions ...interfaces.Fields) {
	for _, w := range s.watchers {
		if w.collection != collection {
			continue
		}
		for _, fields := range versions {
			if w.predicate.Matches(fields) {
				w.signal()
				break
			}
		}
	}
}

func (s *DocumentStore) queryLocked(collection string, predicate interfaces.Predicate) []interfaces.Document {
	records := s.collections[collection]
	matched := make([]*record, 0, len(records))
	for _, rec := range records {
		if predicate.Matches(rec.fields) {
			matched = append(matched, rec)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].seq < matched[j].seq
	})

	docs := make([]interfaces.Document, len(matched))
	for i, rec := range matched {
		docs[i] = rec.document()
	}
	return docs
}

func (s *DocumentStore) collectionLocked(collection string) map[string]*record {
	records, ok := s.collections[collection]
	if !ok {
		records = make(map[string]*record)
		s.collections[collection] = records
	}
	return records
}

func (r *record) document() interfaces.Document {
	return interfaces.Document{
		ID:        r.id,
		Fields:    copyFields(r.fields),
		CreatedAt: r.createdAt,
	}
}

func copyFields(fields interfaces.Fields) interfaces.Fields {
	copied := make(interfaces.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return copied
}
