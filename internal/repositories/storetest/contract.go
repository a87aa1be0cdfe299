// Package storetest holds the behaviour every DocumentStore backend shares,
// run against each backend from its own tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"zoomgo/internal/repositories/interfaces"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// WaitFor bounds how long change notifications may take to arrive.
var WaitFor = 5 * time.Second

type recorder struct {
	lock  sync.Mutex
	calls [][]interfaces.Document
}

func (r *recorder) record(docs []interfaces.Document) {
	r.lock.Lock()
	r.calls = append(r.calls, docs)
	r.lock.Unlock()
}

func (r *recorder) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.calls)
}

func (r *recorder) last() []interfaces.Document {
	r.lock.Lock()
	defer r.lock.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

// Run exercises store. Each subtest works in a fresh collection so backends
// sharing a database between runs do not interfere.
func Run(t *testing.T, store interfaces.DocumentStore) {
	t.Run("create then get", func(t *testing.T) {
		ctx := context.Background()
		collection := freshCollection()

		created, err := store.Create(ctx, collection, interfaces.Fields{"owner": "a", "state": "new"})
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := store.Get(ctx, collection, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "a", got.Fields["owner"])
		assert.Equal(t, "new", got.Fields["state"])
		assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Second)
	})

	t.Run("update merges and keeps other fields", func(t *testing.T) {
		ctx := context.Background()
		collection := freshCollection()

		created, err := store.Create(ctx, collection, interfaces.Fields{"owner": "a", "state": "new"})
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, collection, created.ID, interfaces.Fields{"state": "done", "price": 42.5}))

		got, err := store.Get(ctx, collection, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "a", got.Fields["owner"])
		assert.Equal(t, "done", got.Fields["state"])
		assert.EqualValues(t, 42.5, got.Fields["price"])
	})

	t.Run("missing records", func(t *testing.T) {
		ctx := context.Background()
		collection := freshCollection()

		_, err := store.Get(ctx, collection, uuid.NewString())
		assert.ErrorIs(t, err, interfaces.ErrDocumentNotFound)

		err = store.Update(ctx, collection, uuid.NewString(), interfaces.Fields{"state": "done"})
		assert.ErrorIs(t, err, interfaces.ErrDocumentNotFound)
	})

	t.Run("set creates then merges", func(t *testing.T) {
		ctx := context.Background()
		collection := freshCollection()
		id := uuid.NewString()

		require.NoError(t, store.Set(ctx, collection, id, interfaces.Fields{"name": "Ada"}))
		require.NoError(t, store.Set(ctx, collection, id, interfaces.Fields{"phone": "+15550100"}))

		got, err := store.Get(ctx, collection, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, "Ada", got.Fields["name"])
		assert.Equal(t, "+15550100", got.Fields["phone"])
	})

	t.Run("query filters by equality", func(t *testing.T) {
		ctx := context.Background()
		collection := freshCollection()

		want := map[string]bool{}
		for i := 0; i < 3; i++ {
			doc, err := store.Create(ctx, collection, interfaces.Fields{"owner": "a"})
			require.NoError(t, err)
			want[doc.ID] = true

			_, err = store.Create(ctx, collection, interfaces.Fields{"owner": "b"})
			require.NoError(t, err)
		}

		docs, err := store.Query(ctx, collection, interfaces.Eq("owner", "a"))
		require.NoError(t, err)
		require.Len(t, docs, 3)
		for _, doc := range docs {
			assert.True(t, want[doc.ID], "unexpected document %s", doc.ID)
			assert.Equal(t, "a", doc.Fields["owner"])
		}
	})

	t.Run("watch delivers snapshot then changes", func(t *testing.T) {
		ctx := context.Background()
		collection := freshCollection()

		_, err := store.Create(ctx, collection, interfaces.Fields{"owner": "a", "state": "old"})
		require.NoError(t, err)

		rec := &recorder{}
		unsubscribe, err := store.Watch(ctx, collection, interfaces.Eq("owner", "a"), rec.record)
		require.NoError(t, err)
		defer unsubscribe()

		require.Equal(t, 1, rec.count(), "initial snapshot is delivered before Watch returns")
		assert.Len(t, rec.last(), 1)

		created, err := store.Create(ctx, collection, interfaces.Fields{"owner": "a", "state": "new"})
		require.NoError(t, err)

		assert.EventuallyWithT(t, func(c *assert.CollectT) {
			assert.Len(c, rec.last(), 2)
		}, WaitFor, 50*time.Millisecond)

		require.NoError(t, store.Update(ctx, collection, created.ID, interfaces.Fields{"state": "done"}))

		assert.EventuallyWithT(t, func(c *assert.CollectT) {
			for _, doc := range rec.last() {
				if doc.ID == created.ID {
					assert.Equal(c, "done", doc.Fields["state"])
					return
				}
			}
			assert.Fail(c, "updated document missing from snapshot")
		}, WaitFor, 50*time.Millisecond)
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		ctx := context.Background()
		collection := freshCollection()

		rec := &recorder{}
		unsubscribe, err := store.Watch(ctx, collection, interfaces.Eq("owner", "a"), rec.record)
		require.NoError(t, err)

		unsubscribe()
		unsubscribe()

		_, err = store.Create(ctx, collection, interfaces.Fields{"owner": "a"})
		require.NoError(t, err)

		assert.Never(t, func() bool { return rec.count() != 1 }, 300*time.Millisecond, 20*time.Millisecond)
	})
}

func freshCollection() string {
	return "storetest_" + uuid.NewString()[:8]
}
