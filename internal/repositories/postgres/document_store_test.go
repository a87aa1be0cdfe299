package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"zoomgo/internal/repositories/interfaces"
	"zoomgo/internal/repositories/postgres"
	"zoomgo/internal/repositories/storetest"
	"zoomgo/pkg/database"
	"zoomgo/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, maxConns int32) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, &database.PostgresConfig{
		URL:            url,
		MaxConns:       maxConns,
		ConnectTimeout: 10 * time.Second,
		ConnectRetries: 1,
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.MigratePostgres(ctx, pool, logger.Discard()))
	return pool
}

func TestDocumentStore_Contract(t *testing.T) {
	storetest.Run(t, postgres.NewDocumentStore(newTestPool(t, 10), logger.Discard()))
}

func TestDocumentStore_WatchesDoNotHoldPoolConnections(t *testing.T) {
	const maxConns = 2
	store := postgres.NewDocumentStore(newTestPool(t, maxConns), logger.Discard())
	collection := "watch-" + uuid.NewString()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		lock sync.Mutex
		seen = map[int]int{}
	)
	for i := 0; i < maxConns+3; i++ {
		i := i
		unsubscribe, err := store.Watch(ctx, collection, interfaces.Eq("owner", "a"), func(docs []interfaces.Document) {
			lock.Lock()
			seen[i] = len(docs)
			lock.Unlock()
		})
		require.NoError(t, err, "watch %d", i)
		t.Cleanup(unsubscribe)
	}

	_, err := store.Create(ctx, collection, interfaces.Fields{"owner": "a"})
	require.NoError(t, err)

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		lock.Lock()
		defer lock.Unlock()
		for i := 0; i < maxConns+3; i++ {
			assert.Equal(c, 1, seen[i], "watch %d", i)
		}
	}, storetest.WaitFor, 20*time.Millisecond)
}
