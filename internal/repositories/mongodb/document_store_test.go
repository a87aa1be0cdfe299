package mongodb_test

import (
	"context"
	"os"
	"testing"
	"time"

	"zoomgo/internal/models"
	"zoomgo/internal/repositories/mongodb"
	"zoomgo/internal/repositories/storetest"
	"zoomgo/pkg/database"
	"zoomgo/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func newTestDatabase(t *testing.T) *database.MongoDB {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}

	db, err := database.NewMongoDB(context.Background(), &database.DatabaseConfig{
		URI:            uri,
		Database:       "zoomgo_test_" + uuid.NewString()[:8],
		MaxPoolSize:    10,
		ConnectTimeout: 10 * time.Second,
		SocketTimeout:  30 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Database.Drop(context.Background())
		_ = db.Close()
	})
	return db
}

// Change streams need a replica set, e.g. mongod --replSet rs0.
func TestDocumentStore_Contract(t *testing.T) {
	db := newTestDatabase(t)
	require.NoError(t, database.NewMigrator(db.Database, logger.Discard()).Up(context.Background()))

	storetest.Run(t, mongodb.NewDocumentStore(db.Database, logger.Discard()))
}

func TestMigrator_IndexesRiderBookingsOnce(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	migrator := database.NewMigrator(db.Database, logger.Discard())

	require.NoError(t, migrator.Up(ctx))
	require.NoError(t, migrator.Up(ctx))

	version, err := migrator.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	cursor, err := db.Database.Collection(models.BookingsCollection).Indexes().List(ctx)
	require.NoError(t, err)
	var indexes []bson.M
	require.NoError(t, cursor.All(ctx, &indexes))

	names := make([]string, 0, len(indexes))
	for _, index := range indexes {
		names = append(names, index["name"].(string))
	}
	assert.ElementsMatch(t, []string{"_id_", "rider_requested_at"}, names)
}
