package mongo

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/persistence/persistencetest"
	"github.com/example/club-reminders/internal/reminder"
)

// startMongo runs a throwaway MongoDB container and returns its URI. The test
// is skipped when Docker is unavailable.
func startMongo(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}
	if os.Getenv("REMINDERS_SKIP_DOCKER_TESTS") != "" {
		t.Skip("REMINDERS_SKIP_DOCKER_TESTS is set")
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Skipf("failed to start MongoDB container (Docker may not be available): %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(ctx)
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Skipf("failed to get MongoDB connection string: %v", err)
	}
	return uri
}

func TestStoreContract(t *testing.T) {
	uri := startMongo(t)

	var n atomic.Int64
	persistencetest.Run(t, func(t *testing.T) persistence.Store {
		ctx := context.Background()
		store, err := Open(ctx, uri, fmt.Sprintf("reminders_test_%d", n.Add(1)))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })

		if err := store.EnsureIndexes(ctx); err != nil {
			t.Fatalf("EnsureIndexes failed: %v", err)
		}
		return store
	})
}

func TestReminderDocumentKeepsUnknownOffsetKind(t *testing.T) {
	t.Parallel()

	delivered := int64(1709546400000)
	doc := reminderDocument{
		ID:          primitive.NewObjectID(),
		TaskID:      "task-1",
		RecipientID: "user-a",
		OffsetKind:  "oneWeek",
		FireAt:      1709542800000,
		Title:       "Submit design draft",
		DueAt:       1709550000000,
		Delivered:   true,
		DeliveredAt: &delivered,
		RetryCount:  1,
	}

	rec := doc.record()
	if rec.ID != doc.ID.Hex() {
		t.Fatalf("expected id %s, got %s", doc.ID.Hex(), rec.ID)
	}
	if rec.OffsetKind != reminder.OffsetKind("oneWeek") || rec.OffsetKind.Valid() {
		t.Fatalf("expected unknown offset kind to be kept as-is, got %q", rec.OffsetKind)
	}
	if !rec.FireAt.Equal(time.UnixMilli(doc.FireAt).UTC()) {
		t.Fatalf("expected fireAt %d, got %s", doc.FireAt, rec.FireAt)
	}
	if rec.DeliveredAt == nil || rec.DeliveredAt.UnixMilli() != delivered {
		t.Fatalf("expected deliveredAt %d, got %v", delivered, rec.DeliveredAt)
	}
}
