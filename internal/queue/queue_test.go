package queue_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hivegate-io/hivegate/internal/platform"
	"github.com/hivegate-io/hivegate/internal/queue"
)

func setupIntegrationTest(t *testing.T) (*queue.PgQueue, func()) {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skip integration test: TEST_POSTGRES_DSN is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("skip integration test: cannot connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skip integration test: database ping failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return queue.NewPgQueue(logger, pool), func() { pool.Close() }
}

func TestIntegrationEnqueueDeduplicates(t *testing.T) {
	q, cleanup := setupIntegrationTest(t)
	defer cleanup()

	ctx := context.Background()
	p := platform.Platform("discord")
	appID := fmt.Sprintf("dedup_%d", time.Now().UnixNano())

	if err := q.Enqueue(ctx, p, appID, "user-1"); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, p, appID, "user-2"); err != nil {
		t.Fatalf("second enqueue failed: %v", err)
	}

	items, err := q.PopAll(ctx)
	if err != nil {
		t.Fatalf("pop failed: %v", err)
	}
	var mine []queue.Item
	for _, item := range items {
		if item.ApplicationID == appID {
			mine = append(mine, item)
		}
	}
	if len(mine) != 1 {
		t.Fatalf("expected one item for %s, got %d", appID, len(mine))
	}
	if mine[0].UserID != "user-2" {
		t.Fatalf("re-enqueue must overwrite the user, got %s", mine[0].UserID)
	}
}

func TestIntegrationPopAllIsExclusive(t *testing.T) {
	q, cleanup := setupIntegrationTest(t)
	defer cleanup()

	ctx := context.Background()
	p := platform.Platform("discord")
	first := fmt.Sprintf("pop_a_%d", time.Now().UnixNano())
	second := fmt.Sprintf("pop_b_%d", time.Now().UnixNano())

	if err := q.Enqueue(ctx, p, first, "user-1"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, p, second, "user-1"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	items, err := q.PopAll(ctx)
	if err != nil {
		t.Fatalf("pop failed: %v", err)
	}
	var mine []queue.Item
	for _, item := range items {
		if item.ApplicationID == first || item.ApplicationID == second {
			mine = append(mine, item)
		}
	}
	if len(mine) != 2 {
		t.Fatalf("expected both items in the first pop, got %d", len(mine))
	}
	if mine[0].ApplicationID != first || mine[1].ApplicationID != second {
		t.Fatalf("items must come back in enqueue order, got %s then %s",
			mine[0].ApplicationID, mine[1].ApplicationID)
	}

	again, err := q.PopAll(ctx)
	if err != nil {
		t.Fatalf("second pop failed: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("an immediate second pop must return nothing, got %d items", len(again))
	}
}

func TestIntegrationRemoveIsIdempotent(t *testing.T) {
	q, cleanup := setupIntegrationTest(t)
	defer cleanup()

	ctx := context.Background()
	p := platform.Platform("discord")
	appID := fmt.Sprintf("remove_%d", time.Now().UnixNano())

	if err := q.Enqueue(ctx, p, appID, "user-1"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := q.Remove(ctx, p, appID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := q.Remove(ctx, p, appID); err != nil {
		t.Fatalf("removing an absent item must not fail: %v", err)
	}

	items, err := q.PopAll(ctx)
	if err != nil {
		t.Fatalf("pop failed: %v", err)
	}
	for _, item := range items {
		if item.ApplicationID == appID {
			t.Fatalf("removed item came back from the queue")
		}
	}
}
