// Package queue implements the durable connect queue: the hand-off between
// "user requested a bot connect" and the orchestrator cycle that opens the
// connection.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hivegate-io/hivegate/internal/db"
	"github.com/hivegate-io/hivegate/internal/platform"
)

// Item is one pending connect request. At most one live item exists per
// (platform, applicationID); re-enqueue overwrites.
type Item struct {
	Platform      platform.Platform
	ApplicationID string
	UserID        string
	EnqueuedAt    time.Time
}

// ConnectQueue is the interface the orchestrator drains. Delivery is
// at-most-once: PopAll removes items before the caller processes them.
type ConnectQueue interface {
	Enqueue(ctx context.Context, p platform.Platform, applicationID, userID string) error
	PopAll(ctx context.Context) ([]Item, error)
	Remove(ctx context.Context, p platform.Platform, applicationID string) error
}

// PgQueue is the PostgreSQL-backed ConnectQueue.
type PgQueue struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPgQueue creates a PostgreSQL-backed connect queue.
func NewPgQueue(log *slog.Logger, pool *pgxpool.Pool) *PgQueue {
	if log == nil {
		log = slog.Default()
	}
	return &PgQueue{
		pool:   pool,
		logger: log.With(slog.String("service", "connect_queue")),
	}
}

// Enqueue upserts a connect request keyed by (platform, applicationID).
// Last write wins: userID and the enqueue timestamp are replaced.
func (q *PgQueue) Enqueue(ctx context.Context, p platform.Platform, applicationID, userID string) error {
	if q.pool == nil {
		return fmt.Errorf("connect queue not configured")
	}
	applicationID = strings.TrimSpace(applicationID)
	userID = strings.TrimSpace(userID)
	if applicationID == "" || userID == "" {
		return fmt.Errorf("application id and user id are required")
	}
	_, err := q.pool.Exec(ctx, `
		INSERT INTO connect_queue (platform, application_id, user_id, enqueued_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (platform, application_id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    enqueued_at = EXCLUDED.enqueued_at`,
		p.String(), applicationID, userID,
	)
	return err
}

// PopAll atomically returns and removes every pending item in enqueue order.
// DELETE ... RETURNING guarantees no item is returned twice even under
// concurrent drains; a crash after the pop loses the items rather than
// duplicating connection attempts.
func (q *PgQueue) PopAll(ctx context.Context) ([]Item, error) {
	if q.pool == nil {
		return nil, fmt.Errorf("connect queue not configured")
	}
	rows, err := q.pool.Query(ctx, `
		WITH popped AS (
			DELETE FROM connect_queue
			RETURNING platform, application_id, user_id, enqueued_at
		)
		SELECT platform, application_id, user_id, enqueued_at
		FROM popped
		ORDER BY enqueued_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var (
			rawP       string
			appID      string
			userID     string
			enqueuedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&rawP, &appID, &userID, &enqueuedAt); err != nil {
			return nil, err
		}
		items = append(items, Item{
			Platform:      platform.Platform(rawP),
			ApplicationID: appID,
			UserID:        userID,
			EnqueuedAt:    db.TimeFromPg(enqueuedAt),
		})
	}
	return items, rows.Err()
}

// Remove deletes a pending item. Removing a non-existent item is not an error.
func (q *PgQueue) Remove(ctx context.Context, p platform.Platform, applicationID string) error {
	if q.pool == nil {
		return fmt.Errorf("connect queue not configured")
	}
	_, err := q.pool.Exec(ctx, `
		DELETE FROM connect_queue
		WHERE platform = $1 AND application_id = $2`,
		p.String(), strings.TrimSpace(applicationID),
	)
	return err
}
