package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skobkin/mavrouter/internal/subscription"
)

// SubscriptionRepo persists the subscription registry's (query, handle_id)
// pairs so they survive a router restart. Writes go through a WriterQueue so
// a subscribe/unsubscribe call from the router's control task never blocks
// on disk I/O; List is synchronous since it only runs once at startup.
type SubscriptionRepo struct {
	db    *sql.DB
	queue *WriterQueue
}

func NewSubscriptionRepo(db *sql.DB, queue *WriterQueue) *SubscriptionRepo {
	return &SubscriptionRepo{db: db, queue: queue}
}

func (r *SubscriptionRepo) List(ctx context.Context) ([]subscription.Row, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT handle_id, message_id, source_system, source_component, target_system, target_component, deliver_as_frame
		FROM subscriptions
	`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []subscription.Row
	for rows.Next() {
		var (
			handleID       string
			messageID      sql.NullInt64
			srcSys         int64
			srcComp        int64
			tgtSys         int64
			tgtComp        int64
			deliverAsFrame int64
		)
		if err := rows.Scan(&handleID, &messageID, &srcSys, &srcComp, &tgtSys, &tgtComp, &deliverAsFrame); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}

		q := subscription.Query{
			SourceSystem:    uint8(srcSys),
			SourceComponent: uint8(srcComp),
			TargetSystem:    uint8(tgtSys),
			TargetComponent: uint8(tgtComp),
			DeliverAsFrame:  deliverAsFrame != 0,
		}
		if messageID.Valid {
			id := uint32(messageID.Int64)
			q.MessageID = &id
		}
		out = append(out, subscription.Row{HandleID: handleID, Query: q})
	}

	return out, rows.Err()
}

func (r *SubscriptionRepo) Insert(_ context.Context, handleID string, q subscription.Query) error {
	var messageID any
	if q.MessageID != nil {
		messageID = int64(*q.MessageID)
	}
	createdAt := toUnixMillis(time.Now())

	r.queue.Enqueue("insert_subscription", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO subscriptions(handle_id, message_id, source_system, source_component, target_system, target_component, deliver_as_frame, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, handleID, messageID, q.SourceSystem, q.SourceComponent, q.TargetSystem, q.TargetComponent, boolToInt(q.DeliverAsFrame), createdAt)
		if err != nil {
			return fmt.Errorf("insert subscription: %w", err)
		}

		return nil
	})

	return nil
}

func (r *SubscriptionRepo) DeleteByHandle(_ context.Context, handleID string) error {
	r.queue.Enqueue("delete_subscriptions_for_handle", func(ctx context.Context) error {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE handle_id = ?`, handleID); err != nil {
			return fmt.Errorf("delete subscriptions for handle: %w", err)
		}

		return nil
	})

	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}

	return 0
}
