// Package subscription implements the router's local fan-out registry: the
// set of in-process subscribers, the queries they registered, and the
// persistence-backed reload that survives a router restart.
package subscription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skobkin/mavrouter/internal/mavlink"
)

// Query is a subscription predicate. Zero-value uint8 fields are wildcards
// for source/target system and component, matching the same 0-wildcard
// convention the router's frame targeting uses. MessageID is a pointer
// because message id 0 (HEARTBEAT) is a real, non-wildcard id; nil means
// "any message type".
type Query struct {
	MessageID       *uint32
	SourceSystem    uint8
	SourceComponent uint8
	TargetSystem    uint8
	TargetComponent uint8
	DeliverAsFrame  bool
}

func (q Query) equals(o Query) bool {
	if q.SourceSystem != o.SourceSystem || q.SourceComponent != o.SourceComponent {
		return false
	}
	if q.TargetSystem != o.TargetSystem || q.TargetComponent != o.TargetComponent {
		return false
	}
	if q.DeliverAsFrame != o.DeliverAsFrame {
		return false
	}
	if (q.MessageID == nil) != (o.MessageID == nil) {
		return false
	}
	if q.MessageID != nil && *q.MessageID != *o.MessageID {
		return false
	}

	return true
}

// Delivery is one push to a subscriber: either the decoded message or the
// raw frame, per the query's DeliverAsFrame preference.
type Delivery struct {
	Message mavlink.Message
	Frame   *mavlink.Frame
}

// Handle is a live subscriber's mailbox. Deliveries are pushed
// non-blocking: a full mailbox drops the delivery rather than stalling the
// router's single control task.
type Handle struct {
	ID       string
	Messages chan Delivery
}

// NewHandle creates a live handle with a bounded mailbox.
func NewHandle(id string, capacity int) *Handle {
	if capacity <= 0 {
		capacity = 32
	}

	return &Handle{ID: id, Messages: make(chan Delivery, capacity)}
}

type entry struct {
	query    Query
	handleID string
	handle   *Handle // nil until a live subscriber attaches (post-reload)
}

// Repository is the process-external cache subscriptions are persisted to,
// so a router restart doesn't drop them (§4.5, §5 "subscription cache").
type Repository interface {
	List(ctx context.Context) ([]Row, error)
	Insert(ctx context.Context, handleID string, q Query) error
	DeleteByHandle(ctx context.Context, handleID string) error
}

// Row is one persisted (query, handle_id) pair.
type Row struct {
	HandleID string
	Query    Query
}

// Registry holds every subscription entry. It is exclusively owned and
// mutated by the router's single control task; no locking.
type Registry struct {
	logger  *slog.Logger
	repo    Repository
	entries []entry
}

func NewRegistry(logger *slog.Logger, repo Repository) *Registry {
	return &Registry{logger: logger, repo: repo}
}

// Reload populates the registry from the persistence cache at startup.
// Entries start with handle == nil; Subscribe re-attaches a live handle
// when the corresponding subscriber reconnects with the same handle id.
func (r *Registry) Reload(ctx context.Context) error {
	rows, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("reload subscriptions: %w", err)
	}

	r.entries = r.entries[:0]
	for _, row := range rows {
		r.entries = append(r.entries, entry{query: row.Query, handleID: row.HandleID})
	}
	r.logger.Info("subscriptions reloaded", "count", len(r.entries))

	return nil
}

// Subscribe registers (query, handle), deduplicating an identical pair
// already present. It persists the pair so it survives a restart, and
// attaches handle to any reloaded entry with the same id and query.
func (r *Registry) Subscribe(ctx context.Context, q Query, h *Handle) error {
	for i := range r.entries {
		if r.entries[i].handleID == h.ID && r.entries[i].query.equals(q) {
			r.entries[i].handle = h

			return nil
		}
	}

	if err := r.repo.Insert(ctx, h.ID, q); err != nil {
		return fmt.Errorf("persist subscription: %w", err)
	}
	r.entries = append(r.entries, entry{query: q, handleID: h.ID, handle: h})

	return nil
}

// Unsubscribe removes every entry for handleID, live or reloaded-but-unbound.
func (r *Registry) Unsubscribe(ctx context.Context, handleID string) error {
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.handleID != handleID {
			kept = append(kept, e)
		}
	}
	r.entries = kept

	if err := r.repo.DeleteByHandle(ctx, handleID); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}

	return nil
}

// Match pushes a Delivery (the raw frame or the decoded message, per the
// query's DeliverAsFrame) to every live handle whose query matches a
// frame's attributes, and returns the deliveries it built, including any
// dropped because the handle's mailbox was full. isBroadcast frames never
// satisfy a query with a non-wildcard target predicate (§8 "target-id
// fields do not match broadcast frames").
func (r *Registry) Match(frame *mavlink.Frame) []Delivery {
	var out []Delivery
	isBroadcast := frame.TargetSystem == 0 && frame.TargetComponent == 0

	for _, e := range r.entries {
		if e.handle == nil {
			continue
		}
		q := e.query
		if q.MessageID != nil && *q.MessageID != frame.MessageID {
			continue
		}
		if q.SourceSystem != 0 && q.SourceSystem != frame.SystemID {
			continue
		}
		if q.SourceComponent != 0 && q.SourceComponent != frame.ComponentID {
			continue
		}
		if (q.TargetSystem != 0 || q.TargetComponent != 0) && isBroadcast {
			continue
		}
		if q.TargetSystem != 0 && q.TargetSystem != frame.TargetSystem {
			continue
		}
		if q.TargetComponent != 0 && q.TargetComponent != frame.TargetComponent {
			continue
		}

		delivery := Delivery{}
		if q.DeliverAsFrame {
			delivery.Frame = frame
		} else {
			delivery.Message = frame.Message
		}

		select {
		case e.handle.Messages <- delivery:
		default:
			r.logger.Warn("subscriber mailbox full, dropping delivery", "handle", e.handleID)
		}
		out = append(out, delivery)
	}

	return out
}
