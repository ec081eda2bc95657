package ports

import "context"

// MessageDedup is a best-effort transport-level duplicate filter keyed by
// envelope message id. It is an optimization only: a miss or a cache failure
// falls through to the orchestrator, whose precondition checks make
// redelivery safe regardless.
type MessageDedup interface {
	IsDuplicate(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
}
