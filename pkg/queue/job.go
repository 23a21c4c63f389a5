package queue

import "context"

// Job is a registered handler for one message type on the queue.
type Job interface {
	// Name uniquely identifies the job for registration and logging.
	Name() string

	// Type is the message type the job consumes.
	Type() string

	// Handle processes one payload. A returned error sends the message to
	// the retry queue.
	Handle(ctx context.Context, payload interface{}) error
}
