package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook runs around message handling. BeforeHandle may rewrite the
// context, message, or payload; a non-nil error skips the handler and goes
// straight to error processing (OnError, DLQ, offset commit).
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
}

// NoopHook is the default hook.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, km, data, nil
}

func (NoopHook) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
}

func (NoopHook) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
}

// HookError classifies an error produced by a hook.
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *HookError) Unwrap() error { return e.Err }

type ctxKey string

const ctxHandleStart ctxKey = "kafka_handle_start"

// LatencyRecorder receives per-message handling durations.
type LatencyRecorder interface {
	RecordLatency(operation string, seconds float64)
	RecordError(errType string)
}

// LatencyHook times every handled message and reports handler failures.
type LatencyHook struct {
	rec LatencyRecorder
}

func NewLatencyHook(rec LatencyRecorder) *LatencyHook {
	return &LatencyHook{rec: rec}
}

func (h *LatencyHook) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return context.WithValue(ctx, ctxHandleStart, time.Now()), km, data, nil
}

func (h *LatencyHook) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if start, ok := ctx.Value(ctxHandleStart).(time.Time); ok {
		h.rec.RecordLatency("consume_"+topic, time.Since(start).Seconds())
	}
}

func (h *LatencyHook) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	h.rec.RecordError("consume")
}
