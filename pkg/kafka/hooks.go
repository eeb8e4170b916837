package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook observes message handling. BeforeHandle may swap the context
// or rewrite the payload; returning an error skips the handler and routes the
// message through error processing.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, msg kafka.Message, data []byte) (context.Context, []byte, error)
	AfterHandle(ctx context.Context, topic string, msg kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, msg kafka.Message, data []byte, err error)
}

// NoopHook is the default hook.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ string, _ kafka.Message, data []byte) (context.Context, []byte, error) {
	return ctx, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

// HookFuncs adapts plain functions to ConsumerHook; nil fields are no-ops.
type HookFuncs struct {
	Before func(ctx context.Context, topic string, msg kafka.Message, data []byte) (context.Context, []byte, error)
	After  func(ctx context.Context, topic string, msg kafka.Message, data []byte, err error)
	Err    func(ctx context.Context, topic string, msg kafka.Message, data []byte, err error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, topic string, msg kafka.Message, data []byte) (context.Context, []byte, error) {
	if h.Before == nil {
		return ctx, data, nil
	}
	return h.Before(ctx, topic, msg, data)
}

func (h HookFuncs) AfterHandle(ctx context.Context, topic string, msg kafka.Message, data []byte, err error) {
	if h.After != nil {
		h.After(ctx, topic, msg, data, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, topic string, msg kafka.Message, data []byte, err error) {
	if h.Err != nil {
		h.Err(ctx, topic, msg, data, err)
	}
}
