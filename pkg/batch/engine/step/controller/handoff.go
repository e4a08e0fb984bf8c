package controller

import (
	"context"

	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
)

// DefaultHandoffCapacity is used when no positive capacity is configured.
const DefaultHandoffCapacity = 64

// HandoffChannel carries partition messages from partition attempts to the
// coordinating attempt. It is bounded: Send blocks while the buffer is full, so
// the consumer must drain it continuously.
type HandoffChannel struct {
	ch chan model.PartitionMessage
}

// NewHandoffChannel creates a channel buffering up to capacity messages.
func NewHandoffChannel(capacity int) *HandoffChannel {
	if capacity <= 0 {
		capacity = DefaultHandoffCapacity
	}
	return &HandoffChannel{ch: make(chan model.PartitionMessage, capacity)}
}

// Send enqueues msg, waiting for buffer space until ctx is done.
func (h *HandoffChannel) Send(ctx context.Context, msg model.PartitionMessage) error {
	select {
	case h.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages returns the receiving side of the channel.
func (h *HandoffChannel) Messages() <-chan model.PartitionMessage {
	return h.ch
}

// Len returns the number of buffered messages.
func (h *HandoffChannel) Len() int {
	return len(h.ch)
}
