// Package channel abstracts the external messaging transport used to reach
// a human responder: sending one outbound message and fetching inbound
// updates since a cursor. The concrete implementation in this package talks
// to the Telegram Bot API, but the correlation engine only depends on the
// Channel interface and the Update shape defined here.
package channel

import (
	"context"
	"time"
)

// Cursor is an opaque position marker for incremental retrieval of inbound
// updates. Fetching with the previous call's cursor yields at-least-once,
// no-gap delivery of updates not yet seen; duplicates across process
// restarts are possible and must be tolerated by consumers.
type Cursor int64

// Update is one inbound message from the channel.
type Update struct {
	// Seq is the provider-assigned ordering token for this update.
	// It increases monotonically within a stream.
	Seq int64
	// SenderID identifies the chat/channel the message came from.
	SenderID string
	// Text is the message body.
	Text string
	// ReplyTargetID is the external id of the outbound message this update
	// replies to, or 0 when the update is not a reply.
	ReplyTargetID int64
}

// Channel is the transport contract: send one message, fetch inbound
// updates since a cursor. Implementations must be safe for concurrent use
// of Send; Fetch is driven by a single poller goroutine (see Poller).
type Channel interface {
	// Send delivers text to the configured destination and returns the
	// external message id the provider assigned to it.
	Send(ctx context.Context, text string) (int64, error)

	// Fetch returns inbound updates after cur, blocking up to wait for new
	// ones (long-poll). The returned cursor covers everything delivered;
	// it never moves backwards. wait bounds the transport call only, not
	// any correlation timeout.
	Fetch(ctx context.Context, cur Cursor, wait time.Duration) ([]Update, Cursor, error)
}
