// Single-fetcher fan-out for the inbound update stream.
//
// Each await call used to poll the channel itself, but two concurrent waits
// then interleave cursor consumption and can starve each other of updates.
// The Poller owns the cursor in one goroutine and broadcasts every inbound
// update to all active subscribers, so concurrent waits each see the full
// stream.
package channel

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// subBuffer is the per-subscriber channel capacity. Inbound traffic is
// human-typed messages, so the buffer only needs to absorb short bursts.
const subBuffer = 64

// Poller drives Channel.Fetch in a single goroutine and fans each update
// out to every subscriber. Safe for concurrent Subscribe/unsubscribe.
type Poller struct {
	ch   Channel
	wait time.Duration

	mu     sync.Mutex
	subs   map[int]chan Update
	nextID int
	cursor Cursor
}

// NewPoller returns a Poller that long-polls ch for up to wait per fetch.
func NewPoller(ch Channel, wait time.Duration) *Poller {
	return &Poller{
		ch:   ch,
		wait: wait,
		subs: make(map[int]chan Update),
	}
}

// Subscribe registers a new consumer of the update stream. The returned
// cancel function must be called when the consumer is done; it closes the
// returned channel.
func (p *Poller) Subscribe() (<-chan Update, func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	c := make(chan Update, subBuffer)
	p.subs[id] = c
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		if c, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(c)
		}
		p.mu.Unlock()
	}
	return c, cancel
}

// Run fetches and broadcasts until ctx is cancelled. Fetch errors are
// logged and retried after the wait interval; the cursor only ever moves
// forward, so a transient failure repeats updates rather than losing them.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		cur := p.Cursor()
		updates, next, err := p.ch.Fetch(ctx, cur, p.wait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("channel fetch failed")
			select {
			case <-time.After(p.wait):
			case <-ctx.Done():
				return
			}
			continue
		}

		p.mu.Lock()
		if next > p.cursor {
			p.cursor = next
		}
		p.mu.Unlock()
		for _, u := range updates {
			p.broadcast(u)
		}
	}
}

// broadcast delivers u to every subscriber without blocking the fetch loop.
// A subscriber that has fallen subBuffer updates behind loses the oldest
// ones; the correlator tolerates gaps the same way it tolerates duplicates.
func (p *Poller) broadcast(u Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.subs {
		select {
		case c <- u:
		default:
			log.Warn().Int("subscriber", id).Int64("seq", u.Seq).Msg("subscriber buffer full, dropping update")
		}
	}
}

// Cursor returns the current stream position. Exposed for logging and tests.
func (p *Poller) Cursor() Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}
