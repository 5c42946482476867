// Package correlator implements the per-request state machine that decides
// which inbound channel messages answer an outstanding request, aggregates
// multi-part answers, and enforces the wait deadline.
//
// States: Waiting (no match yet) → Collecting (buffer open) → Finalized or
// TimedOut (terminal). Transitions happen in Observe (inbound message) and
// Tick (time passing); neither performs I/O, so the machine is trivially
// testable with a fake clock.
package correlator

import (
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-relay-backend/internal/channel"
)

// State is the lifecycle position of one correlation.
type State int

const (
	// StateWaiting means no inbound message has matched yet.
	StateWaiting State = iota
	// StateCollecting means at least one message matched and the silence
	// window is open for follow-ups.
	StateCollecting
	// StateFinalized means a response has been assembled. Terminal.
	StateFinalized
	// StateTimedOut means the wait deadline passed first. Terminal.
	StateTimedOut
)

// String implements fmt.Stringer for log output.
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateCollecting:
		return "collecting"
	case StateFinalized:
		return "finalized"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Config carries everything a correlation needs to judge inbound messages.
type Config struct {
	// RequestID is matched by the prefix rule ("<id>: answer").
	RequestID string
	// ExternalMessageID is the channel id of the outbound message; replies
	// to it are the strongest match. Zero when the send never completed.
	ExternalMessageID int64
	// Destination is the sender id whose messages the fallback rule
	// accepts. The fallback is ambiguous when several requests are
	// outstanding against the same destination; deployments are expected
	// to keep at most one in flight per destination.
	Destination string
	// Window is the silence duration after which a non-empty buffer is
	// finalized.
	Window time.Duration
	// Deadline is the absolute wall-clock limit for the whole wait.
	Deadline time.Time
	// Clock supplies time; nil defaults to the system clock.
	Clock Clock
	// Logger receives match/finalization diagnostics.
	Logger zerolog.Logger
}

// Correlator is the state machine for a single wait. It is not safe for
// concurrent use; each await loop owns exactly one instance.
type Correlator struct {
	cfg   Config
	clock Clock

	state    State
	parts    []string
	lastPart time.Time
	result   string
}

// New returns a Correlator in StateWaiting.
func New(cfg Config) *Correlator {
	clk := cfg.Clock
	if clk == nil {
		clk = SystemClock()
	}
	return &Correlator{cfg: cfg, clock: clk, state: StateWaiting}
}

// State returns the current state.
func (c *Correlator) State() State { return c.state }

// Response returns the finalized response text. The second return value is
// false unless the state is StateFinalized.
func (c *Correlator) Response() (string, bool) {
	if c.state != StateFinalized {
		return "", false
	}
	return c.result, true
}

// Observe feeds one inbound message through the matching rules, in fixed
// priority order; the first rule that matches wins:
//
//  1. Reply match: the message replies to our outbound message. Appends to
//     the buffer and resets the silence timer.
//  2. Prefix match: "<request_id>: <answer>". An explicit single-shot
//     answer — finalizes immediately, bypassing aggregation.
//  3. Fallback match: any message from the destination. Appends like a
//     reply match.
//
// Duplicate deliveries (possible across restarts) simply append duplicate
// text; no deduplication is attempted. Observe is a no-op once the state
// is terminal.
func (c *Correlator) Observe(u channel.Update) {
	if c.state == StateFinalized || c.state == StateTimedOut {
		return
	}
	if u.SenderID != c.cfg.Destination {
		return
	}

	// Rule 1: reply to our outbound message.
	if c.cfg.ExternalMessageID != 0 && u.ReplyTargetID != 0 {
		if u.ReplyTargetID == c.cfg.ExternalMessageID {
			c.collect(u.Text)
			return
		}
		// A reply to some other message falls through to the next rules.
	}

	// Rule 2: explicit "<id>: answer" prefix. Single-shot, no aggregation.
	if answer, ok := ExtractPrefixResponse(u.Text, c.cfg.RequestID); ok {
		c.cfg.Logger.Info().Str("request_id", c.cfg.RequestID).Msg("prefix match, finalizing")
		c.state = StateFinalized
		c.result = answer
		return
	}

	// Rule 3: any message from the destination.
	c.collect(u.Text)
}

// collect appends text to the buffer and restarts the silence window.
func (c *Correlator) collect(text string) {
	c.parts = append(c.parts, text)
	c.lastPart = c.clock.Now()
	c.state = StateCollecting
	c.cfg.Logger.Debug().
		Str("request_id", c.cfg.RequestID).
		Int("parts", len(c.parts)).
		Msg("collected message part")
}

// Tick advances time-driven transitions. The deadline is checked before the
// silence window: when both have elapsed the wait times out, and any
// unflushed buffer content is discarded (logged, not persisted — this
// mirrors the upstream behavior and is intentionally not "fixed" here).
func (c *Correlator) Tick() {
	if c.state == StateFinalized || c.state == StateTimedOut {
		return
	}
	now := c.clock.Now()

	if !now.Before(c.cfg.Deadline) {
		if len(c.parts) > 0 {
			c.cfg.Logger.Warn().
				Str("request_id", c.cfg.RequestID).
				Int("discarded_parts", len(c.parts)).
				Msg("deadline reached, discarding partially collected response")
		}
		c.state = StateTimedOut
		return
	}

	if c.state == StateCollecting && now.Sub(c.lastPart) >= c.cfg.Window {
		c.state = StateFinalized
		c.result = strings.Join(c.parts, "\n")
		c.cfg.Logger.Info().
			Str("request_id", c.cfg.RequestID).
			Int("parts", len(c.parts)).
			Msg("silence window closed, response finalized")
	}
}

// ExtractPrefixResponse matches text of the form "<requestID>: <answer>"
// and returns the trimmed answer. The pattern is anchored at the start of
// the trimmed text, case-sensitive, and spans newlines, so a multi-line
// answer after the prefix is captured whole.
func ExtractPrefixResponse(text, requestID string) (string, bool) {
	re := regexp.MustCompile(`(?s)^` + regexp.QuoteMeta(requestID) + `:\s*(.+)$`)
	m := re.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}
