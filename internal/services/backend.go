// Package services – Backend
//
// This file defines the Backend contract shared by the local engine
// (RequestService, which owns the database and the message channel directly)
// and the remote client (RemoteBackend, which forwards every operation to
// another deployment of the same HTTP surface). Callers select one at startup
// and never branch on the mode again.
package services

import (
	"context"
	"time"
)

// CreateResult is the outcome of submitting a new request. Message echoes
// the text that was sent so the caller can confirm what went out.
type CreateResult struct {
	RequestID      string    `json:"request_id"`
	Message        string    `json:"message"`
	SentAt         time.Time `json:"sent_at"`
	TimeoutSeconds int       `json:"timeout_seconds"`
}

// AwaitResult is the outcome of a wait that ended with an answer: the
// response text together with when it was received and the whole seconds the
// responder took.
type AwaitResult struct {
	RequestID           string    `json:"request_id"`
	Response            string    `json:"response"`
	ReceivedAt          time.Time `json:"received_at"`
	ResponseTimeSeconds int       `json:"response_time_seconds"`
}

// StatusSnapshot is a point-in-time view of one request, as returned by
// status and history lookups. ResponseTimeSeconds is the whole seconds
// between the outbound send and the finalized response; nil while pending.
type StatusSnapshot struct {
	RequestID           string     `json:"request_id"`
	Message             string     `json:"message"`
	Metadata            *string    `json:"metadata,omitempty"`
	Status              string     `json:"status"`
	SentAt              time.Time  `json:"sent_at"`
	Response            *string    `json:"response,omitempty"`
	ResponseAt          *time.Time `json:"response_at,omitempty"`
	ResponseTimeSeconds *int       `json:"response_time_seconds,omitempty"`
}

// SubmitResult is the outcome of submitting a response for a request.
// When AlreadyCompleted is true the submission lost to an earlier answer and
// Response carries the stored winner, not the rejected text.
type SubmitResult struct {
	RequestID           string    `json:"request_id"`
	Response            string    `json:"response"`
	ReceivedAt          time.Time `json:"received_at"`
	ResponseTimeSeconds int       `json:"response_time_seconds"`
	AlreadyCompleted    bool      `json:"already_completed,omitempty"`
}

// PurgeResult reports what a retention purge removed. FreedBytes is a coarse
// estimate, not an exact figure.
type PurgeResult struct {
	Deleted    int64 `json:"deleted"`
	FreedBytes int64 `json:"freed_bytes"`
	OlderThan  int   `json:"older_than_days"`
}

// Backend is the mode-independent surface of the relay engine.
type Backend interface {
	// CreateRequest persists a request and sends it over the channel.
	// A zero timeoutSeconds selects the configured default.
	CreateRequest(ctx context.Context, message string, metadata *string, timeoutSeconds int) (*CreateResult, error)

	// AwaitResponse blocks until the request is answered, the wait budget
	// runs out (ErrAwaitTimeout), or ctx is cancelled. A zero timeoutSeconds
	// uses the timeout stored on the request.
	AwaitResponse(ctx context.Context, requestID string, timeoutSeconds int) (*AwaitResult, error)

	// SubmitResponse records an answer for a pending request. Losing a race
	// against an earlier answer is not an error: the result reports
	// AlreadyCompleted with the stored response.
	SubmitResponse(ctx context.Context, requestID, response string) (*SubmitResult, error)

	// GetStatus returns the current snapshot of one request.
	GetStatus(ctx context.Context, requestID string) (*StatusSnapshot, error)

	// ListHistory returns up to limit requests, newest first, optionally
	// restricted to completed ones.
	ListHistory(ctx context.Context, limit int, completedOnly bool) ([]StatusSnapshot, error)

	// PurgeExpired deletes requests older than the given number of days.
	PurgeExpired(ctx context.Context, olderThanDays int) (*PurgeResult, error)
}
