// Package services – RequestService
//
// This file implements RequestService, the local backend: it owns the request
// lifecycle end to end. Creation persists a row and sends the message over
// the channel; waiting runs a per-request correlator over the poller's update
// stream until an answer is finalized or the budget runs out; submissions
// arriving over HTTP finalize the same row with first-wins semantics.
//
// Observability: AwaitResponse is OpenTelemetry-instrumented; the span covers
// the whole wait and records the request id and outcome.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-relay-backend/internal/channel"
	"github.com/tbourn/go-relay-backend/internal/correlator"
	"github.com/tbourn/go-relay-backend/internal/domain"
	"github.com/tbourn/go-relay-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// createIDRetries bounds regeneration attempts on an id collision.
	createIDRetries = 3

	// defaultHistoryLimit applies when a history lookup passes limit <= 0.
	defaultHistoryLimit = 10
	// maxHistoryLimit caps a single history page.
	maxHistoryLimit = 500

	// defaultPurgeDays applies when a purge passes olderThanDays <= 0.
	defaultPurgeDays = 7
)

// RequestRepo defines the repository contract required by RequestService.
type RequestRepo interface {
	// CreateRequest inserts a new request row.
	CreateRequest(ctx context.Context, db *gorm.DB, req *domain.Request) error

	// GetRequest fetches a request by id.
	GetRequest(ctx context.Context, db *gorm.DB, id string) (*domain.Request, error)

	// SetExternalMessageID stores the channel-assigned outbound message id.
	SetExternalMessageID(ctx context.Context, db *gorm.DB, id string, externalID int64) error

	// CompleteRequest finalizes a pending request, first writer wins.
	CompleteRequest(ctx context.Context, db *gorm.DB, id, response string, responseAt time.Time) error

	// ListRecentRequests returns requests newest-first.
	ListRecentRequests(ctx context.Context, db *gorm.DB, limit int, completedOnly bool) ([]domain.Request, error)

	// PurgeOlderThan hard-deletes requests created before cutoff.
	PurgeOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, int64, error)
}

// RequestService is the local Backend implementation.
type RequestService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the request repository used by this service.
	Repo RequestRepo
	// Channel sends outbound messages.
	Channel channel.Channel
	// Poller fans inbound updates out to waiting calls.
	Poller *channel.Poller

	// Destination is the sender id answers are expected from.
	Destination string

	// DefaultTimeout is the wait budget when neither the call nor the stored
	// request specifies one.
	DefaultTimeout time.Duration
	// PollInterval is how often a wait re-checks the store and the clock
	// while no updates arrive.
	PollInterval time.Duration
	// CollectionWindow is the silence duration that closes a multi-part
	// answer.
	CollectionWindow time.Duration

	// Clock supplies time; nil defaults to the system clock.
	Clock correlator.Clock
	// Logger receives lifecycle diagnostics.
	Logger zerolog.Logger
}

// NewRequestService constructs a RequestService with sane timing defaults.
func NewRequestService(db *gorm.DB, r RequestRepo, ch channel.Channel, p *channel.Poller, destination string) *RequestService {
	return &RequestService{
		DB:               db,
		Repo:             r,
		Channel:          ch,
		Poller:           p,
		Destination:      destination,
		DefaultTimeout:   5 * time.Minute,
		PollInterval:     2 * time.Second,
		CollectionWindow: 3 * time.Second,
		Clock:            correlator.SystemClock(),
	}
}

func (s *RequestService) clock() correlator.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return correlator.SystemClock()
}

// newRequestID returns "req_" followed by 12 hex characters.
func newRequestID() string {
	hexed := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "req_" + hexed[:12]
}

// CreateRequest persists the request, sends it over the channel, and records
// the channel-assigned message id for reply correlation.
//
// The row is written before the send so that a channel outage never loses the
// request: on send failure the pending row survives and the error wraps
// ErrChannelSend together with the request id.
func (s *RequestService) CreateRequest(ctx context.Context, message string, metadata *string, timeoutSeconds int) (*CreateResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = int(s.DefaultTimeout.Seconds())
	}

	now := s.clock().Now().UTC()
	req := &domain.Request{
		Message:        message,
		Metadata:       metadata,
		SentAt:         now,
		TimeoutSeconds: timeoutSeconds,
		Status:         domain.StatusPending,
		CreatedAt:      now,
	}

	var err error
	for i := 0; i < createIDRetries; i++ {
		req.ID = newRequestID()
		err = s.Repo.CreateRequest(ctx, s.DB, req)
		if !errors.Is(err, repo.ErrConflict) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return nil, fmt.Errorf("request id allocation failed after %d attempts: %w", createIDRetries, err)
		}
		return nil, err
	}

	msgID, err := s.Channel.Send(ctx, message)
	if err != nil {
		s.Logger.Error().Err(err).Str("request_id", req.ID).Msg("outbound send failed, request stays pending")
		return nil, fmt.Errorf("%w for %s: %v", ErrChannelSend, req.ID, err)
	}
	if err := s.Repo.SetExternalMessageID(ctx, s.DB, req.ID, msgID); err != nil {
		// The message is out; reply correlation degrades to the prefix and
		// fallback rules, so log and carry on.
		s.Logger.Warn().Err(err).Str("request_id", req.ID).Msg("could not record outbound message id")
	}

	s.Logger.Info().
		Str("request_id", req.ID).
		Int64("external_message_id", msgID).
		Int("timeout_seconds", timeoutSeconds).
		Msg("request sent")

	return &CreateResult{RequestID: req.ID, Message: message, SentAt: req.SentAt, TimeoutSeconds: timeoutSeconds}, nil
}

// AwaitResponse blocks until requestID is answered, the wait budget elapses,
// or ctx is cancelled.
//
// Answers can arrive two ways while we wait: over the channel (observed via
// the poller subscription and judged by the correlator) or over HTTP (another
// caller hits the response endpoint). The store is therefore re-checked every
// poll interval; whichever path completes the row first wins, and this method
// always returns the stored winner.
func (s *RequestService) AwaitResponse(ctx context.Context, requestID string, timeoutSeconds int) (*AwaitResult, error) {
	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "AwaitResponse",
		trace.WithAttributes(attribute.String("request.id", requestID)),
	)
	defer span.End()

	req, err := s.Repo.GetRequest(ctx, s.DB, requestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if req.Completed() {
		span.SetAttributes(attribute.String("await.outcome", "already_completed"))
		return awaitResultOf(req), nil
	}

	if timeoutSeconds <= 0 {
		timeoutSeconds = req.TimeoutSeconds
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = int(s.DefaultTimeout.Seconds())
	}

	clk := s.clock()
	deadline := clk.Now().Add(time.Duration(timeoutSeconds) * time.Second)

	var extID int64
	if req.ExternalMessageID != nil {
		extID = *req.ExternalMessageID
	}
	corr := correlator.New(correlator.Config{
		RequestID:         requestID,
		ExternalMessageID: extID,
		Destination:       s.Destination,
		Window:            s.CollectionWindow,
		Deadline:          deadline,
		Clock:             clk,
		Logger:            s.Logger,
	})

	updates, cancel := s.Poller.Subscribe()
	defer cancel()

	for {
		corr.Tick()
		switch corr.State() {
		case correlator.StateFinalized:
			answer, _ := corr.Response()
			span.SetAttributes(attribute.String("await.outcome", "finalized"))
			return s.finalize(ctx, requestID, answer)
		case correlator.StateTimedOut:
			span.SetAttributes(attribute.String("await.outcome", "timeout"))
			return nil, ErrAwaitTimeout
		}

		// An answer may have landed over HTTP while we watched the channel.
		stored, err := s.Repo.GetRequest(ctx, s.DB, requestID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				// Purged underneath us.
				return nil, ErrRequestNotFound
			}
			return nil, err
		}
		if stored.Completed() {
			span.SetAttributes(attribute.String("await.outcome", "completed_via_submit"))
			return awaitResultOf(stored), nil
		}

		select {
		case u, ok := <-updates:
			if !ok {
				return nil, errors.New("update stream closed")
			}
			corr.Observe(u)
		case <-clk.After(s.PollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// finalize persists a correlator-produced answer. When a concurrent HTTP
// submission won the race, the stored response is returned instead. Either
// way the result carries the stored completion time and the derived response
// duration.
func (s *RequestService) finalize(ctx context.Context, requestID, answer string) (*AwaitResult, error) {
	err := s.Repo.CompleteRequest(ctx, s.DB, requestID, answer, s.clock().Now().UTC())
	switch {
	case err == nil, errors.Is(err, repo.ErrAlreadyCompleted):
		stored, gerr := s.Repo.GetRequest(ctx, s.DB, requestID)
		if gerr != nil {
			return nil, gerr
		}
		return awaitResultOf(stored), nil
	case errors.Is(err, repo.ErrNotFound):
		return nil, ErrRequestNotFound
	default:
		return nil, err
	}
}

// SubmitResponse records an answer for a pending request. When the request
// was already answered the call is a no-op and the result reports the stored
// winner with AlreadyCompleted set.
func (s *RequestService) SubmitResponse(ctx context.Context, requestID, response string) (*SubmitResult, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, ErrEmptyResponse
	}

	err := s.Repo.CompleteRequest(ctx, s.DB, requestID, response, s.clock().Now().UTC())
	switch {
	case err == nil:
		s.Logger.Info().Str("request_id", requestID).Msg("response recorded")
		return s.submitResultOf(ctx, requestID, false)
	case errors.Is(err, repo.ErrAlreadyCompleted):
		return s.submitResultOf(ctx, requestID, true)
	case errors.Is(err, repo.ErrNotFound):
		return nil, ErrRequestNotFound
	default:
		return nil, err
	}
}

// submitResultOf builds a SubmitResult from the stored row, so winners and
// losers alike report the persisted response, its arrival time, and the
// derived duration.
func (s *RequestService) submitResultOf(ctx context.Context, requestID string, alreadyCompleted bool) (*SubmitResult, error) {
	stored, err := s.Repo.GetRequest(ctx, s.DB, requestID)
	if err != nil {
		return nil, err
	}
	res := &SubmitResult{RequestID: requestID, AlreadyCompleted: alreadyCompleted}
	if stored.Response != nil {
		res.Response = *stored.Response
	}
	if stored.ResponseAt != nil {
		res.ReceivedAt = *stored.ResponseAt
	}
	if secs, okDone := stored.ResponseTimeSeconds(); okDone {
		res.ResponseTimeSeconds = secs
	}
	return res, nil
}

// GetStatus returns the current snapshot of one request.
func (s *RequestService) GetStatus(ctx context.Context, requestID string) (*StatusSnapshot, error) {
	req, err := s.Repo.GetRequest(ctx, s.DB, requestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return snapshotOf(req), nil
}

// ListHistory returns up to limit requests, newest first.
func (s *RequestService) ListHistory(ctx context.Context, limit int, completedOnly bool) ([]StatusSnapshot, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	reqs, err := s.Repo.ListRecentRequests(ctx, s.DB, limit, completedOnly)
	if err != nil {
		return nil, err
	}
	out := make([]StatusSnapshot, 0, len(reqs))
	for i := range reqs {
		out = append(out, *snapshotOf(&reqs[i]))
	}
	return out, nil
}

// PurgeExpired deletes requests created more than olderThanDays days ago.
func (s *RequestService) PurgeExpired(ctx context.Context, olderThanDays int) (*PurgeResult, error) {
	if olderThanDays <= 0 {
		olderThanDays = defaultPurgeDays
	}
	cutoff := s.clock().Now().UTC().AddDate(0, 0, -olderThanDays)
	deleted, freed, err := s.Repo.PurgeOlderThan(ctx, s.DB, cutoff)
	if err != nil {
		return nil, err
	}
	s.Logger.Info().
		Int64("deleted", deleted).
		Int64("freed_bytes", freed).
		Int("older_than_days", olderThanDays).
		Msg("purged old requests")
	return &PurgeResult{Deleted: deleted, FreedBytes: freed, OlderThan: olderThanDays}, nil
}

// awaitResultOf maps a completed stored request to an AwaitResult.
func awaitResultOf(r *domain.Request) *AwaitResult {
	res := &AwaitResult{RequestID: r.ID}
	if r.Response != nil {
		res.Response = *r.Response
	}
	if r.ResponseAt != nil {
		res.ReceivedAt = *r.ResponseAt
	}
	if secs, okDone := r.ResponseTimeSeconds(); okDone {
		res.ResponseTimeSeconds = secs
	}
	return res
}

// snapshotOf maps a stored request to its API snapshot.
func snapshotOf(r *domain.Request) *StatusSnapshot {
	snap := &StatusSnapshot{
		RequestID:  r.ID,
		Message:    r.Message,
		Metadata:   r.Metadata,
		Status:     string(r.Status),
		SentAt:     r.SentAt,
		Response:   r.Response,
		ResponseAt: r.ResponseAt,
	}
	if secs, ok := r.ResponseTimeSeconds(); ok {
		snap.ResponseTimeSeconds = &secs
	}
	return snap
}
