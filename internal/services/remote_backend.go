// Package services – RemoteBackend
//
// This file implements the remote Backend: every operation is forwarded over
// HTTPS to another deployment exposing the same request/response surface.
// Nothing is persisted locally; the remote deployment owns the store, the
// channel, and the correlation engine. Waiting is implemented client-side by
// polling the status endpoint until the request completes or the budget runs
// out.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-relay-backend/internal/correlator"
)

const (
	headerAPIKey = "X-API-Key"
	headerUserID = "X-User-ID"
)

// RemoteBackend forwards Backend operations to a remote relay deployment.
type RemoteBackend struct {
	baseURL string
	apiKey  string
	userID  string
	client  *http.Client

	// PollInterval is the status-polling cadence of AwaitResponse.
	PollInterval time.Duration
	// DefaultTimeout is the wait budget when the call passes none.
	DefaultTimeout time.Duration
	// Clock supplies time; nil defaults to the system clock.
	Clock correlator.Clock
	// Logger receives request diagnostics.
	Logger zerolog.Logger
}

// NewRemoteBackend builds a RemoteBackend for the deployment at baseURL.
// Credentials are sent on every call as X-API-Key and X-User-ID headers.
func NewRemoteBackend(baseURL, apiKey, userID string) *RemoteBackend {
	return &RemoteBackend{
		baseURL:        baseURL,
		apiKey:         apiKey,
		userID:         userID,
		client:         &http.Client{Timeout: 30 * time.Second},
		PollInterval:   2 * time.Second,
		DefaultTimeout: 5 * time.Minute,
		Clock:          correlator.SystemClock(),
	}
}

func (b *RemoteBackend) clock() correlator.Clock {
	if b.Clock != nil {
		return b.Clock
	}
	return correlator.SystemClock()
}

// remoteError is the error envelope the remote surface returns.
type remoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// call performs one authenticated round trip and decodes a 2xx body into out.
// Known failure statuses map onto the service sentinels so callers handle
// local and remote backends identically.
func (b *RemoteBackend) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := b.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerAPIKey, b.apiKey)
	req.Header.Set(headerUserID, b.userID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("remote backend: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return ErrRequestNotFound
		case http.StatusConflict:
			return ErrAlreadyCompleted
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return ErrAwaitTimeout
		case http.StatusBadGateway:
			return ErrChannelSend
		}
		var re remoteError
		if json.Unmarshal(raw, &re) == nil && re.Message != "" {
			return fmt.Errorf("remote backend: %s %s: %d %s: %s", method, path, resp.StatusCode, re.Code, re.Message)
		}
		return fmt.Errorf("remote backend: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("remote backend: decode response: %w", err)
	}
	return nil
}

// CreateRequest forwards the request to POST /requests.
func (b *RemoteBackend) CreateRequest(ctx context.Context, message string, metadata *string, timeoutSeconds int) (*CreateResult, error) {
	payload := map[string]any{"message": message}
	if metadata != nil {
		payload["metadata"] = *metadata
	}
	if timeoutSeconds > 0 {
		payload["timeout_seconds"] = timeoutSeconds
	}
	var out CreateResult
	if err := b.call(ctx, http.MethodPost, "/requests", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AwaitResponse polls GET /requests/:id until the request completes or the
// wait budget elapses.
func (b *RemoteBackend) AwaitResponse(ctx context.Context, requestID string, timeoutSeconds int) (*AwaitResult, error) {
	clk := b.clock()
	budget := b.DefaultTimeout
	if timeoutSeconds > 0 {
		budget = time.Duration(timeoutSeconds) * time.Second
	}
	deadline := clk.Now().Add(budget)

	for {
		snap, err := b.GetStatus(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if snap.Response != nil {
			return awaitResultOfSnapshot(snap), nil
		}
		if !clk.Now().Before(deadline) {
			return nil, ErrAwaitTimeout
		}
		select {
		case <-clk.After(b.PollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// awaitResultOfSnapshot lifts a completed status snapshot into an
// AwaitResult.
func awaitResultOfSnapshot(snap *StatusSnapshot) *AwaitResult {
	res := &AwaitResult{RequestID: snap.RequestID}
	if snap.Response != nil {
		res.Response = *snap.Response
	}
	if snap.ResponseAt != nil {
		res.ReceivedAt = *snap.ResponseAt
	}
	if snap.ResponseTimeSeconds != nil {
		res.ResponseTimeSeconds = *snap.ResponseTimeSeconds
	}
	return res
}

// SubmitResponse forwards the answer to POST /response. A 409 from the
// remote means an earlier answer won; the stored winner is fetched so the
// result mirrors the local backend's behavior.
func (b *RemoteBackend) SubmitResponse(ctx context.Context, requestID, response string) (*SubmitResult, error) {
	payload := map[string]string{"request_id": requestID, "response": response}
	var out SubmitResult
	err := b.call(ctx, http.MethodPost, "/response", nil, payload, &out)
	if errors.Is(err, ErrAlreadyCompleted) {
		snap, gerr := b.GetStatus(ctx, requestID)
		if gerr != nil {
			return nil, gerr
		}
		stored := awaitResultOfSnapshot(snap)
		return &SubmitResult{
			RequestID:           requestID,
			Response:            stored.Response,
			ReceivedAt:          stored.ReceivedAt,
			ResponseTimeSeconds: stored.ResponseTimeSeconds,
			AlreadyCompleted:    true,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	if out.RequestID == "" {
		out.RequestID = requestID
	}
	return &out, nil
}

// GetStatus forwards to GET /requests/:id.
func (b *RemoteBackend) GetStatus(ctx context.Context, requestID string) (*StatusSnapshot, error) {
	var out StatusSnapshot
	if err := b.call(ctx, http.MethodGet, "/requests/"+url.PathEscape(requestID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListHistory forwards to GET /history.
func (b *RemoteBackend) ListHistory(ctx context.Context, limit int, completedOnly bool) ([]StatusSnapshot, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if completedOnly {
		q.Set("completed_only", "true")
	}
	var out struct {
		Requests []StatusSnapshot `json:"requests"`
	}
	if err := b.call(ctx, http.MethodGet, "/history", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

// PurgeExpired forwards to DELETE /cleanup.
func (b *RemoteBackend) PurgeExpired(ctx context.Context, olderThanDays int) (*PurgeResult, error) {
	q := url.Values{}
	if olderThanDays > 0 {
		q.Set("older_than_days", strconv.Itoa(olderThanDays))
	}
	var out PurgeResult
	if err := b.call(ctx, http.MethodDelete, "/cleanup", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
