package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newRemote(t *testing.T, h http.HandlerFunc) *RemoteBackend {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	b := NewRemoteBackend(srv.URL, "secret-key", "user-1")
	b.Clock = &autoClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return b
}

func TestRemoteBackend_CreateRequest_SendsAuthHeaders(t *testing.T) {
	var gotKey, gotUser, gotPath string
	var gotBody map[string]any

	b := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotUser = r.Header.Get("X-User-ID")
		gotPath = r.Method + " " + r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(CreateResult{RequestID: "req_abc123def456", Message: "Pick one", TimeoutSeconds: 120})
	})

	res, err := b.CreateRequest(context.Background(), "Pick one", nil, 120)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if res.RequestID != "req_abc123def456" {
		t.Fatalf("request id = %q", res.RequestID)
	}
	if res.Message != "Pick one" {
		t.Fatalf("message = %q; want the echoed text", res.Message)
	}
	if gotKey != "secret-key" || gotUser != "user-1" {
		t.Fatalf("auth headers = (%q, %q)", gotKey, gotUser)
	}
	if gotPath != "POST /requests" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["message"] != "Pick one" || gotBody["timeout_seconds"] != float64(120) {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestRemoteBackend_GetStatus_NotFound(t *testing.T) {
	b := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"not_found","message":"request not found"}`))
	})

	if _, err := b.GetStatus(context.Background(), "req_missing0000"); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestRemoteBackend_SubmitResponse_ConflictReturnsStoredWinner(t *testing.T) {
	winner := "Answer A"
	answeredAt := time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC)
	secs := 5
	b := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"code":"already_completed","message":"request already completed"}`))
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(StatusSnapshot{
				RequestID: "req_abc123def456", Status: "completed",
				Response: &winner, ResponseAt: &answeredAt, ResponseTimeSeconds: &secs,
			})
		}
	})

	res, err := b.SubmitResponse(context.Background(), "req_abc123def456", "Answer B")
	if err != nil {
		t.Fatalf("SubmitResponse: %v", err)
	}
	if !res.AlreadyCompleted || res.Response != "Answer A" {
		t.Fatalf("expected stored winner, got %+v", res)
	}
	if !res.ReceivedAt.Equal(answeredAt) || res.ResponseTimeSeconds != 5 {
		t.Fatalf("winner timing not carried over: %+v", res)
	}
}

func TestRemoteBackend_AwaitResponse_PollsUntilCompleted(t *testing.T) {
	var polls atomic.Int64
	answer := "done"
	answeredAt := time.Date(2025, 6, 1, 12, 0, 9, 0, time.UTC)
	secs := 9
	b := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		snap := StatusSnapshot{RequestID: "req_abc123def456", Status: "pending"}
		if n >= 3 {
			snap.Status = "completed"
			snap.Response = &answer
			snap.ResponseAt = &answeredAt
			snap.ResponseTimeSeconds = &secs
		}
		_ = json.NewEncoder(w).Encode(snap)
	})

	got, err := b.AwaitResponse(context.Background(), "req_abc123def456", 300)
	if err != nil {
		t.Fatalf("AwaitResponse: %v", err)
	}
	if got.Response != "done" || polls.Load() != 3 {
		t.Fatalf("got %+v after %d polls", got, polls.Load())
	}
	if !got.ReceivedAt.Equal(answeredAt) || got.ResponseTimeSeconds != 9 {
		t.Fatalf("completion timing not reported: %+v", got)
	}
}

func TestRemoteBackend_AwaitResponse_Timeout(t *testing.T) {
	b := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(StatusSnapshot{RequestID: "req_abc123def456", Status: "pending"})
	})

	// 4-second budget against a 2-second poll cadence on the auto clock.
	if _, err := b.AwaitResponse(context.Background(), "req_abc123def456", 4); !errors.Is(err, ErrAwaitTimeout) {
		t.Fatalf("expected ErrAwaitTimeout, got %v", err)
	}
}

func TestRemoteBackend_ListHistoryAndPurge(t *testing.T) {
	b := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/history":
			if r.URL.Query().Get("limit") != "5" || r.URL.Query().Get("completed_only") != "true" {
				t.Errorf("unexpected query: %v", r.URL.Query())
			}
			_, _ = w.Write([]byte(`{"requests":[{"request_id":"req_abc123def456","status":"completed"}]}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/cleanup":
			if r.URL.Query().Get("older_than_days") != "7" {
				t.Errorf("unexpected query: %v", r.URL.Query())
			}
			_ = json.NewEncoder(w).Encode(PurgeResult{Deleted: 3, FreedBytes: 1536, OlderThan: 7})
		default:
			t.Errorf("unexpected call: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	hist, err := b.ListHistory(context.Background(), 5, true)
	if err != nil || len(hist) != 1 || hist[0].RequestID != "req_abc123def456" {
		t.Fatalf("ListHistory = (%+v, %v)", hist, err)
	}

	purge, err := b.PurgeExpired(context.Background(), 7)
	if err != nil || purge.Deleted != 3 || purge.FreedBytes != 1536 {
		t.Fatalf("PurgeExpired = (%+v, %v)", purge, err)
	}
}
