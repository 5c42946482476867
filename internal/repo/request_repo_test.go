package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-relay-backend/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid schema leakage across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedRequest(t *testing.T, db *gorm.DB, id string, createdAt time.Time) *domain.Request {
	t.Helper()
	r := &domain.Request{
		ID:             id,
		Message:        "question for " + id,
		SentAt:         createdAt,
		TimeoutSeconds: 300,
		Status:         domain.StatusPending,
		CreatedAt:      createdAt,
	}
	if err := CreateRequest(context.Background(), db, r); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	return r
}

func TestCreateRequest_DuplicateIDMapsToErrConflict(t *testing.T) {
	db := newTestDB(t, &domain.Request{})
	now := time.Now().UTC()

	seedRequest(t, db, "req_aaa", now)

	dup := &domain.Request{ID: "req_aaa", Message: "again", SentAt: now, CreatedAt: now}
	if err := CreateRequest(context.Background(), db, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGetRequest_FoundAndMissing(t *testing.T) {
	db := newTestDB(t, &domain.Request{})
	now := time.Now().UTC()
	seedRequest(t, db, "req_get", now)

	got, err := GetRequest(context.Background(), db, "req_get")
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.ID != "req_get" || got.Status != domain.StatusPending {
		t.Fatalf("unexpected row: %+v", got)
	}

	if _, err := GetRequest(context.Background(), db, "req_nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetExternalMessageID_AndSecondaryLookup(t *testing.T) {
	db := newTestDB(t, &domain.Request{})
	now := time.Now().UTC()
	seedRequest(t, db, "req_ext", now)

	if err := SetExternalMessageID(context.Background(), db, "req_ext", 4242); err != nil {
		t.Fatalf("SetExternalMessageID: %v", err)
	}

	got, err := GetRequestByExternalMessageID(context.Background(), db, 4242)
	if err != nil {
		t.Fatalf("GetRequestByExternalMessageID: %v", err)
	}
	if got.ID != "req_ext" {
		t.Fatalf("secondary lookup returned %q; want req_ext", got.ID)
	}

	// Unknown request id -> ErrNotFound, no row touched.
	if err := SetExternalMessageID(context.Background(), db, "req_missing", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
	if _, err := GetRequestByExternalMessageID(context.Background(), db, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown external id, got %v", err)
	}
}

func TestCompleteRequest_FirstWins(t *testing.T) {
	db := newTestDB(t, &domain.Request{})
	now := time.Now().UTC()
	seedRequest(t, db, "req_done", now)

	at := now.Add(5 * time.Second)
	if err := CompleteRequest(context.Background(), db, "req_done", "Answer A", at); err != nil {
		t.Fatalf("first CompleteRequest: %v", err)
	}

	// Loser of the race observes ErrAlreadyCompleted and mutates nothing.
	err := CompleteRequest(context.Background(), db, "req_done", "Answer B", at.Add(time.Second))
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}

	got, err := GetRequest(context.Background(), db, "req_done")
	if err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.Status != domain.StatusCompleted || got.Response == nil || *got.Response != "Answer A" {
		t.Fatalf("stored response mutated by losing writer: %+v", got)
	}
	if got.ResponseAt == nil {
		t.Fatalf("response_at not set alongside response")
	}
}

func TestCompleteRequest_UnknownID(t *testing.T) {
	db := newTestDB(t, &domain.Request{})
	err := CompleteRequest(context.Background(), db, "req_ghost", "x", time.Now().UTC())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRecentRequests_OrderLimitAndFilter(t *testing.T) {
	db := newTestDB(t, &domain.Request{})
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	seedRequest(t, db, "req_1", base)
	seedRequest(t, db, "req_2", base.Add(time.Minute))
	seedRequest(t, db, "req_3", base.Add(2*time.Minute))
	if err := CompleteRequest(context.Background(), db, "req_2", "done", base.Add(3*time.Minute)); err != nil {
		t.Fatalf("complete req_2: %v", err)
	}

	all, err := ListRecentRequests(context.Background(), db, 10, false)
	if err != nil {
		t.Fatalf("ListRecentRequests: %v", err)
	}
	if len(all) != 3 || all[0].ID != "req_3" || all[2].ID != "req_1" {
		t.Fatalf("unexpected order: %+v", ids(all))
	}

	limited, err := ListRecentRequests(context.Background(), db, 2, false)
	if err != nil || len(limited) != 2 {
		t.Fatalf("limit not applied: err=%v n=%d", err, len(limited))
	}

	completed, err := ListRecentRequests(context.Background(), db, 10, true)
	if err != nil {
		t.Fatalf("ListRecentRequests completedOnly: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != "req_2" {
		t.Fatalf("completedOnly returned %v", ids(completed))
	}
}

func TestPurgeOlderThan_RemovesExactlyMatchingRows(t *testing.T) {
	db := newTestDB(t, &domain.Request{})
	cutoff := time.Date(2025, 5, 8, 0, 0, 0, 0, time.UTC)

	seedRequest(t, db, "req_old1", cutoff.Add(-48*time.Hour))
	seedRequest(t, db, "req_old2", cutoff.Add(-time.Second))
	seedRequest(t, db, "req_new", cutoff.Add(time.Hour))

	count, freed, err := PurgeOlderThan(context.Background(), db, cutoff)
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if count != 2 {
		t.Fatalf("deleted count = %d; want 2", count)
	}
	if freed != 2*estimatedRowBytes {
		t.Fatalf("freed bytes = %d; want %d", freed, 2*estimatedRowBytes)
	}

	// Survivors untouched; purge is a hard delete.
	rest, err := ListRecentRequests(context.Background(), db, 10, false)
	if err != nil || len(rest) != 1 || rest[0].ID != "req_new" {
		t.Fatalf("unexpected survivors: err=%v rows=%v", err, ids(rest))
	}

	// Nothing to purge on a second pass.
	count, freed, err = PurgeOlderThan(context.Background(), db, cutoff)
	if err != nil || count != 0 || freed != 0 {
		t.Fatalf("second purge: count=%d freed=%d err=%v", count, freed, err)
	}
}

func ids(rows []domain.Request) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}
