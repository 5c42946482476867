// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Request
// model: the durable table behind the request/response correlation engine.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a request is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - CreateRequest maps UNIQUE violations on the primary key to ErrConflict.
//   - CompleteRequest is first-wins: a second completion attempt on the same
//     id returns ErrAlreadyCompleted and leaves the stored response untouched.
//   - On other DB errors (connectivity issues, etc.), the raw gorm error is
//     propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-relay-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrConflict indicates an insert with an id that already exists.
var ErrConflict = errors.New("request id already exists")

// ErrAlreadyCompleted indicates a completion attempt on a request that has
// already been finalized. The stored response is never mutated in that case.
var ErrAlreadyCompleted = errors.New("request already completed")

// estimatedRowBytes is the coarse per-row constant used by PurgeOlderThan to
// report freed space. It is an estimate, not an exact figure.
const estimatedRowBytes = 512

// CreateRequest inserts a new request row. The caller is responsible for id
// generation; a duplicate id maps to ErrConflict.
func CreateRequest(ctx context.Context, db *gorm.DB, req *domain.Request) error {
	if err := db.WithContext(ctx).Create(req).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return ErrConflict
		}
		return err
	}
	return nil
}

// GetRequest fetches a request by its id, or ErrNotFound if missing.
func GetRequest(ctx context.Context, db *gorm.DB, id string) (*domain.Request, error) {
	var r domain.Request
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRequestByExternalMessageID fetches a request by the id the channel
// assigned to its outbound message (the secondary lookup used for reply
// correlation), or ErrNotFound if no request carries that id.
func GetRequestByExternalMessageID(ctx context.Context, db *gorm.DB, externalID int64) (*domain.Request, error) {
	var r domain.Request
	err := db.WithContext(ctx).
		Where("external_message_id = ?", externalID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SetExternalMessageID stores the channel-assigned message id on a request.
// Returns ErrNotFound when no row matches the request id.
func SetExternalMessageID(ctx context.Context, db *gorm.DB, id string, externalID int64) error {
	res := db.WithContext(ctx).
		Model(&domain.Request{}).
		Where("id = ?", id).
		Update("external_message_id", externalID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteRequest finalizes a pending request with its response text and
// timestamp. The UPDATE is guarded on status = 'pending' so that when two
// completions race, exactly one wins; the loser gets ErrAlreadyCompleted
// (or ErrNotFound when the id is unknown).
func CompleteRequest(ctx context.Context, db *gorm.DB, id, response string, responseAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Request{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":      domain.StatusCompleted,
			"response":    response,
			"response_at": responseAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Either the id is unknown or another writer finalized it first.
		var count int64
		if err := db.WithContext(ctx).
			Model(&domain.Request{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrAlreadyCompleted
	}
	return nil
}

// ListRecentRequests returns up to limit requests, newest-first by creation
// time, optionally restricted to completed ones. It returns an empty slice
// when nothing matches.
func ListRecentRequests(ctx context.Context, db *gorm.DB, limit int, completedOnly bool) ([]domain.Request, error) {
	q := db.WithContext(ctx).Order("created_at DESC, id DESC")
	if completedOnly {
		q = q.Where("status = ?", domain.StatusCompleted)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.Request
	err := q.Find(&out).Error
	return out, err
}

// PurgeOlderThan hard-deletes every request created before cutoff and
// returns the number of removed rows plus a coarse estimate of the bytes
// freed (estimatedRowBytes per row). The database file is VACUUMed
// afterwards so the space is actually reclaimed.
func PurgeOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (count int64, freedBytes int64, err error) {
	res := db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.Request{})
	if res.Error != nil {
		return 0, 0, res.Error
	}
	count = res.RowsAffected

	if count > 0 {
		db.WithContext(ctx).Exec("VACUUM")
	}
	return count, count * estimatedRowBytes, nil
}
