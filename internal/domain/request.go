// Package domain defines the persistence models for relay requests and
// idempotency records. These types are mapped with GORM and form the core
// data layer of the relay backend.
package domain

import (
	"time"
)

// Status is the lifecycle state of a Request. The transition is monotonic:
// a request starts pending and becomes completed exactly once.
type Status string

const (
	// StatusPending marks a request that has been sent but not yet answered.
	StatusPending Status = "pending"
	// StatusCompleted marks a request whose response has been finalized.
	StatusCompleted Status = "completed"
)

// Request represents one outbound question handed to a human responder over
// the message channel, together with the (eventual) answer.
//
// Fields:
//   - ID: opaque unique identifier ("req_" + 12 hex chars), immutable.
//   - Message: the outbound text, immutable.
//   - Metadata: opaque caller-supplied context; no meaning to the core.
//   - SentAt: timestamp of the outbound send.
//   - TimeoutSeconds: default wait budget; may be overridden per wait call.
//   - ExternalMessageID: the id the channel assigned to the outbound message,
//     set once shortly after creation and used for reply correlation. Indexed
//     as the secondary lookup key.
//   - Status / Response / ResponseAt: completion state. Response and
//     ResponseAt are both nil or both set; Status == completed iff Response
//     is set.
//   - CreatedAt: storage insertion time (may differ from SentAt under
//     retries); purge cutoffs compare against this column.
//
// Rows are hard-deleted by the purge operation, so there is deliberately no
// soft-delete marker on this model.
type Request struct {
	ID                string     `json:"request_id"           gorm:"type:TEXT;primaryKey"`
	Message           string     `json:"message"              gorm:"type:TEXT;not null"`
	Metadata          *string    `json:"metadata,omitempty"   gorm:"type:TEXT"`
	SentAt            time.Time  `json:"sent_at"              gorm:"not null"`
	TimeoutSeconds    int        `json:"timeout_seconds"      gorm:"not null;default:300"`
	ExternalMessageID *int64     `json:"-"                    gorm:"index:idx_requests_external_msg"`
	Status            Status     `json:"status"               gorm:"type:TEXT;not null;default:'pending';check:status IN ('pending','completed')"`
	Response          *string    `json:"response,omitempty"   gorm:"type:TEXT"`
	ResponseAt        *time.Time `json:"response_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"           gorm:"index"`
}

// TableName returns the database table name for Request.
func (Request) TableName() string { return "requests" }

// Completed reports whether the request has a finalized response.
func (r *Request) Completed() bool { return r.Status == StatusCompleted }

// ResponseTimeSeconds returns the whole seconds between SentAt and
// ResponseAt. The second return value is false while the request is pending.
func (r *Request) ResponseTimeSeconds() (int, bool) {
	if r.ResponseAt == nil {
		return 0, false
	}
	return int(r.ResponseAt.Sub(r.SentAt).Seconds()), true
}
