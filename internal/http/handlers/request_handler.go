// Relay request HTTP handlers.
//
// This file exposes the coordinating REST surface:
//   - POST   /requests              (create + send over the channel)
//   - GET    /requests/{id}         (status snapshot)
//   - GET    /requests/{id}/await   (long-poll until answered or budget spent)
//   - POST   /response              (submit an answer out-of-band)
//   - GET    /history               (recent requests, ETag support)
//   - DELETE /cleanup               (retention purge)
//
// Handlers are transport-thin: they validate input, call the configured
// Backend, and translate sentinel errors into HTTP responses.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-relay-backend/internal/http/middleware"
	"github.com/tbourn/go-relay-backend/internal/repo"
	"github.com/tbourn/go-relay-backend/internal/services"
	"github.com/tbourn/go-relay-backend/internal/utils"
)

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the relay surface. It depends on the
// abstract Backend so the same routes serve both the local engine and a
// pass-through to a remote deployment.
type Handlers struct {
	backend services.Backend
}

// New constructs a Handlers instance bound to the given backend.
func New(backend services.Backend) *Handlers {
	return &Handlers{backend: backend}
}

// userID extracts the authenticated user id from Gin context (set by the
// auth middleware). If absent, it falls back to the "X-User-ID" header
// (tests use it), and finally to "demo-user".
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// localDB returns the GORM handle when the backend is the local engine; nil
// for the remote pass-through (which owns no storage).
func (h *Handlers) localDB() *gorm.DB {
	if svc, okCast := h.backend.(*services.RequestService); okCast {
		return svc.DB
	}
	return nil
}

//
// DTOs
//

// CreateRequestPayload is the JSON payload for creating a relay request.
type CreateRequestPayload struct {
	// Message is the question delivered to the human responder.
	Message string `json:"message" binding:"required,min=1,max=4096" example:"Deploy v2.3 to production?"`
	// Metadata is opaque caller context echoed back on status lookups.
	Metadata *string `json:"metadata,omitempty" example:"deploy-pipeline"`
	// TimeoutSeconds overrides the default wait budget; 0 keeps the default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" example:"300"`
}

// SubmitResponsePayload is the JSON payload for answering a pending request.
type SubmitResponsePayload struct {
	// RequestID identifies the request being answered.
	RequestID string `json:"request_id" binding:"required" example:"req_a1b2c3d4e5f6"`
	// Response is the answer text.
	Response string `json:"response" binding:"required,min=1" example:"Yes, ship it"`
}

// HistoryResponse wraps the recent-request listing.
type HistoryResponse struct {
	Requests []services.StatusSnapshot `json:"requests"`
	Count    int                       `json:"count"`
}

//
// Handlers
//

// CreateRequest godoc
// @ID          createRequest
// @Summary     Create a relay request
// @Description Persists the request and sends the message to the human responder over the configured channel.
// @Tags        Requests
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateRequestPayload  true  "Create request payload"
//
// @Success     201  {object}  services.CreateResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     502  {object}  handlers.ErrorResponse  "Channel send failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /requests [post]
func (h *Handlers) CreateRequest(c *gin.Context) {
	var req CreateRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required (1-4096 chars)")
		return
	}

	ctx := c.Request.Context()
	db := h.localDB()
	idemKey, hasKey := middleware.GetIdempotencyKey(c)
	if !hasKey {
		idemKey = strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
		hasKey = idemKey != ""
	}

	// Replay path: a retried create must not send a second outbound message.
	if hasKey && db != nil {
		if rec, lookupErr := repo.GetIdempotency(ctx, db, userID(c), idemKey, time.Now().UTC()); lookupErr == nil && rec != nil {
			if prev, getErr := repo.GetRequest(ctx, db, rec.RequestID); getErr == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, rec.Status, services.CreateResult{
					RequestID:      prev.ID,
					Message:        prev.Message,
					SentAt:         prev.SentAt,
					TimeoutSeconds: prev.TimeoutSeconds,
				})
				return
			}
		}
	}

	res, err := h.backend.CreateRequest(ctx, req.Message, req.Metadata, req.TimeoutSeconds)
	switch {
	case err == nil:
		if hasKey && db != nil {
			// Best effort; a storage hiccup must not fail the create.
			if _, idemErr := repo.CreateIdempotency(ctx, db, userID(c), idemKey, res.RequestID, http.StatusCreated, 24*time.Hour); idemErr != nil && !errors.Is(idemErr, repo.ErrDuplicate) {
				middleware.LoggerFrom(c).Warn().Err(idemErr).Str("request_id", res.RequestID).Msg("idempotency record store failed")
			}
		}
		ok(c, http.StatusCreated, res)
	case errors.Is(err, services.ErrEmptyMessage):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrChannelSend):
		fail(c, http.StatusBadGateway, ErrCodeChannelSendFailed, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
	}
}

// GetRequest godoc
// @ID          getRequest
// @Summary     Get request status
// @Description Returns the current snapshot of one request, including the response once completed.
// @Tags        Requests
// @Produce     json
//
// @Param       id  path  string  true  "Request ID"  example(req_a1b2c3d4e5f6)
//
// @Success     200  {object}  services.StatusSnapshot
// @Failure     404  {object}  handlers.ErrorResponse  "Request not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /requests/{id} [get]
func (h *Handlers) GetRequest(c *gin.Context) {
	snap, err := h.backend.GetStatus(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		ok(c, http.StatusOK, snap)
	case errors.Is(err, services.ErrRequestNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "request not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// AwaitRequest godoc
// @ID          awaitRequest
// @Summary     Wait for a response
// @Description Blocks until the request is answered or the wait budget runs out. The budget defaults to the one stored on the request.
// @Tags        Requests
// @Produce     json
//
// @Param       id               path   string  true   "Request ID"  example(req_a1b2c3d4e5f6)
// @Param       timeout_seconds  query  int     false  "Override the wait budget"  minimum(1)
//
// @Success     200  {object}  services.AwaitResult
// @Failure     404  {object}  handlers.ErrorResponse  "Request not found"
// @Failure     408  {object}  handlers.ErrorResponse  "No response within the budget"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /requests/{id}/await [get]
func (h *Handlers) AwaitRequest(c *gin.Context) {
	id := c.Param("id")
	timeout := utils.AtoiDefault(c.Query("timeout_seconds"), 0)

	res, err := h.backend.AwaitResponse(c.Request.Context(), id, timeout)
	switch {
	case err == nil:
		ok(c, http.StatusOK, res)
	case errors.Is(err, services.ErrRequestNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "request not found")
	case errors.Is(err, services.ErrAwaitTimeout):
		fail(c, http.StatusRequestTimeout, ErrCodeAwaitTimeout, "no response within the wait budget; the request stays pending")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// SubmitResponse godoc
// @ID          submitResponse
// @Summary     Submit a response
// @Description Records an answer for a pending request. The first answer wins; later submissions get 409 with the stored response.
// @Tags        Requests
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.SubmitResponsePayload  true  "Response payload"
//
// @Success     200  {object}  services.SubmitResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Request not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already completed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /response [post]
func (h *Handlers) SubmitResponse(c *gin.Context) {
	var req SubmitResponsePayload
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Response) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request_id and response required")
		return
	}

	res, err := h.backend.SubmitResponse(c.Request.Context(), req.RequestID, req.Response)
	switch {
	case err == nil && res.AlreadyCompleted:
		fail(c, http.StatusConflict, ErrCodeAlreadyCompleted,
			fmt.Sprintf("request already completed with response: %s", res.Response))
	case err == nil:
		ok(c, http.StatusOK, res)
	case errors.Is(err, services.ErrEmptyResponse):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrRequestNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "request not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// History godoc
// @ID          history
// @Summary     List recent requests
// @Description Returns recent requests newest-first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Requests
// @Produce     json
//
// @Param       If-None-Match   header  string  false  "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       limit           query   int     false  "Max results"   minimum(1) maximum(500) default(10)
// @Param       completed_only  query   bool    false  "Only completed requests"
//
// @Success     200  {object}  handlers.HistoryResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /history [get]
func (h *Handlers) History(c *gin.Context) {
	ctx := c.Request.Context()
	limit := utils.AtoiDefault(c.Query("limit"), 0)
	completedOnly := utils.BoolDefault(c.Query("completed_only"), false)

	// ETag pre-check (best effort, local backend only).
	if db := h.localDB(); db != nil {
		count, maxTS, err := repo.RequestsStats(ctx, db, completedOnly)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"history:%t:%d:%d"`, completedOnly, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, err := h.backend.ListHistory(ctx, limit, completedOnly)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, HistoryResponse{Requests: items, Count: len(items)})
}

// Cleanup godoc
// @ID          cleanup
// @Summary     Purge old requests
// @Description Hard-deletes requests older than the given number of days and reports a freed-space estimate.
// @Tags        Maintenance
// @Produce     json
//
// @Param       older_than_days  query  int  false  "Retention cutoff in days"  minimum(1) default(7)
//
// @Success     200  {object}  services.PurgeResult
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /cleanup [delete]
func (h *Handlers) Cleanup(c *gin.Context) {
	days := utils.AtoiDefault(c.Query("older_than_days"), 0)
	res, err := h.backend.PurgeExpired(c.Request.Context(), days)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodePurgeFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, res)
}
