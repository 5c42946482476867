// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements APIKeyAuth, a shared-secret guard for the coordinating
// surface. Clients authenticate with an X-API-Key header and identify
// themselves with X-User-ID; the user id is stashed in the Gin context for
// downstream middleware (idempotency) and handlers.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Header names of the shared-secret authentication scheme.
const (
	HeaderAPIKey = "X-API-Key"
	HeaderUserID = "X-User-ID"
)

// ctxKeyUserID stashes the authenticated caller identity; read back via
// userIDFromCtx and the handlers' user resolution.
const ctxKeyUserID = "userID"

// APIKeyAuth returns a middleware that rejects requests whose X-API-Key
// header does not match apiKey. The comparison is constant-time. On success
// the X-User-ID header (when present) is stored in the context under
// "userID".
//
// An empty apiKey disables the guard entirely; intended for local
// development, never for an exposed deployment.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	secret := []byte(apiKey)
	return func(c *gin.Context) {
		// Identity is stashed even when the guard is disabled so that
		// idempotency records stay scoped per caller in development.
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
			c.Set(ctxKeyUserID, uid)
		}

		if len(secret) == 0 {
			c.Next()
			return
		}

		got := []byte(c.GetHeader(HeaderAPIKey))
		if subtle.ConstantTimeCompare(got, secret) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "unauthorized",
				"message": "invalid or missing API key",
			})
			return
		}
		c.Next()
	}
}
