// Package services defines the business logic for relaying requests to a
// human responder and correlating their answers. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler layer.
package services

import "errors"

var (
	// ErrRequestNotFound indicates that the referenced request does not exist.
	ErrRequestNotFound = errors.New("request not found")

	// ErrAlreadyCompleted indicates an attempt to answer a request that has
	// already been finalized. The first response always wins.
	ErrAlreadyCompleted = errors.New("request already completed")

	// ErrEmptyMessage is returned when a request is created with an empty
	// message body.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrEmptyResponse is returned when a response submission carries no text.
	ErrEmptyResponse = errors.New("response is empty")

	// ErrChannelSend wraps failures to deliver the outbound message. The
	// request row is persisted before the send, so callers still hold a valid
	// request id when they see this error.
	ErrChannelSend = errors.New("channel send failed")

	// ErrAwaitTimeout is returned when the wait deadline passes without a
	// finalized response. The request stays pending and can still be answered
	// later.
	ErrAwaitTimeout = errors.New("timed out waiting for response")
)
