// Package publish defines the channel publisher boundary: the scheduler
// depends only on the narrow attempt-publish contract here, never on channel
// internals.
package publish

import (
	"context"
	"errors"
	"fmt"
)

// Request carries the resolved draft for one channel attempt.
type Request struct {
	ContentItemID int64  `json:"content_item_id"`
	VersionNo     int    `json:"version_no"`
	Channel       string `json:"channel"`
	Title         string `json:"title"`
	Body          string `json:"body"`
	Summary       string `json:"summary"`
	ExternalURL   string `json:"external_url,omitempty"`
	IsBreaking    bool   `json:"is_breaking"`

	// SilencePush tells the channel to deliver without push notifications
	// (night-mode silenced publishes).
	SilencePush bool `json:"silence_push"`
}

// Result is a successful channel attempt.
type Result struct {
	ExternalPostID string
}

// Publisher attempts delivery of one content version to one channel.
type Publisher interface {
	Channel() string
	AttemptPublish(ctx context.Context, req *Request) (*Result, error)
}

// ErrorKind tags whether a channel failure is worth retrying.
type ErrorKind string

const (
	// KindTransient failures (network, timeout, rate limit, 5xx) are retried
	// up to the job's attempt cap.
	KindTransient ErrorKind = "transient"
	// KindPermanent failures (content rejected by platform policy) are not
	// retried on that channel.
	KindPermanent ErrorKind = "permanent"
	// KindUnknown failures are treated like transient ones.
	KindUnknown ErrorKind = "unknown"
)

// Error is a classified channel failure.
type Error struct {
	Kind        ErrorKind
	AuthError   bool
	RateLimited bool
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("channel error (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the scheduler should attempt this channel again.
func (e *Error) Retryable() bool {
	return e.Kind != KindPermanent
}

// AsError classifies err, preserving an existing classification and tagging
// everything else as unknown.
func AsError(err error) *Error {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransient, Err: err}
	}
	return &Error{Kind: KindUnknown, Err: err}
}

// Transient wraps err as a retryable failure.
func Transient(err error) *Error {
	return &Error{Kind: KindTransient, Err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(err error) *Error {
	return &Error{Kind: KindPermanent, Err: err}
}
