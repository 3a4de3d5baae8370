// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

// Package ingest consumes view events from JetStream and applies them to the
// durable store and the in-memory ledger exactly once. The pipeline
// classifies failures into permanent (drop or poison) and retryable (nack
// and redeliver) so the broker's redelivery machinery does the right thing.
package ingest

import "errors"

// ErrStoreUnavailable is returned when the durable store's circuit breaker
// is open and the write was not attempted.
var ErrStoreUnavailable = errors.New("durable store unavailable")

// RetryableError marks a transient failure. The message is nacked and
// redelivered with backoff.
type RetryableError struct {
	Message string
	Cause   error
}

// NewRetryableError wraps a transient failure.
func NewRetryableError(message string, cause error) *RetryableError {
	return &RetryableError{Message: message, Cause: cause}
}

func (e *RetryableError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *RetryableError) Unwrap() error { return e.Cause }

// PermanentError marks an unrecoverable failure such as malformed or invalid
// payloads. The message is not retried.
type PermanentError struct {
	Message string
	Cause   error
}

// NewPermanentError wraps an unrecoverable failure.
func NewPermanentError(message string, cause error) *PermanentError {
	return &PermanentError{Message: message, Cause: cause}
}

func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *PermanentError) Unwrap() error { return e.Cause }

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
