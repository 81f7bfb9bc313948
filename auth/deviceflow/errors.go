/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package deviceflow

import (
	"errors"
	"fmt"
	"time"
)

// ErrPollInProgress is returned when Poll is called while another Poll
// is still running. A session has exactly one poller; the session is
// mutated only by its poll loop.
var ErrPollInProgress = errors.New("a device flow poll is already in progress")

// InitError indicates the device authorization endpoint could not be
// reached or returned a malformed response. The flow never started.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("starting device flow: %v", e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// DeniedError indicates the operator denied the authorization request.
// The flow is terminal; a new one must be started.
type DeniedError struct {
	UserCode string
	// Reason is set when the host reported an error other than the
	// standard access_denied.
	Reason string
}

func (e *DeniedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("device flow for code %s failed: %s", e.UserCode, e.Reason)
	}
	return fmt.Sprintf("device flow for code %s denied by operator", e.UserCode)
}

// ExpiredError indicates the device code expired before the operator
// approved it. The flow is terminal; a new one must be started.
type ExpiredError struct {
	ExpiredAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("device code expired at %s before approval", e.ExpiredAt.Format(time.RFC3339))
}
