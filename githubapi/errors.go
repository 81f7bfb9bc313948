/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubapi

import (
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/google/go-github/v84/github"
)

// TransportError reports that an operation failed on the transport level
// even after the bounded retry budget was spent. It is distinct from the
// domain errors (stale SHA, denied auth, ...), which are authoritative
// and surfaced on the first response.
type TransportError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying: connection-level
// failures and 5xx responses. 4xx responses are authoritative rejections
// and retrying them would be semantically wrong.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		if ghErr.Response == nil {
			return false
		}
		return ghErr.Response.StatusCode >= 500
	}

	// Secondary rate limits tell us when to come back; treat as transient
	// and let the backoff absorb the wait.
	var rateErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsUnauthorized reports whether err is a 401-class rejection, meaning
// the credential should be invalidated and the auth flow restarted.
func IsUnauthorized(err error) bool {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == 401
	}
	return false
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == 404
	}
	return false
}
