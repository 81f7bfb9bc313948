/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolserver

import (
	"errors"
	"fmt"
	"net/http"

	"chainguard.dev/gitbridge/auth/deviceflow"
	"chainguard.dev/gitbridge/contribute"
	"chainguard.dev/gitbridge/githubapi"
	"chainguard.dev/gitbridge/toolserver/params"
)

// InvalidArgumentError reports tool input that failed validation before
// reaching any component.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Reason)
}

// errorBody is the structured error payload returned to the agent.
// Errors are data: Detail carries whatever the caller needs to decide
// its next action (which files were stale, which PR already exists).
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// classify maps an error from a tool handler to an HTTP status and the
// structured payload for the response body.
func classify(err error) (int, errorBody) {
	var argErr *params.ArgError
	if errors.As(err, &argErr) {
		return http.StatusBadRequest, errorBody{
			Kind:    "InvalidArgumentError",
			Message: err.Error(),
			Detail:  map[string]string{"field": argErr.Name},
		}
	}
	var invalidErr *InvalidArgumentError
	if errors.As(err, &invalidErr) {
		return http.StatusBadRequest, errorBody{
			Kind:    "InvalidArgumentError",
			Message: err.Error(),
			Detail:  map[string]string{"field": invalidErr.Field},
		}
	}

	if errors.Is(err, errNoCredential) {
		return http.StatusUnauthorized, errorBody{Kind: "AuthRequiredError", Message: err.Error()}
	}
	if githubapi.IsUnauthorized(err) {
		return http.StatusUnauthorized, errorBody{
			Kind:    "AuthRequiredError",
			Message: "access token rejected: " + err.Error(),
		}
	}

	if errors.Is(err, deviceflow.ErrPollInProgress) {
		return http.StatusConflict, errorBody{Kind: "PollInProgressError", Message: err.Error()}
	}

	var initErr *deviceflow.InitError
	if errors.As(err, &initErr) {
		return http.StatusBadGateway, errorBody{Kind: "AuthInitError", Message: err.Error()}
	}
	var deniedErr *deviceflow.DeniedError
	if errors.As(err, &deniedErr) {
		return http.StatusForbidden, errorBody{
			Kind:    "AuthDeniedError",
			Message: err.Error(),
			Detail:  map[string]string{"user_code": deniedErr.UserCode},
		}
	}
	var expiredErr *deviceflow.ExpiredError
	if errors.As(err, &expiredErr) {
		return http.StatusGone, errorBody{Kind: "AuthExpiredError", Message: err.Error()}
	}

	var branchErr *contribute.BranchCreateError
	if errors.As(err, &branchErr) {
		return http.StatusConflict, errorBody{
			Kind:    "BranchCreateError",
			Message: err.Error(),
			Detail:  map[string]string{"base_branch": branchErr.BaseBranch, "branch": branchErr.Branch},
		}
	}
	var staleErr *contribute.AllFilesStaleError
	if errors.As(err, &staleErr) {
		return http.StatusConflict, errorBody{
			Kind:    "AllFilesStaleError",
			Message: err.Error(),
			Detail:  map[string]any{"files_rejected": staleErr.Rejected},
		}
	}
	var noChanges *contribute.NoChangesError
	if errors.As(err, &noChanges) {
		return http.StatusConflict, errorBody{
			Kind:    "NoChangesError",
			Message: err.Error(),
			Detail:  map[string]string{"head": noChanges.Head, "base": noChanges.Base},
		}
	}
	var prErr *contribute.PRCreateError
	if errors.As(err, &prErr) {
		return http.StatusConflict, errorBody{
			Kind:    "PRCreateError",
			Message: err.Error(),
			Detail:  map[string]string{"head": prErr.Head, "base": prErr.Base},
		}
	}

	var transportErr *githubapi.TransportError
	if errors.As(err, &transportErr) {
		return http.StatusBadGateway, errorBody{
			Kind:    "TransportError",
			Message: err.Error(),
			Detail:  map[string]any{"operation": transportErr.Operation, "attempts": transportErr.Attempts},
		}
	}

	return http.StatusInternalServerError, errorBody{Kind: "InternalError", Message: err.Error()}
}
