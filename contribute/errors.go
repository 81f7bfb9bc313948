/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package contribute

import (
	"fmt"
	"strings"
)

// RejectReasonStaleBase marks a file whose expected blob SHA no longer
// matches the branch: it changed underneath the agent since it was read.
const RejectReasonStaleBase = "STALE_BASE"

// RejectedFile records a file the commit step refused to apply, with
// enough detail for the caller to re-read and retry.
type RejectedFile struct {
	Path        string `json:"path"`
	Reason      string `json:"reason"`
	ExpectedSHA string `json:"expected_sha,omitempty"`
	ActualSHA   string `json:"actual_sha,omitempty"`
}

// BranchCreateError indicates the branch step could not run, typically
// because the base branch does not resolve.
type BranchCreateError struct {
	BaseBranch string
	Branch     string
	Err        error
}

func (e *BranchCreateError) Error() string {
	return fmt.Sprintf("creating branch %s from %s: %v", e.Branch, e.BaseBranch, e.Err)
}

func (e *BranchCreateError) Unwrap() error { return e.Err }

// AllFilesStaleError indicates every file in the change set failed its
// SHA check. No commit was created and no ref was moved.
type AllFilesStaleError struct {
	Rejected []RejectedFile
}

func (e *AllFilesStaleError) Error() string {
	paths := make([]string, 0, len(e.Rejected))
	for _, r := range e.Rejected {
		paths = append(paths, r.Path)
	}
	return fmt.Sprintf("every file in the change set is stale: %s", strings.Join(paths, ", "))
}

// NoChangesError indicates the host refused to open a pull request
// because head and base have no diff.
type NoChangesError struct {
	Head string
	Base string
}

func (e *NoChangesError) Error() string {
	return fmt.Sprintf("no changes between %s and %s, nothing to open a pull request for", e.Head, e.Base)
}

// PRCreateError indicates the host rejected the pull request creation
// for a reason other than an existing PR or an empty diff.
type PRCreateError struct {
	Head string
	Base string
	Err  error
}

func (e *PRCreateError) Error() string {
	return fmt.Sprintf("opening pull request %s -> %s: %v", e.Head, e.Base, e.Err)
}

func (e *PRCreateError) Unwrap() error { return e.Err }
