/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package contribute

import (
	"errors"
	"fmt"
)

// FileChange is one file edit inside a ChangeSet. ExpectedSHA, when set,
// is the blob SHA the caller read before editing; it is verified against
// the feature branch at commit time. New files leave it empty.
type FileChange struct {
	Path        string
	Content     string
	ExpectedSHA string
}

// ChangeSet is the caller's declared bundle of file edits, applied as a
// single commit. It is consumed once per Propose call.
type ChangeSet struct {
	Owner      string
	Repo       string
	BaseBranch string
	Files      []FileChange
}

// Validate enforces the ChangeSet invariants: a target repository, a
// base branch, at least one file, and unique non-empty paths.
func (cs *ChangeSet) Validate() error {
	if cs.Owner == "" || cs.Repo == "" {
		return errors.New("change set must name a target repository")
	}
	if cs.BaseBranch == "" {
		return errors.New("change set must name a base branch")
	}
	if len(cs.Files) == 0 {
		return errors.New("change set must contain at least one file")
	}
	seen := make(map[string]bool, len(cs.Files))
	for _, f := range cs.Files {
		if f.Path == "" {
			return errors.New("change set contains a file with an empty path")
		}
		if seen[f.Path] {
			return fmt.Errorf("change set contains %s more than once", f.Path)
		}
		seen[f.Path] = true
	}
	return nil
}
