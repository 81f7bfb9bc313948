/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package contribute

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/gitbridge/githubapi"
	"github.com/google/go-github/v84/github"
)

// ensureBranch resolves the base branch tip and creates the feature
// branch from it. An existing branch of the requested name is reused
// rather than treated as a failure, which makes retries of an
// interrupted contribution idempotent. The lookup-then-create sequence
// can race with a concurrent creation; a "reference already exists"
// rejection is folded into the reuse path.
func (o *Orchestrator) ensureBranch(ctx context.Context, cs *ChangeSet, name string) (BranchHandle, error) {
	baseRef, err := githubapi.Retry(ctx, o.retry, "get base ref", func() (*github.Reference, error) {
		ref, _, err := o.clients.REST.Git.GetRef(ctx, cs.Owner, cs.Repo, "heads/"+cs.BaseBranch)
		return ref, err
	})
	if err != nil {
		return BranchHandle{}, &BranchCreateError{BaseBranch: cs.BaseBranch, Branch: name, Err: fmt.Errorf("resolving base branch: %w", err)}
	}
	baseSHA := baseRef.GetObject().GetSHA()

	// Reuse before create: an earlier interrupted run may have left the
	// branch behind.
	existing, err := githubapi.Retry(ctx, o.retry, "get feature ref", func() (*github.Reference, error) {
		ref, _, err := o.clients.REST.Git.GetRef(ctx, cs.Owner, cs.Repo, "heads/"+name)
		return ref, err
	})
	if err == nil {
		return BranchHandle{
			Name:           name,
			CreatedFromSHA: existing.GetObject().GetSHA(),
			AlreadyExisted: true,
		}, nil
	}
	if !githubapi.IsNotFound(err) {
		return BranchHandle{}, &BranchCreateError{BaseBranch: cs.BaseBranch, Branch: name, Err: fmt.Errorf("looking up feature branch: %w", err)}
	}

	_, err = githubapi.Retry(ctx, o.retry, "create ref", func() (*github.Reference, error) {
		ref, _, err := o.clients.REST.Git.CreateRef(ctx, cs.Owner, cs.Repo, github.CreateRef{
			Ref: "refs/heads/" + name,
			SHA: baseSHA,
		})
		return ref, err
	})
	if err != nil {
		if isAlreadyExists(err) {
			// Lost the race to another writer; equivalent to finding it
			// on lookup.
			won, lookupErr := githubapi.Retry(ctx, o.retry, "get feature ref", func() (*github.Reference, error) {
				ref, _, err := o.clients.REST.Git.GetRef(ctx, cs.Owner, cs.Repo, "heads/"+name)
				return ref, err
			})
			if lookupErr != nil {
				return BranchHandle{}, &BranchCreateError{BaseBranch: cs.BaseBranch, Branch: name, Err: lookupErr}
			}
			return BranchHandle{
				Name:           name,
				CreatedFromSHA: won.GetObject().GetSHA(),
				AlreadyExisted: true,
			}, nil
		}
		return BranchHandle{}, &BranchCreateError{BaseBranch: cs.BaseBranch, Branch: name, Err: err}
	}

	return BranchHandle{Name: name, CreatedFromSHA: baseSHA}, nil
}

// isAlreadyExists matches GitHub's 422 rejection for a ref that is
// already present.
func isAlreadyExists(err error) bool {
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) {
		return false
	}
	if ghErr.Response == nil || ghErr.Response.StatusCode != 422 {
		return false
	}
	return strings.Contains(strings.ToLower(ghErr.Message), "already exists")
}
