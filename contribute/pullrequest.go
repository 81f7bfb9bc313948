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
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
)

// openPullRequest finds an open PR for the head/base pair and reuses it,
// or creates one. A PR that shares the head but targets a different base
// is deliberately not reused: the caller asked for this base, and
// silently redirecting would change the review surface.
func (o *Orchestrator) openPullRequest(ctx context.Context, cs *ChangeSet, branch BranchHandle, title, body string) (PullRequestRecord, error) {
	log := clog.FromContext(ctx)

	existing, err := o.findOpenPR(ctx, cs, branch.Name)
	if err != nil {
		return PullRequestRecord{}, &PRCreateError{Head: branch.Name, Base: cs.BaseBranch, Err: fmt.Errorf("querying existing pull requests: %w", err)}
	}
	if existing != nil {
		log.With("pr", existing.Number).Info("Reusing existing pull request")
		return *existing, nil
	}

	pr, err := githubapi.Retry(ctx, o.retry, "create pull request", func() (*github.PullRequest, error) {
		pr, _, err := o.clients.REST.PullRequests.Create(ctx, cs.Owner, cs.Repo, &github.NewPullRequest{
			Title: github.Ptr(title),
			Body:  github.Ptr(body),
			Head:  github.Ptr(branch.Name),
			Base:  github.Ptr(cs.BaseBranch),
		})
		return pr, err
	})
	if err != nil {
		switch {
		case isNoDiff(err):
			return PullRequestRecord{}, &NoChangesError{Head: branch.Name, Base: cs.BaseBranch}
		case isPRAlreadyExists(err):
			// Race between our lookup and create; whoever won, the PR is
			// there now.
			won, lookupErr := o.findOpenPR(ctx, cs, branch.Name)
			if lookupErr == nil && won != nil {
				log.With("pr", won.Number).Info("Pull request appeared concurrently, reusing")
				return *won, nil
			}
			fallthrough
		default:
			return PullRequestRecord{}, &PRCreateError{Head: branch.Name, Base: cs.BaseBranch, Err: err}
		}
	}

	return PullRequestRecord{
		Number:     pr.GetNumber(),
		URL:        pr.GetHTMLURL(),
		HeadBranch: branch.Name,
		BaseBranch: cs.BaseBranch,
		State:      PRStateOpen,
	}, nil
}

// findOpenPR looks for an open pull request with the given head and the
// change set's base. One GraphQL query covers the pair exactly.
func (o *Orchestrator) findOpenPR(ctx context.Context, cs *ChangeSet, head string) (*PullRequestRecord, error) {
	var query struct {
		Repository struct {
			PullRequests struct {
				Nodes []struct {
					Number int
					Url    string
				}
			} `graphql:"pullRequests(headRefName: $headRef, baseRefName: $baseRef, states: [OPEN], first: 1)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}

	variables := map[string]any{
		"owner":   githubv4.String(cs.Owner),
		"repo":    githubv4.String(cs.Repo),
		"headRef": githubv4.String(head),
		"baseRef": githubv4.String(cs.BaseBranch),
	}

	if err := o.clients.GraphQL.Query(ctx, &query, variables); err != nil {
		return nil, err
	}

	if len(query.Repository.PullRequests.Nodes) == 0 {
		return nil, nil
	}
	pr := query.Repository.PullRequests.Nodes[0]
	return &PullRequestRecord{
		Number:     pr.Number,
		URL:        pr.Url,
		HeadBranch: head,
		BaseBranch: cs.BaseBranch,
		State:      PRStateExistingReused,
	}, nil
}

func isNoDiff(err error) bool {
	return errorResponseContains(err, "no commits between")
}

func isPRAlreadyExists(err error) bool {
	return errorResponseContains(err, "pull request already exists")
}

// errorResponseContains matches a 422 validation rejection whose detail
// messages contain the given fragment.
func errorResponseContains(err error, fragment string) bool {
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) {
		return false
	}
	if ghErr.Response == nil || ghErr.Response.StatusCode != 422 {
		return false
	}
	if strings.Contains(strings.ToLower(ghErr.Message), fragment) {
		return true
	}
	for _, e := range ghErr.Errors {
		if strings.Contains(strings.ToLower(e.Message), fragment) {
			return true
		}
	}
	return false
}
