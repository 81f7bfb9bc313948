/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package contribute turns an agent's intended edit into a reviewable
// pull request without clobbering concurrent work.
//
// A contribution moves through branch creation, a SHA-verified atomic
// commit, and pull request creation, in that order. Staleness is always
// reported back to the caller, never auto-merged or force-overwritten,
// and the ref update is the last mutating call of the commit step so an
// aborted run never strands a commit unreachable from any branch.
package contribute

import (
	"context"
	"fmt"

	"chainguard.dev/gitbridge/githubapi"
	"github.com/chainguard-dev/clog"
)

// PRState distinguishes a freshly opened pull request from one that
// already covered the head/base pair and was reused.
type PRState string

const (
	PRStateOpen           PRState = "OPEN"
	PRStateExistingReused PRState = "EXISTING_REUSED"
)

// BranchHandle describes the feature branch the contribution rides on.
type BranchHandle struct {
	Name           string `json:"name"`
	CreatedFromSHA string `json:"created_from_sha"`
	AlreadyExisted bool   `json:"already_existed"`
}

// CommitResult reports what a change set application actually did.
// Partial application is visible only through Rejected, never through a
// half-written commit.
type CommitResult struct {
	Branch    BranchHandle   `json:"branch"`
	CommitSHA string         `json:"commit_sha"`
	Applied   []string       `json:"files_applied"`
	Rejected  []RejectedFile `json:"files_rejected,omitempty"`
}

// PullRequestRecord describes the pull request that closes out a
// contribution, whether newly created or reused.
type PullRequestRecord struct {
	Number     int     `json:"number"`
	URL        string  `json:"url"`
	HeadBranch string  `json:"head_branch"`
	BaseBranch string  `json:"base_branch"`
	State      PRState `json:"state"`
}

// Request is one full contribution: the change set plus the metadata for
// the branch, commit, and pull request that deliver it.
type Request struct {
	ChangeSet

	BranchName    string
	CommitMessage string
	PRTitle       string
	PRBody        string
}

// Validate extends the ChangeSet invariants with the request metadata.
func (r *Request) Validate() error {
	if err := r.ChangeSet.Validate(); err != nil {
		return err
	}
	if r.BranchName == "" {
		return fmt.Errorf("request must name a feature branch")
	}
	if r.CommitMessage == "" {
		return fmt.Errorf("request must carry a commit message")
	}
	if r.PRTitle == "" {
		return fmt.Errorf("request must carry a pull request title")
	}
	return nil
}

// Result is the terminal state of a successful contribution.
type Result struct {
	Branch BranchHandle      `json:"branch"`
	Commit CommitResult      `json:"commit"`
	PR     PullRequestRecord `json:"pull_request"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetryConfig overrides the transient-failure retry budget.
func WithRetryConfig(cfg githubapi.RetryConfig) Option {
	return func(o *Orchestrator) {
		o.retry = cfg
	}
}

// Orchestrator sequences the contribution state machine against one
// authenticated client pair. It holds no per-request state; a single
// Orchestrator serves any number of sequential contributions.
type Orchestrator struct {
	clients *githubapi.Clients
	retry   githubapi.RetryConfig
}

// New returns an Orchestrator using the given clients.
func New(clients *githubapi.Clients, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		clients: clients,
		retry:   githubapi.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Propose runs the full contribution: ensure the feature branch exists,
// apply the change set as one commit, and open (or reuse) the pull
// request. Each step's failure mode is a typed error; a failed step
// leaves no partial repository state behind it.
func (o *Orchestrator) Propose(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := clog.FromContext(ctx).With("owner", req.Owner).
		With("repo", req.Repo).
		With("branch", req.BranchName).
		With("base", req.BaseBranch)
	ctx = clog.WithLogger(ctx, log)

	branch, err := o.ensureBranch(ctx, &req.ChangeSet, req.BranchName)
	if err != nil {
		return nil, err
	}
	log.With("already_existed", branch.AlreadyExisted).
		With("from_sha", branch.CreatedFromSHA).
		Info("Feature branch ready")

	commit, err := o.applyChangeSet(ctx, &req.ChangeSet, branch, req.CommitMessage)
	if err != nil {
		return nil, err
	}
	log.With("commit_sha", commit.CommitSHA).
		With("applied", len(commit.Applied)).
		With("rejected", len(commit.Rejected)).
		Info("Change set committed")

	pr, err := o.openPullRequest(ctx, &req.ChangeSet, branch, req.PRTitle, req.PRBody)
	if err != nil {
		return nil, err
	}
	log.With("pr", pr.Number).With("state", pr.State).Info("Pull request ready")

	return &Result{Branch: branch, Commit: commit, PR: pr}, nil
}
