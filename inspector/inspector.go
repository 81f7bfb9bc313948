/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package inspector provides the read-only repository queries: the tree
// map, the language/dependency overview, and composite file inspection.
// It holds no state and retries nothing beyond the shared transient
// transport retry.
package inspector

import (
	"context"
	"fmt"

	"chainguard.dev/gitbridge/githubapi"
	"github.com/google/go-github/v84/github"
	"golang.org/x/sync/errgroup"
)

// TreeEntry is one node of a repository map, in the order the host
// returned it (paths, depth-first).
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int    `json:"size,omitempty"`
}

// CommitSummary is one history entry for an inspected file.
type CommitSummary struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
	Author  string `json:"author"`
	Date    string `json:"date"`
}

// LinkedPR is a pull request associated with a file's most recent commit.
type LinkedPR struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	URL    string `json:"url"`
}

// FileReport is the composite result of inspecting one file.
type FileReport struct {
	Path      string          `json:"path"`
	Content   string          `json:"content"`
	History   []CommitSummary `json:"commit_history"`
	LinkedPRs []LinkedPR      `json:"linked_pull_requests,omitempty"`
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithRetryConfig overrides the transient-failure retry budget.
func WithRetryConfig(cfg githubapi.RetryConfig) Option {
	return func(i *Inspector) {
		i.retry = cfg
	}
}

// WithHistoryLimit caps how many commits InspectFile reports per file.
func WithHistoryLimit(n int) Option {
	return func(i *Inspector) {
		i.historyLimit = n
	}
}

// Inspector answers read-only queries against one repository host.
type Inspector struct {
	clients      *githubapi.Clients
	retry        githubapi.RetryConfig
	historyLimit int
}

// New returns an Inspector using the given clients.
func New(clients *githubapi.Clients, opts ...Option) *Inspector {
	i := &Inspector{
		clients:      clients,
		retry:        githubapi.DefaultRetryConfig(),
		historyLimit: 20,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// RepositoryMap returns the full recursive tree of the repository's
// default branch.
func (i *Inspector) RepositoryMap(ctx context.Context, owner, repo string) ([]TreeEntry, error) {
	repoInfo, err := githubapi.Retry(ctx, i.retry, "get repository", func() (*github.Repository, error) {
		r, _, err := i.clients.REST.Repositories.Get(ctx, owner, repo)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching repository: %w", err)
	}

	tree, err := githubapi.Retry(ctx, i.retry, "get tree", func() (*github.Tree, error) {
		t, _, err := i.clients.REST.Git.GetTree(ctx, owner, repo, repoInfo.GetDefaultBranch(), true)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching tree: %w", err)
	}

	entries := make([]TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		entries = append(entries, TreeEntry{
			Path: e.GetPath(),
			Type: e.GetType(),
			Size: e.GetSize(),
		})
	}
	return entries, nil
}

// InspectFile returns the file's content, its commit history, and the
// pull requests linked to its most recent commit. Content and history
// are fetched concurrently; the PR lookup needs the newest commit and
// follows.
func (i *Inspector) InspectFile(ctx context.Context, owner, repo, path string) (*FileReport, error) {
	report := &FileReport{Path: path}

	eg, egctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		file, err := githubapi.Retry(egctx, i.retry, "get contents", func() (*github.RepositoryContent, error) {
			file, _, _, err := i.clients.REST.Repositories.GetContents(egctx, owner, repo, path, nil)
			return file, err
		})
		if err != nil {
			return fmt.Errorf("fetching %s: %w", path, err)
		}
		if file == nil {
			return fmt.Errorf("%s is a directory, not a file", path)
		}
		content, err := file.GetContent()
		if err != nil {
			return fmt.Errorf("decoding %s: %w", path, err)
		}
		report.Content = content
		return nil
	})

	eg.Go(func() error {
		commits, err := githubapi.Retry(egctx, i.retry, "list commits", func() ([]*github.RepositoryCommit, error) {
			commits, _, err := i.clients.REST.Repositories.ListCommits(egctx, owner, repo, &github.CommitsListOptions{
				Path:        path,
				ListOptions: github.ListOptions{PerPage: i.historyLimit},
			})
			return commits, err
		})
		if err != nil {
			return fmt.Errorf("listing commits for %s: %w", path, err)
		}
		for _, c := range commits {
			report.History = append(report.History, CommitSummary{
				SHA:     c.GetSHA(),
				Message: c.GetCommit().GetMessage(),
				Author:  c.GetCommit().GetAuthor().GetName(),
				Date:    c.GetCommit().GetAuthor().GetDate().Format("2006-01-02T15:04:05Z07:00"),
			})
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if len(report.History) > 0 {
		prs, err := githubapi.Retry(ctx, i.retry, "list linked prs", func() ([]*github.PullRequest, error) {
			prs, _, err := i.clients.REST.PullRequests.ListPullRequestsWithCommit(ctx, owner, repo, report.History[0].SHA, nil)
			return prs, err
		})
		if err != nil {
			return nil, fmt.Errorf("listing pull requests for %s: %w", path, err)
		}
		for _, pr := range prs {
			report.LinkedPRs = append(report.LinkedPRs, LinkedPR{
				Number: pr.GetNumber(),
				Title:  pr.GetTitle(),
				State:  pr.GetState(),
				URL:    pr.GetHTMLURL(),
			})
		}
	}

	return report, nil
}
