/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package contribute

import (
	"context"
	"fmt"

	"chainguard.dev/gitbridge/githubapi"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// regularFileMode is the tree entry mode for a non-executable blob.
const regularFileMode = "100644"

// applyChangeSet verifies each file against the feature branch, builds
// one tree and one commit from the survivors, and moves the branch ref.
// Stale files are rejected individually rather than failing the whole
// set; a set that is stale in its entirety produces AllFilesStaleError
// and no commit at all. The ref update is the final mutating call, so a
// failure at any earlier point leaves the branch untouched (an orphan
// tree or commit object is garbage-collected by the host, never
// reachable from a ref).
func (o *Orchestrator) applyChangeSet(ctx context.Context, cs *ChangeSet, branch BranchHandle, message string) (CommitResult, error) {
	log := clog.FromContext(ctx)

	// The branch tip may have advanced past CreatedFromSHA on a reused
	// branch; resolve it fresh.
	tipRef, err := githubapi.Retry(ctx, o.retry, "get branch tip", func() (*github.Reference, error) {
		ref, _, err := o.clients.REST.Git.GetRef(ctx, cs.Owner, cs.Repo, "heads/"+branch.Name)
		return ref, err
	})
	if err != nil {
		return CommitResult{}, fmt.Errorf("resolving tip of %s: %w", branch.Name, err)
	}
	tipSHA := tipRef.GetObject().GetSHA()

	var entries []*github.TreeEntry
	var applied []string
	var rejected []RejectedFile

	for _, f := range cs.Files {
		if f.ExpectedSHA != "" {
			actual, err := o.currentBlobSHA(ctx, cs, branch.Name, f.Path)
			if err != nil {
				return CommitResult{}, fmt.Errorf("checking %s: %w", f.Path, err)
			}
			if actual != f.ExpectedSHA {
				// The file changed underneath the agent since it last
				// read it. Reject, do not overwrite.
				log.With("path", f.Path).
					With("expected_sha", f.ExpectedSHA).
					With("actual_sha", actual).
					Warn("Rejecting stale file")
				rejected = append(rejected, RejectedFile{
					Path:        f.Path,
					Reason:      RejectReasonStaleBase,
					ExpectedSHA: f.ExpectedSHA,
					ActualSHA:   actual,
				})
				continue
			}
		}
		applied = append(applied, f.Path)
		entries = append(entries, &github.TreeEntry{
			Path:    github.Ptr(f.Path),
			Mode:    github.Ptr(regularFileMode),
			Type:    github.Ptr("blob"),
			Content: github.Ptr(f.Content),
		})
	}

	if len(entries) == 0 {
		return CommitResult{}, &AllFilesStaleError{Rejected: rejected}
	}

	tree, err := githubapi.Retry(ctx, o.retry, "create tree", func() (*github.Tree, error) {
		tree, _, err := o.clients.REST.Git.CreateTree(ctx, cs.Owner, cs.Repo, tipSHA, entries)
		return tree, err
	})
	if err != nil {
		return CommitResult{}, fmt.Errorf("creating tree: %w", err)
	}

	commit, err := githubapi.Retry(ctx, o.retry, "create commit", func() (*github.Commit, error) {
		commit, _, err := o.clients.REST.Git.CreateCommit(ctx, cs.Owner, cs.Repo, github.Commit{
			Message: github.Ptr(message),
			Tree:    tree,
			Parents: []*github.Commit{{SHA: github.Ptr(tipSHA)}},
		}, nil)
		return commit, err
	})
	if err != nil {
		return CommitResult{}, fmt.Errorf("creating commit: %w", err)
	}

	// Fast-forward only: a forced update here could hide a concurrent
	// push that won the race between our tip resolution and now.
	_, err = githubapi.Retry(ctx, o.retry, "update ref", func() (*github.Reference, error) {
		ref, _, err := o.clients.REST.Git.UpdateRef(ctx, cs.Owner, cs.Repo, "refs/heads/"+branch.Name, github.UpdateRef{
			SHA:   commit.GetSHA(),
			Force: github.Ptr(false),
		})
		return ref, err
	})
	if err != nil {
		return CommitResult{}, fmt.Errorf("advancing %s: %w", branch.Name, err)
	}

	return CommitResult{
		Branch:    branch,
		CommitSHA: commit.GetSHA(),
		Applied:   applied,
		Rejected:  rejected,
	}, nil
}

// currentBlobSHA returns the blob SHA of path on ref, or empty when the
// path does not exist there.
func (o *Orchestrator) currentBlobSHA(ctx context.Context, cs *ChangeSet, ref, path string) (string, error) {
	file, err := githubapi.Retry(ctx, o.retry, "get file sha", func() (*github.RepositoryContent, error) {
		file, _, _, err := o.clients.REST.Repositories.GetContents(ctx, cs.Owner, cs.Repo, path, &github.RepositoryContentGetOptions{Ref: ref})
		return file, err
	})
	if err != nil {
		if githubapi.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	if file == nil {
		return "", fmt.Errorf("%s is not a file", path)
	}
	return file.GetSHA(), nil
}
