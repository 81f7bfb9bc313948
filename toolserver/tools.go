/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolserver

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/gitbridge/contribute"
	"chainguard.dev/gitbridge/inspector"
	"chainguard.dev/gitbridge/toolserver/params"
	"github.com/gin-gonic/gin"
)

type startDeviceFlowArgs struct {
	Scopes []string `json:"scopes,omitempty" jsonschema:"description=OAuth scopes to request (defaults to repo)"`
}

type pollDeviceFlowArgs struct{}

type repoArgs struct {
	Repo string `json:"repo" jsonschema:"required,description=Target repository as owner/name"`
}

type inspectFileArgs struct {
	Repo string `json:"repo" jsonschema:"required,description=Target repository as owner/name"`
	Path string `json:"path" jsonschema:"required,description=File path within the repository"`
}

type proposeFileArg struct {
	Path        string `json:"path" jsonschema:"required,description=File path to write"`
	Content     string `json:"content" jsonschema:"required,description=Full new content of the file"`
	ExpectedSHA string `json:"expected_sha,omitempty" jsonschema:"description=Blob SHA recorded when the file was read; omit for new files"`
}

type proposeChangeArgs struct {
	Repo          string           `json:"repo" jsonschema:"required,description=Target repository as owner/name"`
	BaseBranch    string           `json:"base_branch" jsonschema:"required,description=Branch the pull request will target"`
	BranchName    string           `json:"branch_name" jsonschema:"required,description=Feature branch to create or reuse"`
	Files         []proposeFileArg `json:"files" jsonschema:"required,description=Files to apply as one commit"`
	CommitMessage string           `json:"commit_message" jsonschema:"required"`
	PRTitle       string           `json:"pr_title" jsonschema:"required"`
	PRBody        string           `json:"pr_body,omitempty"`
}

// registerAll wires the six stable tools into the dispatch table.
func (s *Server) registerAll() {
	s.register(Tool{
		Def: Definition{
			Name:        "start_device_flow",
			Description: "Begin GitHub device authorization. The verification code is shown to the human operator, not returned here.",
			Schema:      reflectSchema[startDeviceFlowArgs](),
		},
		Handler: s.startDeviceFlow,
	})
	s.register(Tool{
		Def: Definition{
			Name:        "poll_device_flow",
			Description: "Wait for the operator to approve the pending device authorization and return the issued credential.",
			Schema:      reflectSchema[pollDeviceFlowArgs](),
		},
		Handler: s.pollDeviceFlow,
	})
	s.register(Tool{
		Def: Definition{
			Name:        "get_repository_map",
			Description: "List the repository's full file tree with entry types and sizes.",
			Schema:      reflectSchema[repoArgs](),
		},
		Handler: s.getRepositoryMap,
	})
	s.register(Tool{
		Def: Definition{
			Name:        "get_project_overview",
			Description: "Summarize the repository's languages and declared dependencies.",
			Schema:      reflectSchema[repoArgs](),
		},
		Handler: s.getProjectOverview,
	})
	s.register(Tool{
		Def: Definition{
			Name:        "inspect_file",
			Description: "Read a file together with its commit history and linked pull requests.",
			Schema:      reflectSchema[inspectFileArgs](),
		},
		Handler: s.inspectFile,
	})
	s.register(Tool{
		Def: Definition{
			Name:        "propose_change",
			Description: "Apply a set of file edits as one commit on a feature branch and open (or reuse) a pull request for review.",
			Schema:      reflectSchema[proposeChangeArgs](),
		},
		Handler: s.proposeChange,
	})
}

func (s *Server) startDeviceFlow(c *gin.Context, inv *Invocation) (any, error) {
	scopes, err := stringSlice(inv.Args, "scopes")
	if err != nil {
		return nil, err
	}
	if len(scopes) == 0 {
		scopes = []string{"repo"}
	}

	session, err := s.controller.Start(c.Request.Context(), scopes)
	if err != nil {
		return nil, err
	}

	// The user code and verification URI were logged for the operator;
	// deliberately absent from this response.
	return gin.H{
		"status":     string(session.Status),
		"expires_at": session.ExpiresAt.Format(time.RFC3339),
		"interval":   session.Interval.Seconds(),
		"message":    "verification code surfaced to the operator console; call poll_device_flow to wait for approval",
	}, nil
}

func (s *Server) pollDeviceFlow(c *gin.Context, _ *Invocation) (any, error) {
	session := s.controller.Session()
	if session == nil {
		return nil, &InvalidArgumentError{Field: "session", Reason: "no device flow in progress; call start_device_flow first"}
	}

	cred, err := s.controller.Poll(c.Request.Context(), session)
	if err != nil {
		return nil, err
	}

	return gin.H{
		"status":       string(session.Status),
		"access_token": cred.Token,
		"obtained_at":  cred.ObtainedAt.Format(time.RFC3339),
		"scopes":       cred.Scopes,
	}, nil
}

func (s *Server) getRepositoryMap(c *gin.Context, inv *Invocation) (any, error) {
	owner, repo, err := repoArg(inv.Args)
	if err != nil {
		return nil, err
	}
	clients, err := s.clientsFor(c, inv)
	if err != nil {
		return nil, err
	}

	entries, err := inspector.New(clients).RepositoryMap(c.Request.Context(), owner, repo)
	if err != nil {
		return nil, err
	}
	return gin.H{"repo": owner + "/" + repo, "tree": entries}, nil
}

func (s *Server) getProjectOverview(c *gin.Context, inv *Invocation) (any, error) {
	owner, repo, err := repoArg(inv.Args)
	if err != nil {
		return nil, err
	}
	clients, err := s.clientsFor(c, inv)
	if err != nil {
		return nil, err
	}

	overview, err := inspector.New(clients).ProjectOverview(c.Request.Context(), owner, repo)
	if err != nil {
		return nil, err
	}
	return overview, nil
}

func (s *Server) inspectFile(c *gin.Context, inv *Invocation) (any, error) {
	owner, repo, err := repoArg(inv.Args)
	if err != nil {
		return nil, err
	}
	path, err := params.Get[string](inv.Args, "path")
	if err != nil {
		return nil, err
	}
	clients, err := s.clientsFor(c, inv)
	if err != nil {
		return nil, err
	}

	report, err := inspector.New(clients).InspectFile(c.Request.Context(), owner, repo, path)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Server) proposeChange(c *gin.Context, inv *Invocation) (any, error) {
	owner, repo, err := repoArg(inv.Args)
	if err != nil {
		return nil, err
	}

	var args proposeChangeArgs
	if err := decodeArgs(inv.Args, &args); err != nil {
		return nil, err
	}

	files := make([]contribute.FileChange, 0, len(args.Files))
	for _, f := range args.Files {
		files = append(files, contribute.FileChange{
			Path:        f.Path,
			Content:     f.Content,
			ExpectedSHA: f.ExpectedSHA,
		})
	}

	req := &contribute.Request{
		ChangeSet: contribute.ChangeSet{
			Owner:      owner,
			Repo:       repo,
			BaseBranch: args.BaseBranch,
			Files:      files,
		},
		BranchName:    args.BranchName,
		CommitMessage: args.CommitMessage,
		PRTitle:       args.PRTitle,
		PRBody:        args.PRBody,
	}
	if err := req.Validate(); err != nil {
		return nil, &InvalidArgumentError{Field: "files", Reason: err.Error()}
	}

	clients, err := s.clientsFor(c, inv)
	if err != nil {
		return nil, err
	}

	return contribute.New(clients).Propose(c.Request.Context(), req)
}

// repoArg parses the owner/name form shared by every repository tool.
func repoArg(args map[string]any) (owner, repo string, err error) {
	full, err := params.Get[string](args, "repo")
	if err != nil {
		return "", "", err
	}
	parts := strings.Split(full, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &InvalidArgumentError{Field: "repo", Reason: fmt.Sprintf("want owner/name, got %q", full)}
	}
	return parts[0], parts[1], nil
}

// decodeArgs maps the raw argument object onto a typed struct via a
// JSON round trip, which mirrors how the arguments arrived.
func decodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return &InvalidArgumentError{Field: "arguments", Reason: err.Error()}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &InvalidArgumentError{Field: "arguments", Reason: err.Error()}
	}
	return nil
}

// stringSlice extracts an optional []string argument, tolerating the
// []any shape JSON decoding produces.
func stringSlice(args map[string]any, name string) ([]string, error) {
	raw, err := params.GetOptional[[]any](args, name, nil)
	if err != nil {
		// A pre-typed []string passes through unchanged.
		if typed, typedErr := params.GetOptional[[]string](args, name, nil); typedErr == nil {
			return typed, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, &InvalidArgumentError{Field: name, Reason: fmt.Sprintf("want strings, got %T", v)}
		}
		out = append(out, s)
	}
	return out, nil
}
