/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package inspector

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chainguard.dev/gitbridge/githubapi"
	"github.com/google/go-cmp/cmp"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encoding response: %v", err)
	}
}

func newTestInspector(t *testing.T, mux *http.ServeMux) *Inspector {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	clients, err := githubapi.NewClients(context.Background(), "test-token", githubapi.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	return New(clients)
}

func TestRepositoryMap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"name": "widgets", "default_branch": "main"})
	})
	mux.HandleFunc("GET /repos/octo/widgets/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("recursive") == "" {
			t.Error("tree fetch was not recursive")
		}
		writeJSON(t, w, map[string]any{
			"sha": "tree-root",
			"tree": []map[string]any{
				{"path": "README.md", "type": "blob", "size": 120},
				{"path": "cmd", "type": "tree"},
				{"path": "cmd/main.go", "type": "blob", "size": 512},
			},
		})
	})

	entries, err := newTestInspector(t, mux).RepositoryMap(context.Background(), "octo", "widgets")
	if err != nil {
		t.Fatal(err)
	}

	want := []TreeEntry{
		{Path: "README.md", Type: "blob", Size: 120},
		{Path: "cmd", Type: "tree"},
		{Path: "cmd/main.go", Type: "blob", Size: 512},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("RepositoryMap mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectOverview(t *testing.T) {
	goMod := `module example.com/widgets

go 1.25

require (
	github.com/google/uuid v1.6.0
	golang.org/x/sync v0.20.0 // indirect
)

require gopkg.in/yaml.v3 v3.0.1
`
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/languages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]int{"Go": 15000, "Makefile": 300})
	})
	mux.HandleFunc("GET /repos/octo/widgets/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("path") != "go.mod" {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		writeJSON(t, w, map[string]any{
			"type": "file", "name": "go.mod", "path": "go.mod", "sha": "blob-1",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(goMod)),
		})
	})

	overview, err := newTestInspector(t, mux).ProjectOverview(context.Background(), "octo", "widgets")
	if err != nil {
		t.Fatal(err)
	}

	if overview.Languages["Go"] != 15000 {
		t.Errorf("Languages[Go] = %d, want 15000", overview.Languages["Go"])
	}
	want := []Dependency{
		{Name: "github.com/google/uuid", Version: "v1.6.0", Source: "go.mod"},
		{Name: "golang.org/x/sync", Version: "v0.20.0", Source: "go.mod"},
		{Name: "gopkg.in/yaml.v3", Version: "v3.0.1", Source: "go.mod"},
	}
	if diff := cmp.Diff(want, overview.Dependencies); diff != "" {
		t.Errorf("Dependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestInspectFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"type": "file", "name": "README.md", "path": "README.md", "sha": "blob-1",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte("# Widgets\n")),
		})
	})
	mux.HandleFunc("GET /repos/octo/widgets/commits", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("path"); got != "README.md" {
			t.Errorf("commit listing path = %q, want README.md", got)
		}
		writeJSON(t, w, []map[string]any{
			{
				"sha": "c2",
				"commit": map[string]any{
					"message": "docs: newest",
					"author":  map[string]any{"name": "Ada", "date": "2026-08-01T10:00:00Z"},
				},
			},
			{
				"sha": "c1",
				"commit": map[string]any{
					"message": "docs: older",
					"author":  map[string]any{"name": "Grace", "date": "2026-07-01T10:00:00Z"},
				},
			},
		})
	})
	mux.HandleFunc("GET /repos/octo/widgets/commits/c2/pulls", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			{"number": 41, "title": "docs: newest", "state": "closed", "html_url": "https://github.example/octo/widgets/pull/41"},
		})
	})

	report, err := newTestInspector(t, mux).InspectFile(context.Background(), "octo", "widgets", "README.md")
	if err != nil {
		t.Fatal(err)
	}

	if report.Content != "# Widgets\n" {
		t.Errorf("Content = %q, want %q", report.Content, "# Widgets\n")
	}
	if len(report.History) != 2 || report.History[0].SHA != "c2" {
		t.Errorf("History = %+v, want newest-first two commits", report.History)
	}
	if len(report.LinkedPRs) != 1 || report.LinkedPRs[0].Number != 41 {
		t.Errorf("LinkedPRs = %+v, want PR #41", report.LinkedPRs)
	}
}

func TestParsePackageJSON(t *testing.T) {
	content := `{
		"dependencies": {"react": "^18.0.0", "express": "4.19.0"},
		"devDependencies": {"vitest": "^1.0.0"}
	}`
	want := []Dependency{
		{Name: "express", Version: "4.19.0", Source: "package.json"},
		{Name: "react", Version: "^18.0.0", Source: "package.json"},
		{Name: "vitest", Version: "^1.0.0", Source: "package.json"},
	}
	if diff := cmp.Diff(want, parsePackageJSON(content)); diff != "" {
		t.Errorf("parsePackageJSON mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRequirements(t *testing.T) {
	content := "# comment\nrequests==2.31.0\nflask>=3.0\nuvicorn\n-r other.txt\n"
	want := []Dependency{
		{Name: "requests", Version: "2.31.0", Source: "requirements.txt"},
		{Name: "flask", Version: "3.0", Source: "requirements.txt"},
		{Name: "uvicorn", Source: "requirements.txt"},
	}
	if diff := cmp.Diff(want, parseRequirements(content)); diff != "" {
		t.Errorf("parseRequirements mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePubspec(t *testing.T) {
	content := `
name: widgets
dependencies:
  http: ^1.2.0
  local_thing:
    path: ../local
dev_dependencies:
  lints: ^3.0.0
`
	want := []Dependency{
		{Name: "http", Version: "^1.2.0", Source: "pubspec.yaml"},
		{Name: "local_thing", Source: "pubspec.yaml"},
		{Name: "lints", Version: "^3.0.0", Source: "pubspec.yaml"},
	}
	if diff := cmp.Diff(want, parsePubspec(content)); diff != "" {
		t.Errorf("parsePubspec mismatch (-want +got):\n%s", diff)
	}
}
