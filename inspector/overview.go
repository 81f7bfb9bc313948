/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package inspector

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"chainguard.dev/gitbridge/githubapi"
	"github.com/google/go-github/v84/github"
	"gopkg.in/yaml.v3"
)

// Dependency is one declared dependency discovered in a manifest.
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	// Source is the manifest file the dependency was read from.
	Source string `json:"source"`
}

// Overview summarizes a repository's tech stack: language byte counts
// as reported by the host, plus dependencies parsed from recognized
// manifest files at the repository root.
type Overview struct {
	Languages    map[string]int `json:"languages"`
	Dependencies []Dependency   `json:"dependencies"`
}

// manifestParsers maps recognized root-level manifests to their parsers.
var manifestParsers = map[string]func(content string) []Dependency{
	"go.mod":           parseGoMod,
	"package.json":     parsePackageJSON,
	"requirements.txt": parseRequirements,
	"pubspec.yaml":     parsePubspec,
}

// ProjectOverview fetches the language breakdown and scans the root of
// the default branch for dependency manifests.
func (i *Inspector) ProjectOverview(ctx context.Context, owner, repo string) (*Overview, error) {
	languages, err := githubapi.Retry(ctx, i.retry, "list languages", func() (map[string]int, error) {
		langs, _, err := i.clients.REST.Repositories.ListLanguages(ctx, owner, repo)
		return langs, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing languages: %w", err)
	}

	ov := &Overview{Languages: languages}

	// Manifests are looked up individually; a missing manifest is the
	// common case, not an error.
	names := make([]string, 0, len(manifestParsers))
	for name := range manifestParsers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		file, err := githubapi.Retry(ctx, i.retry, "get manifest", func() (*github.RepositoryContent, error) {
			file, _, _, err := i.clients.REST.Repositories.GetContents(ctx, owner, repo, name, nil)
			return file, err
		})
		if err != nil {
			if githubapi.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("fetching %s: %w", name, err)
		}
		if file == nil {
			continue
		}
		content, err := file.GetContent()
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", name, err)
		}
		ov.Dependencies = append(ov.Dependencies, manifestParsers[name](content)...)
	}

	return ov, nil
}

// parseGoMod pulls module paths and versions out of require blocks and
// single-line require directives. Indirect markers are preserved in the
// version string's absence of special handling; replaced modules are
// reported as required.
func parseGoMod(content string) []Dependency {
	var deps []Dependency
	inRequire := false

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "require (":
			inRequire = true
		case inRequire && line == ")":
			inRequire = false
		case inRequire, strings.HasPrefix(line, "require "):
			line = strings.TrimPrefix(line, "require ")
			if idx := strings.Index(line, "//"); idx >= 0 {
				line = strings.TrimSpace(line[:idx])
			}
			fields := strings.Fields(line)
			if len(fields) == 2 {
				deps = append(deps, Dependency{Name: fields[0], Version: fields[1], Source: "go.mod"})
			}
		}
	}
	return deps
}

// parsePackageJSON reads dependencies and devDependencies.
func parsePackageJSON(content string) []Dependency {
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal([]byte(content), &pkg); err != nil {
		return nil
	}

	var deps []Dependency
	for _, m := range []map[string]string{pkg.Dependencies, pkg.DevDependencies} {
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			deps = append(deps, Dependency{Name: name, Version: m[name], Source: "package.json"})
		}
	}
	return deps
}

// parseRequirements reads pinned and unpinned requirement lines.
func parseRequirements(content string) []Dependency {
	var deps []Dependency
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		name, version := line, ""
		for _, sep := range []string{"==", ">=", "<=", "~=", ">", "<"} {
			if idx := strings.Index(line, sep); idx >= 0 {
				name = strings.TrimSpace(line[:idx])
				version = strings.TrimSpace(line[idx+len(sep):])
				break
			}
		}
		deps = append(deps, Dependency{Name: name, Version: version, Source: "requirements.txt"})
	}
	return deps
}

// parsePubspec reads dependencies and dev_dependencies from a Dart
// pubspec. Non-scalar version constraints (git, path) are reported
// without a version.
func parsePubspec(content string) []Dependency {
	var spec struct {
		Dependencies    map[string]yaml.Node `yaml:"dependencies"`
		DevDependencies map[string]yaml.Node `yaml:"dev_dependencies"`
	}
	if err := yaml.Unmarshal([]byte(content), &spec); err != nil {
		return nil
	}

	var deps []Dependency
	for _, m := range []map[string]yaml.Node{spec.Dependencies, spec.DevDependencies} {
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			node := m[name]
			version := ""
			if node.Kind == yaml.ScalarNode {
				version = node.Value
			}
			deps = append(deps, Dependency{Name: name, Version: version, Source: "pubspec.yaml"})
		}
	}
	return deps
}
