/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package params_test

import (
	"errors"
	"testing"

	"chainguard.dev/gitbridge/toolserver/params"
)

func TestGet(t *testing.T) {
	args := map[string]any{
		"repo":  "octo/widgets",
		"count": float64(42),
		"flag":  true,
		"empty": "",
	}

	t.Run("string", func(t *testing.T) {
		v, err := params.Get[string](args, "repo")
		if err != nil {
			t.Fatal(err)
		}
		if v != "octo/widgets" {
			t.Errorf("got %q, want octo/widgets", v)
		}
	})

	t.Run("empty string", func(t *testing.T) {
		v, err := params.Get[string](args, "empty")
		if err != nil {
			t.Fatal(err)
		}
		if v != "" {
			t.Errorf("got %q, want empty string", v)
		}
	})

	t.Run("int from float64", func(t *testing.T) {
		v, err := params.Get[int](args, "count")
		if err != nil {
			t.Fatal(err)
		}
		if v != 42 {
			t.Errorf("got %d, want 42", v)
		}
	})

	t.Run("bool", func(t *testing.T) {
		v, err := params.Get[bool](args, "flag")
		if err != nil {
			t.Fatal(err)
		}
		if !v {
			t.Error("got false, want true")
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := params.Get[string](args, "absent")
		var argErr *params.ArgError
		if !errors.As(err, &argErr) {
			t.Fatalf("error = %v, want ArgError", err)
		}
		if argErr.Name != "absent" {
			t.Errorf("ArgError.Name = %q, want absent", argErr.Name)
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := params.Get[int](args, "repo")
		var argErr *params.ArgError
		if !errors.As(err, &argErr) {
			t.Fatalf("error = %v, want ArgError", err)
		}
	})
}

func TestGetOptional(t *testing.T) {
	args := map[string]any{"limit": float64(10)}

	t.Run("present", func(t *testing.T) {
		v, err := params.GetOptional[int](args, "limit", 5)
		if err != nil {
			t.Fatal(err)
		}
		if v != 10 {
			t.Errorf("got %d, want 10", v)
		}
	})

	t.Run("absent uses fallback", func(t *testing.T) {
		v, err := params.GetOptional[int](args, "absent", 5)
		if err != nil {
			t.Fatal(err)
		}
		if v != 5 {
			t.Errorf("got %d, want 5", v)
		}
	})

	t.Run("wrong type still errors", func(t *testing.T) {
		_, err := params.GetOptional[string](args, "limit", "x")
		if err == nil {
			t.Error("GetOptional() accepted a number as string")
		}
	})
}
