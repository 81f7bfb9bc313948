/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package params extracts typed values from the JSON argument object of
// a tool call. JSON numbers arrive as float64; the integer conversions
// here cover the common cases so tool handlers can ask for the type
// they mean.
package params

import "fmt"

// ArgError reports an argument that is missing or of the wrong type.
// It is surfaced to the caller before any component code runs.
type ArgError struct {
	Name   string
	Reason string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("argument %q: %s", e.Name, e.Reason)
}

// Get extracts a required argument.
func Get[T any](args map[string]any, name string) (T, error) {
	var zero T

	value, ok := args[name]
	if !ok {
		return zero, &ArgError{Name: name, Reason: "required"}
	}
	return convert[T](name, value)
}

// GetOptional extracts an optional argument, returning fallback when it
// is absent.
func GetOptional[T any](args map[string]any, name string, fallback T) (T, error) {
	value, ok := args[name]
	if !ok {
		return fallback, nil
	}
	return convert[T](name, value)
}

func convert[T any](name string, value any) (T, error) {
	if v, ok := value.(T); ok {
		return v, nil
	}

	var zero T
	switch any(zero).(type) {
	case int:
		if f, ok := value.(float64); ok {
			return any(int(f)).(T), nil
		}
	case int64:
		if f, ok := value.(float64); ok {
			return any(int64(f)).(T), nil
		}
	}
	return zero, &ArgError{Name: name, Reason: fmt.Sprintf("want %T, got %T", zero, value)}
}
