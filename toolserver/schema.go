/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolserver

import "github.com/invopop/jsonschema"

// reflector is configured so that tool argument schemas come out flat:
// no $ref indirection, required fields driven by struct tags.
var reflector = jsonschema.Reflector{
	RequiredFromJSONSchemaTags: true,
	ExpandedStruct:             true,
	DoNotReference:             true,
}

// reflectSchema derives the JSON schema for a tool's argument struct.
func reflectSchema[T any]() *jsonschema.Schema {
	var zero T
	return reflector.Reflect(&zero)
}
