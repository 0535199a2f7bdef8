// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

// verbClass grades a kubectl verb by the kind of change it makes.
type verbClass int

const (
	// classUnknown is any verb not in the tables. Unknown verbs are
	// ambiguous and ambiguity blocks.
	classUnknown verbClass = iota

	// classRead never changes cluster state.
	classRead

	// classCreate adds resources (gated by allow-create).
	classCreate

	// classUpdate modifies existing resources (gated by allow-update).
	classUpdate

	// classDelete removes resources or workloads (gated by allow-delete).
	classDelete

	// classForbidden verbs are never executed autonomously, whatever the
	// permission flags: they open interactive sessions, tunnels, or
	// editors that an unattended agent cannot supervise.
	classForbidden
)

// String returns a short label for diagnostics.
func (c verbClass) String() string {
	switch c {
	case classRead:
		return "read"
	case classCreate:
		return "create"
	case classUpdate:
		return "update"
	case classDelete:
		return "delete"
	case classForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// mutating reports whether the class changes cluster state.
func (c verbClass) mutating() bool {
	switch c {
	case classCreate, classUpdate, classDelete:
		return true
	default:
		return false
	}
}

// verbClasses maps every kubectl verb the gate understands to its class.
var verbClasses = map[string]verbClass{
	// Read-only verbs: always safe to run.
	"get":           classRead,
	"describe":      classRead,
	"logs":          classRead,
	"top":           classRead,
	"events":        classRead,
	"explain":       classRead,
	"version":       classRead,
	"api-resources": classRead,
	"api-versions":  classRead,
	"auth":          classRead,
	"wait":          classRead,
	"diff":          classRead,

	// Create-class verbs: gated by allow-create.
	"create":    classCreate,
	"expose":    classCreate,
	"run":       classCreate,
	"autoscale": classCreate,

	// Update-class verbs: gated by allow-update.
	"apply":    classUpdate,
	"patch":    classUpdate,
	"scale":    classUpdate,
	"label":    classUpdate,
	"annotate": classUpdate,
	"set":      classUpdate,
	"rollout":  classUpdate,
	"cordon":   classUpdate,
	"uncordon": classUpdate,
	"taint":    classUpdate,

	// Delete-class verbs: gated by allow-delete.
	"delete": classDelete,
	"drain":  classDelete,

	// Never executed autonomously.
	"exec":         classForbidden,
	"attach":       classForbidden,
	"cp":           classForbidden,
	"port-forward": classForbidden,
	"proxy":        classForbidden,
	"edit":         classForbidden,
	"debug":        classForbidden,
}

// classifyVerb grades a verb, defaulting to classUnknown.
func classifyVerb(verb string) verbClass {
	return verbClasses[verb]
}
