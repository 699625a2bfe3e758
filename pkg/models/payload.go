package models

import "strings"

// MergePayload returns a deep copy of base with patch merged in. Nested maps
// are merged key by key; any other value in patch replaces the base value.
func MergePayload(base, patch map[string]any) map[string]any {
	merged := ClonePayload(base)

	for key, value := range patch {
		patchMap, patchIsMap := value.(map[string]any)
		baseMap, baseIsMap := merged[key].(map[string]any)

		if patchIsMap && baseIsMap {
			merged[key] = MergePayload(baseMap, patchMap)

			continue
		}

		if patchIsMap {
			merged[key] = ClonePayload(patchMap)

			continue
		}

		merged[key] = value
	}

	return merged
}

// ClonePayload deep-copies nested maps; slices and scalars are shared.
func ClonePayload(payload map[string]any) map[string]any {
	clone := make(map[string]any, len(payload))

	for key, value := range payload {
		if nested, ok := value.(map[string]any); ok {
			clone[key] = ClonePayload(nested)

			continue
		}

		clone[key] = value
	}

	return clone
}

// PathPatch builds the nested patch that sets a dotted path to value,
// e.g. "risk.approved" -> {"risk": {"approved": value}}.
func PathPatch(path string, value any) map[string]any {
	segments := strings.Split(path, ".")

	var patch any = value
	for i := len(segments) - 1; i >= 0; i-- {
		patch = map[string]any{segments[i]: patch}
	}

	return patch.(map[string]any)
}
