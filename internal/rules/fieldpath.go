// internal/rules/fieldpath.go
package rules

import (
	"strconv"
	"strings"

	"github.com/davidespo/rules-engine/internal/types"
)

/*
 * Field path resolution for record values.
 *
 * Paths are dotted strings built up while compiling nested object specs
 * ("profile.address.city"). Each segment is a key; a segment made only of
 * digits also indexes into arrays ("tags.0"). Bracket indices ("tags[0]")
 * are accepted as an alternative spelling.
 *
 * Key functions:
 *   - ParsePath: splits a dotted path into PathSegments
 *   - Resolve: walks a Value following PathSegments
 *   - accessor: builds the per-node value accessor used by compiled predicates
 *
 * Any segment that does not resolve (absent key, index out of range, scalar
 * or null in the middle of the path) yields types.Missing().
 */

// PathSegment is one step of a field path.
type PathSegment struct {
	Key     string // object key; also set for index segments ("0")
	Index   int    // array index when IsIndex
	IsIndex bool
}

// ResolveResult contains the resolved value and whether every segment
// resolved.
type ResolveResult struct {
	Value types.Value // types.Missing() if not found
	Found bool
}

// ParsePath splits a dotted path. The empty path has no segments.
func ParsePath(path string) []PathSegment {
	if path == "" {
		return nil
	}
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)
	parts := strings.Split(path, ".")

	segs := make([]PathSegment, 0, len(parts))
	for _, p := range parts {
		seg := PathSegment{Key: p}
		if isIndex(p) {
			if n, err := strconv.Atoi(p); err == nil {
				seg.Index = n
				seg.IsIndex = true
			}
		}
		segs = append(segs, seg)
	}
	return segs
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// JoinPath extends base with key using dot notation.
func JoinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

// Resolve walks data following path. Objects are walked by key, arrays by
// index segments. Missing segments yield Found=false and a Missing value.
func Resolve(path []PathSegment, data types.Value) ResolveResult {
	cur := data
	for _, seg := range path {
		switch cur.Kind() {
		case types.KindObject:
			cur = cur.Field(seg.Key)
		case types.KindArray:
			if !seg.IsIndex {
				return ResolveResult{Value: types.Missing()}
			}
			cur = cur.Index(seg.Index)
		default:
			return ResolveResult{Value: types.Missing()}
		}
		if cur.IsMissing() {
			return ResolveResult{Value: types.Missing()}
		}
	}
	return ResolveResult{Value: cur, Found: !cur.IsMissing()}
}

// accessor returns the function compiled predicates use to reach their value.
// With rawElement set, or an empty path, the input is returned unchanged.
func accessor(path string, rawElement bool) func(types.Value) types.Value {
	if rawElement || path == "" {
		return func(v types.Value) types.Value { return v }
	}
	segs := ParsePath(path)
	return func(v types.Value) types.Value {
		return Resolve(segs, v).Value
	}
}
