// internal/rules/compile.go
package rules

import (
	"github.com/davidespo/rules-engine/internal/types"
)

/*
 * Match rule compilation.
 *
 * Compiles a MatchSpec into a Predicate closure over a record value. Every
 * node captures its own accessor (the dotted path accumulated from the root,
 * or the identity when compiling relative to an array element), so no
 * interpretation happens at evaluation time.
 *
 * Path rebasing:
 *   - OR-list alternatives are compiled relative to the value the list
 *     resolves to, so nested lists keep their own path.
 *   - $elemMatch bodies are compiled relative to each element; object specs
 *     inside the body resolve their keys inside the element.
 *
 * Compilation fails only for ErrMixedOrList (raised by ParseMatchSpec) and
 * ErrInvalidPattern. Shape mismatches compile to predicates that return
 * false.
 */

// Predicate reports whether a record value satisfies a compiled match spec.
// Predicates are pure and safe for concurrent use.
type Predicate func(types.Value) bool

func alwaysTrue(types.Value) bool  { return true }
func alwaysFalse(types.Value) bool { return false }

// CompileMatch parses and compiles a match document at the root path.
func CompileMatch(doc any) (Predicate, error) {
	spec, err := ParseMatchSpec(doc)
	if err != nil {
		return nil, err
	}
	return Compile(spec, "", false)
}

// Compile turns spec into a Predicate. path is the dotted path the node
// applies to; rawElement means the input already is the value to test.
func Compile(spec MatchSpec, path string, rawElement bool) (Predicate, error) {
	get := accessor(path, rawElement)

	switch spec.Kind {
	case SpecLiteral:
		lit := spec.Literal
		if lit.IsNull() {
			// Missing fields do not equal null.
			return func(in types.Value) bool { return get(in).IsNull() }, nil
		}
		return func(in types.Value) bool { return get(in).Equal(lit) }, nil

	case SpecLiteralArray:
		lit := spec.Literal
		return func(in types.Value) bool { return get(in).Equal(lit) }, nil

	case SpecOrList:
		return compileOrList(spec, get)

	case SpecOperatorSet:
		return compileOperatorSet(spec, get)

	case SpecObject:
		base := path
		if rawElement {
			base = ""
		}
		return compileObject(spec, base)

	default:
		return alwaysFalse, nil
	}
}

func compileOrList(spec MatchSpec, get func(types.Value) types.Value) (Predicate, error) {
	if len(spec.AnyOf) == 0 {
		return alwaysTrue, nil
	}

	alts := make([]Predicate, 0, len(spec.AnyOf))
	for _, alt := range spec.AnyOf {
		p, err := Compile(alt, "", false)
		if err != nil {
			return nil, err
		}
		alts = append(alts, p)
	}

	return func(in types.Value) bool {
		v := get(in)
		for _, p := range alts {
			if p(v) {
				return true
			}
		}
		return false
	}, nil
}

func compileOperatorSet(spec MatchSpec, get func(types.Value) types.Value) (Predicate, error) {
	if len(spec.Clauses) == 0 {
		return alwaysFalse, nil
	}

	tests := make([]valueTest, 0, len(spec.Clauses))
	for _, c := range spec.Clauses {
		if c.Op == OpElemMatch {
			t, err := compileElemMatch(c)
			if err != nil {
				return nil, err
			}
			tests = append(tests, t)
			continue
		}
		t, err := newOperatorTest(c)
		if err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}

	return func(in types.Value) bool {
		v := get(in)
		for _, t := range tests {
			if !t(v) {
				return false
			}
		}
		return true
	}, nil
}

func compileElemMatch(c OperatorClause) (valueTest, error) {
	if c.Body == nil {
		return func(types.Value) bool { return false }, nil
	}
	body, err := Compile(*c.Body, "", true)
	if err != nil {
		return nil, err
	}
	return func(v types.Value) bool {
		for _, e := range v.Elems() {
			if body(e) {
				return true
			}
		}
		return false
	}, nil
}

func compileObject(spec MatchSpec, base string) (Predicate, error) {
	children := make([]Predicate, 0, len(spec.Fields))
	for _, f := range spec.Fields {
		p, err := Compile(f.Spec, JoinPath(base, f.Key), false)
		if err != nil {
			return nil, err
		}
		children = append(children, p)
	}

	return func(in types.Value) bool {
		for _, p := range children {
			if !p(in) {
				return false
			}
		}
		return true
	}, nil
}
