// internal/rules/spec.go
package rules

import (
	"fmt"

	"github.com/davidespo/rules-engine/internal/types"
)

/*
 * Match document parsing.
 *
 * Turns a declarative match document (decoded JSON/YAML, Go literals or a
 * types.Value) into MatchSpec, an explicit tagged union. The shape of a node
 * is decided by its value:
 *
 *   - scalar or null           -> SpecLiteral
 *   - array of mappings        -> SpecOrList (empty array included)
 *   - array without mappings   -> SpecLiteralArray
 *   - array mixing both        -> ErrMixedOrList
 *   - mapping with an operator -> SpecOperatorSet
 *   - any other mapping        -> SpecObject
 *   - anything else            -> SpecUnsupported (never matches)
 *
 * Operator precedence: one recognised operator key is enough to make a
 * mapping an operator set. Non-operator keys next to it are ignored.
 *
 * Operand shapes: an operator whose operand has the wrong shape ($in with a
 * non-array, $gt with null, $regex with a non-string...) is dropped from the
 * set. A set whose operators were all dropped never matches. It is not
 * reread as nested field specs, which would make {"a": {"$size": {}}} or
 * {"a": {"$elemMatch": []}} match every record.
 */

// SpecKind identifies the variant held by a MatchSpec.
type SpecKind uint8

const (
	SpecUnsupported SpecKind = iota
	SpecLiteral
	SpecLiteralArray
	SpecOrList
	SpecOperatorSet
	SpecObject
)

func (k SpecKind) String() string {
	switch k {
	case SpecLiteral:
		return "literal"
	case SpecLiteralArray:
		return "literal-array"
	case SpecOrList:
		return "or-list"
	case SpecOperatorSet:
		return "operator-set"
	case SpecObject:
		return "object"
	default:
		return "unsupported"
	}
}

// MatchSpec is one node of a parsed match document.
type MatchSpec struct {
	Kind SpecKind

	// Literal is the value compared by SpecLiteral and SpecLiteralArray.
	Literal types.Value

	// AnyOf holds the alternatives of SpecOrList.
	AnyOf []MatchSpec

	// Clauses holds the operators of SpecOperatorSet, ordered by operator.
	Clauses []OperatorClause

	// Fields holds the per-key specs of SpecObject, sorted by key.
	Fields []FieldSpec
}

// FieldSpec is one key of an object spec. Key may itself be a dotted path.
type FieldSpec struct {
	Key  string
	Spec MatchSpec
}

// OperatorClause is one operator of an operator set.
type OperatorClause struct {
	Op      Operator
	Operand types.Value
	// Body is the parsed $elemMatch document; nil for other operators.
	Body *MatchSpec
}

// ParseMatchSpec parses a match document.
// Returns ErrMixedOrList (wrapped with the offending path) for arrays mixing
// mapping and non-mapping elements. Every other input parses.
func ParseMatchSpec(doc any) (MatchSpec, error) {
	switch d := doc.(type) {
	case MatchSpec:
		return d, nil
	case *MatchSpec:
		if d == nil {
			return MatchSpec{Kind: SpecUnsupported}, nil
		}
		return *d, nil
	}

	v, err := types.FromAny(doc)
	if err != nil {
		return MatchSpec{Kind: SpecUnsupported}, nil
	}
	return parseValue(v, "")
}

// parseValue dispatches on the value shape. path is only used for errors.
func parseValue(v types.Value, path string) (MatchSpec, error) {
	switch v.Kind() {
	case types.KindNull, types.KindBool, types.KindNumber, types.KindString:
		return MatchSpec{Kind: SpecLiteral, Literal: v}, nil
	case types.KindArray:
		return parseArray(v, path)
	case types.KindObject:
		return parseMapping(v, path)
	default:
		return MatchSpec{Kind: SpecUnsupported}, nil
	}
}

// parseArray separates OR-lists from literal arrays.
func parseArray(v types.Value, path string) (MatchSpec, error) {
	elems := v.Elems()
	mappings := 0
	for _, e := range elems {
		if e.Kind() == types.KindObject {
			mappings++
		}
	}

	switch {
	case len(elems) == 0:
		return MatchSpec{Kind: SpecOrList}, nil
	case mappings == len(elems):
		alts := make([]MatchSpec, 0, len(elems))
		for i, e := range elems {
			alt, err := parseValue(e, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return MatchSpec{}, err
			}
			alts = append(alts, alt)
		}
		return MatchSpec{Kind: SpecOrList, AnyOf: alts}, nil
	case mappings > 0:
		return MatchSpec{}, fmt.Errorf("%w (path %q)", types.ErrMixedOrList, displayPath(path))
	default:
		return MatchSpec{Kind: SpecLiteralArray, Literal: v}, nil
	}
}

// parseMapping builds an operator set when any operator key is present,
// an object spec otherwise.
func parseMapping(v types.Value, path string) (MatchSpec, error) {
	keys := v.Keys()

	hasOperator := false
	for _, k := range keys {
		if isOperatorKey(k) {
			hasOperator = true
			break
		}
	}

	if !hasOperator {
		fields := make([]FieldSpec, 0, len(keys))
		for _, k := range keys {
			child, err := parseValue(v.Field(k), JoinPath(path, k))
			if err != nil {
				return MatchSpec{}, err
			}
			fields = append(fields, FieldSpec{Key: k, Spec: child})
		}
		return MatchSpec{Kind: SpecObject, Fields: fields}, nil
	}

	clauses := make([]OperatorClause, 0, len(keys))
	for _, op := range operatorOrder {
		operand := v.Field(op.String())
		if operand.IsMissing() || !validOperand(op, operand) {
			continue
		}
		clause := OperatorClause{Op: op, Operand: operand}
		if op == OpElemMatch {
			body, err := parseValue(operand, path+"."+op.String())
			if err != nil {
				return MatchSpec{}, err
			}
			clause.Body = &body
		}
		clauses = append(clauses, clause)
	}
	return MatchSpec{Kind: SpecOperatorSet, Clauses: clauses}, nil
}

// displayPath renders the root path readably in errors.
func displayPath(path string) string {
	if path == "" {
		return "$"
	}
	return path
}
