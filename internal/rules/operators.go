// internal/rules/operators.go
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/davidespo/rules-engine/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Implements the 16 recognised operators. Each operator is turned into a
 * valueTest closure once, at compile time; patterns are compiled here too.
 *
 * Operators:
 *   - $eq/$ne: deep equality
 *   - $in/$nin: membership; array values test for overlap instead
 *   - $gt/$gte/$lt/$lte: same-kind ordering only (see compareOrdered)
 *   - $regex/$nregex/$like/$nlike: ECMAScript patterns over coerceText
 *   - $exists: presence (missing and null count as absent)
 *   - $all/$size: array containment and length
 *   - $elemMatch: handled by the compiler, which owns recursion
 *
 * Patterns use regexp2 in ECMAScript mode so documents written for
 * JavaScript engines keep their meaning (lookaround, backreferences).
 * A match that exceeds patternMatchTimeout counts as "no match" for both
 * $regex and $nregex.
 */

// Operator identifies a recognised operator key.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpIn
	OpNin
	OpGt
	OpGte
	OpLt
	OpLte
	OpRegex
	OpNregex
	OpExists
	OpLike
	OpNlike
	OpAll
	OpSize
	OpElemMatch
)

var operatorNames = [...]string{
	OpEq:        "$eq",
	OpNe:        "$ne",
	OpIn:        "$in",
	OpNin:       "$nin",
	OpGt:        "$gt",
	OpGte:       "$gte",
	OpLt:        "$lt",
	OpLte:       "$lte",
	OpRegex:     "$regex",
	OpNregex:    "$nregex",
	OpExists:    "$exists",
	OpLike:      "$like",
	OpNlike:     "$nlike",
	OpAll:       "$all",
	OpSize:      "$size",
	OpElemMatch: "$elemMatch",
}

// operatorOrder is the evaluation order of clauses within a set.
var operatorOrder = []Operator{
	OpEq, OpNe, OpIn, OpNin, OpGt, OpGte, OpLt, OpLte,
	OpRegex, OpNregex, OpExists, OpLike, OpNlike, OpAll, OpSize, OpElemMatch,
}

// operatorKeys maps document keys to operators.
var operatorKeys = func() map[string]Operator {
	m := make(map[string]Operator, len(operatorNames))
	for op, name := range operatorNames {
		m[name] = Operator(op)
	}
	return m
}()

// patternMatchTimeout bounds a single pattern evaluation.
const patternMatchTimeout = 250 * time.Millisecond

func (op Operator) String() string {
	if op < 0 || int(op) >= len(operatorNames) {
		return fmt.Sprintf("operator(%d)", int(op))
	}
	return operatorNames[op]
}

// isOperatorKey reports whether key is one of the recognised operator keys.
func isOperatorKey(key string) bool {
	_, ok := operatorKeys[key]
	return ok
}

// validOperand reports whether operand has the shape op requires.
// Clauses failing this check are dropped at parse time.
func validOperand(op Operator, operand types.Value) bool {
	switch op {
	case OpEq, OpNe:
		return true
	case OpIn, OpNin, OpAll:
		return operand.Kind() == types.KindArray
	case OpGt, OpGte, OpLt, OpLte:
		return !operand.IsAbsent()
	case OpRegex, OpNregex, OpLike, OpNlike:
		return operand.Kind() == types.KindString
	case OpExists:
		return operand.Kind() == types.KindBool
	case OpSize:
		return operand.Kind() == types.KindNumber
	case OpElemMatch:
		return operand.Kind() == types.KindObject
	default:
		return false
	}
}

// valueTest checks an already resolved value.
type valueTest func(types.Value) bool

// newOperatorTest builds the test for every operator except $elemMatch.
// Returns ErrInvalidPattern for pattern operands that do not compile.
func newOperatorTest(c OperatorClause) (valueTest, error) {
	o := c.Operand
	switch c.Op {
	case OpEq:
		return func(v types.Value) bool { return v.Equal(o) }, nil
	case OpNe:
		return func(v types.Value) bool { return !v.Equal(o) }, nil
	case OpIn:
		return func(v types.Value) bool { return matchIn(v, o) }, nil
	case OpNin:
		return func(v types.Value) bool { return !matchIn(v, o) }, nil
	case OpGt:
		return orderedTest(o, func(c int) bool { return c > 0 }), nil
	case OpGte:
		return orderedTest(o, func(c int) bool { return c >= 0 }), nil
	case OpLt:
		return orderedTest(o, func(c int) bool { return c < 0 }), nil
	case OpLte:
		return orderedTest(o, func(c int) bool { return c <= 0 }), nil
	case OpRegex, OpNregex, OpLike, OpNlike:
		return patternTest(c.Op, o)
	case OpExists:
		want, _ := o.AsBool()
		return func(v types.Value) bool { return v.IsAbsent() != want }, nil
	case OpAll:
		return func(v types.Value) bool { return matchAll(v, o) }, nil
	case OpSize:
		n, _ := o.AsNumber()
		return func(v types.Value) bool {
			return v.Kind() == types.KindArray && float64(v.Len()) == n
		}, nil
	default:
		return nil, fmt.Errorf("operator %s has no value test", c.Op)
	}
}

// matchIn tests membership, or overlap when v is itself an array.
func matchIn(v, list types.Value) bool {
	if v.Kind() == types.KindArray {
		for _, e := range v.Elems() {
			if list.Contains(e) {
				return true
			}
		}
		return false
	}
	return list.Contains(v)
}

// matchAll reports whether the array v contains every element of list.
func matchAll(v, list types.Value) bool {
	if v.Kind() != types.KindArray {
		return false
	}
	for _, want := range list.Elems() {
		if !v.Contains(want) {
			return false
		}
	}
	return true
}

func orderedTest(operand types.Value, accept func(int) bool) valueTest {
	return func(v types.Value) bool {
		c, ok := compareOrdered(v, operand)
		return ok && accept(c)
	}
}

func patternTest(op Operator, operand types.Value) (valueTest, error) {
	src, _ := operand.AsString()
	if op == OpLike || op == OpNlike {
		src = likePattern(src)
	}
	re, err := compilePattern(src)
	if err != nil {
		return nil, err
	}

	negate := op == OpNregex || op == OpNlike
	return func(v types.Value) bool {
		ok, err := re.MatchString(coerceText(v))
		if err != nil {
			return false
		}
		return ok != negate
	}, nil
}

// likePattern turns a LIKE expression into a pattern. Only % is translated;
// other metacharacters keep their pattern meaning.
func likePattern(expr string) string {
	return strings.ReplaceAll(expr, "%", ".*")
}

func compilePattern(src string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(src, regexp2.ECMAScript)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", types.ErrInvalidPattern, src, err)
	}
	re.MatchTimeout = patternMatchTimeout
	return re, nil
}
