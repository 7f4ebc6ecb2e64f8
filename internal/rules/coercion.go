// internal/rules/coercion.go
package rules

import (
	"math"
	"strconv"
	"strings"

	"github.com/davidespo/rules-engine/internal/types"
)

/*
 * Value coercion for operator evaluation.
 *
 * Two concerns live here:
 *
 *   - coerceText: the text form a non-string value takes when tested against
 *     a pattern operator ($regex, $nregex, $like, $nlike). It follows
 *     JavaScript's String(v): null is "null", an absent field "undefined",
 *     an object "[object Object]", arrays join their elements with ","
 *     (null and absent elements as ""), and numbers switch to exponent
 *     form outside [1e-6, 1e21).
 *   - compareOrdered: three-way comparison for $gt/$gte/$lt/$lte. Only
 *     number/number, string/string and bool/bool pairs are comparable;
 *     every other pairing reports ok=false and the operator fails.
 *
 * Strings compare by byte order, which is code point order for UTF-8.
 */

// coerceText renders v for pattern matching.
func coerceText(v types.Value) string {
	switch v.Kind() {
	case types.KindMissing:
		return "undefined"
	case types.KindNull:
		return "null"
	case types.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	case types.KindNumber:
		n, _ := v.AsNumber()
		return formatNumber(n)
	case types.KindString:
		s, _ := v.AsString()
		return s
	case types.KindArray:
		parts := make([]string, 0, v.Len())
		for _, e := range v.Elems() {
			if e.IsAbsent() {
				parts = append(parts, "")
				continue
			}
			parts = append(parts, coerceText(e))
		}
		return strings.Join(parts, ",")
	default:
		return "[object Object]"
	}
}

// formatNumber prints n the way JavaScript's Number#toString does: the
// shortest round-tripping digits, in exponent form ("1e+21", "1.5e-7") when
// |n| >= 1e21 or |n| < 1e-6.
func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == 0:
		return "0"
	}

	if abs := math.Abs(n); abs >= 1e21 || abs < 1e-6 {
		// Go pads the exponent to two digits ("1.5e-07").
		mantissa, exp, _ := strings.Cut(strconv.FormatFloat(n, 'e', -1, 64), "e")
		return mantissa + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0")
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// compareOrdered performs three-way comparison (-1/0/1).
// ok is false when the kinds differ or are not orderable.
func compareOrdered(v, o types.Value) (int, bool) {
	if v.Kind() != o.Kind() {
		return 0, false
	}
	switch v.Kind() {
	case types.KindNumber:
		a, _ := v.AsNumber()
		b, _ := o.AsNumber()
		if math.IsNaN(a) || math.IsNaN(b) {
			return 0, false
		}
		switch {
		case a < b:
			return -1, true
		case a > b:
			return 1, true
		default:
			return 0, true
		}
	case types.KindString:
		a, _ := v.AsString()
		b, _ := o.AsString()
		return strings.Compare(a, b), true
	case types.KindBool:
		a, _ := v.AsBool()
		b, _ := o.AsBool()
		switch {
		case a == b:
			return 0, true
		case !a:
			return -1, true
		default:
			return 1, true
		}
	default:
		return 0, false
	}
}
