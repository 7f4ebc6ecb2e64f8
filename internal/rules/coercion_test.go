package rules

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/davidespo/rules-engine/internal/types"
)

func TestCoerceText(t *testing.T) {
	tests := []struct {
		name  string
		value types.Value
		want  string
	}{
		{name: "missing", value: types.Missing(), want: "undefined"},
		{name: "null", value: types.Null(), want: "null"},
		{name: "true", value: types.Bool(true), want: "true"},
		{name: "false", value: types.Bool(false), want: "false"},
		{name: "integer", value: types.Number(42), want: "42"},
		{name: "fraction", value: types.Number(1.5), want: "1.5"},
		{name: "negative", value: types.Number(-3), want: "-3"},
		{name: "nan", value: types.Number(math.NaN()), want: "NaN"},
		{name: "infinity", value: types.Number(math.Inf(1)), want: "Infinity"},
		{name: "negative zero", value: types.Number(math.Copysign(0, -1)), want: "0"},
		{name: "large integer", value: types.Number(1e20), want: "100000000000000000000"},
		{name: "exponent large", value: types.Number(1e21), want: "1e+21"},
		{name: "exponent large fraction", value: types.Number(-1.23e22), want: "-1.23e+22"},
		{name: "small decimal", value: types.Number(1e-6), want: "0.000001"},
		{name: "exponent small", value: types.Number(1.5e-7), want: "1.5e-7"},
		{name: "string", value: types.String("abc"), want: "abc"},
		{
			name:  "array",
			value: types.Array(types.String("a"), types.Number(1), types.Null()),
			want:  "a,1,",
		},
		{
			name:  "object",
			value: types.Object(map[string]types.Value{"k": types.String("v")}),
			want:  "[object Object]",
		},
		{
			name:  "array with object and missing",
			value: types.Array(types.Object(map[string]types.Value{"k": types.Number(1)}), types.Missing(), types.Bool(true)),
			want:  "[object Object],,true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coerceText(tt.value); got != tt.want {
				t.Errorf("coerceText(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestCompareOrdered(t *testing.T) {
	tests := []struct {
		name   string
		a, b   types.Value
		want   int
		wantOK bool
	}{
		{name: "number less", a: types.Number(1), b: types.Number(2), want: -1, wantOK: true},
		{name: "number equal", a: types.Number(2), b: types.Number(2), want: 0, wantOK: true},
		{name: "number greater", a: types.Number(3), b: types.Number(2), want: 1, wantOK: true},
		{name: "string order", a: types.String("apple"), b: types.String("banana"), want: -1, wantOK: true},
		{name: "false before true", a: types.Bool(false), b: types.Bool(true), want: -1, wantOK: true},
		{name: "bool equal", a: types.Bool(true), b: types.Bool(true), want: 0, wantOK: true},
		{name: "number vs string", a: types.Number(1), b: types.String("1")},
		{name: "null vs number", a: types.Null(), b: types.Number(0)},
		{name: "missing vs number", a: types.Missing(), b: types.Number(0)},
		{name: "nan", a: types.Number(math.NaN()), b: types.Number(0)},
		{name: "arrays", a: types.Array(), b: types.Array()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := compareOrdered(tt.a, tt.b)
			if ok != tt.wantOK {
				t.Fatalf("compareOrdered() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("compareOrdered() = %d, want %d", got, tt.want)
			}
		})
	}
}

// Property-based test: ordering is antisymmetric for numbers
func TestCompareOrdered_PropertyAntisymmetric(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("compare(a,b) == -compare(b,a)", prop.ForAll(
		func(a, b float64) bool {
			ab, ok1 := compareOrdered(types.Number(a), types.Number(b))
			ba, ok2 := compareOrdered(types.Number(b), types.Number(a))
			return ok1 && ok2 && ab == -ba
		},
		gen.Float64Range(-1e9, 1e9),
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("numbers never order against strings", prop.ForAll(
		func(n float64, s string) bool {
			_, ok := compareOrdered(types.Number(n), types.String(s))
			return !ok
		},
		gen.Float64(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
