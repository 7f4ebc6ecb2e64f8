package rules

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/davidespo/rules-engine/internal/types"
)

// jsonDoc decodes a JSON literal into the generic form rule documents take
// after loading.
func jsonDoc(t *testing.T, s string) any {
	t.Helper()
	var doc any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatalf("decode %s: %v", s, err)
	}
	return doc
}

func mustCompile(t *testing.T, doc string) Predicate {
	t.Helper()
	pred, err := CompileMatch(jsonDoc(t, doc))
	if err != nil {
		t.Fatalf("CompileMatch(%s) error = %v, want nil", doc, err)
	}
	return pred
}

func TestParseMatchSpec_Shapes(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want SpecKind
	}{
		{name: "string literal", doc: `"x"`, want: SpecLiteral},
		{name: "null literal", doc: `null`, want: SpecLiteral},
		{name: "number literal", doc: `4`, want: SpecLiteral},
		{name: "literal array", doc: `["a", "b"]`, want: SpecLiteralArray},
		{name: "or list", doc: `[{"a": 1}, {"b": 2}]`, want: SpecOrList},
		{name: "empty array", doc: `[]`, want: SpecOrList},
		{name: "operator set", doc: `{"$gt": 1}`, want: SpecOperatorSet},
		{name: "object spec", doc: `{"a": 1}`, want: SpecObject},
		{name: "empty object", doc: `{}`, want: SpecObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParseMatchSpec(jsonDoc(t, tt.doc))
			if err != nil {
				t.Fatalf("ParseMatchSpec() error = %v, want nil", err)
			}
			if spec.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", spec.Kind, tt.want)
			}
		})
	}
}

func TestParseMatchSpec_Unsupported(t *testing.T) {
	spec, err := ParseMatchSpec(func() {})
	if err != nil {
		t.Fatalf("ParseMatchSpec() error = %v, want nil", err)
	}
	if spec.Kind != SpecUnsupported {
		t.Errorf("Kind = %v, want unsupported", spec.Kind)
	}

	pred, err := Compile(spec, "", false)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	if pred(jsonValue(t, `{"a": 1}`)) {
		t.Error("unsupported spec matched, want false")
	}
}

func TestParseMatchSpec_DropsIllShapedOperands(t *testing.T) {
	spec, err := ParseMatchSpec(jsonDoc(t, `{
		"$in": "not-a-list",
		"$gt": null,
		"$regex": 5,
		"$exists": "yes",
		"$size": "2",
		"$elemMatch": [1],
		"$eq": 3
	}`))
	if err != nil {
		t.Fatalf("ParseMatchSpec() error = %v, want nil", err)
	}
	if len(spec.Clauses) != 1 || spec.Clauses[0].Op != OpEq {
		t.Fatalf("Clauses = %+v, want only $eq", spec.Clauses)
	}
}

func TestCompile_MixedOrListFails(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{name: "root", doc: `[{"a": 1}, "x"]`, path: "$"},
		{name: "nested", doc: `{"tags": [{"a": 1}, 2]}`, path: "tags"},
		{name: "inside or list", doc: `[{"tags": [{"a": 1}, 2]}]`, path: "[0].tags"},
		{name: "inside elemMatch", doc: `{"tags": {"$elemMatch": {"x": [{"a": 1}, 2]}}}`, path: "tags.$elemMatch.x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileMatch(jsonDoc(t, tt.doc))
			if !errors.Is(err, types.ErrMixedOrList) {
				t.Fatalf("CompileMatch() error = %v, want ErrMixedOrList", err)
			}
			if !strings.Contains(err.Error(), tt.path) {
				t.Errorf("error %q does not name path %q", err, tt.path)
			}
		})
	}
}

func TestCompile_InvalidPatternFails(t *testing.T) {
	for _, doc := range []string{
		`{"name": {"$regex": "("}}`,
		`{"name": {"$nregex": "[a-"}}`,
		`{"name": {"$like": "(%"}}`,
	} {
		_, err := CompileMatch(jsonDoc(t, doc))
		if !errors.Is(err, types.ErrInvalidPattern) {
			t.Errorf("CompileMatch(%s) error = %v, want ErrInvalidPattern", doc, err)
		}
	}
}

func TestCompile_Semantics(t *testing.T) {
	tests := []struct {
		name   string
		rule   string
		record string
		want   bool
	}{
		{name: "empty array matches anything", rule: `[]`, record: `{"a": 1}`, want: true},
		{name: "empty object matches anything", rule: `{}`, record: `{"a": 1}`, want: true},
		{name: "null literal does not match missing", rule: `{"a": null}`, record: `{}`, want: false},
		{name: "null literal matches null", rule: `{"a": null}`, record: `{"a": null}`, want: true},
		{name: "literal deep equality on objects", rule: `{"a": {"$eq": {"x": [1, 2]}}}`, record: `{"a": {"x": [1, 2]}}`, want: true},
		{name: "literal array order matters", rule: `{"tags": ["b", "a"]}`, record: `{"tags": ["a", "b"]}`, want: false},
		{name: "dotted key", rule: `{"profile.age": 20}`, record: `{"profile": {"age": 20}}`, want: true},
		{name: "numeric segment", rule: `{"tags.1": "b"}`, record: `{"tags": ["a", "b"]}`, want: true},
		{name: "extra keys next to operator ignored", rule: `{"a": {"$gt": 1, "note": "x"}}`, record: `{"a": 2}`, want: true},
		{name: "operators are ANDed", rule: `{"a": {"$gt": 1, "$lt": 3}}`, record: `{"a": 3}`, want: false},
		{name: "all operators dropped never matches", rule: `{"a": {"$in": 1}}`, record: `{"a": 1}`, want: false},
		{name: "size with object operand never matches", rule: `{"a": {"$size": {}}}`, record: `{"a": []}`, want: false},
		{name: "elemMatch with array operand never matches", rule: `{"a": {"$elemMatch": []}}`, record: `{"a": [{}]}`, want: false},
		{name: "ordering across kinds fails", rule: `{"a": {"$gt": 1}}`, record: `{"a": "2"}`, want: false},
		{name: "ordering on bools", rule: `{"a": {"$gt": false}}`, record: `{"a": true}`, want: true},
		{name: "regex over number text", rule: `{"a": {"$regex": "^4[0-9]$"}}`, record: `{"a": 42}`, want: true},
		{name: "regex over null text", rule: `{"a": {"$regex": "^null$"}}`, record: `{"a": null}`, want: true},
		{name: "regex over missing text", rule: `{"a": {"$regex": "^undefined$"}}`, record: `{}`, want: true},
		{name: "nregex empty over missing", rule: `{"a": {"$nregex": "^$"}}`, record: `{}`, want: true},
		{name: "regex over object text", rule: `{"a": {"$regex": "object Object"}}`, record: `{"a": {"k": 1}}`, want: true},
		{name: "regex over exponent text", rule: `{"a": {"$regex": "e\\+21$"}}`, record: `{"a": 1e21}`, want: true},
		{name: "regex ecmascript lookahead", rule: `{"a": {"$regex": "^(?=.*x)"}}`, record: `{"a": "box"}`, want: true},
		{name: "like keeps metacharacters", rule: `{"a": {"$like": "a.c%"}}`, record: `{"a": "abcdef"}`, want: true},
		{name: "like is unanchored", rule: `{"a": {"$like": "b%"}}`, record: `{"a": "abc"}`, want: true},
		{name: "size requires array", rule: `{"a": {"$size": 3}}`, record: `{"a": "abc"}`, want: false},
		{name: "all requires array", rule: `{"a": {"$all": ["x"]}}`, record: `{"a": "x"}`, want: false},
		{name: "all of empty list", rule: `{"a": {"$all": []}}`, record: `{"a": []}`, want: true},
		{name: "in with object element", rule: `{"a": {"$in": [{"k": 1}]}}`, record: `{"a": {"k": 1}}`, want: true},
		{name: "exists on nested missing", rule: `{"a": {"b": {"$exists": false}}}`, record: `{"a": 1}`, want: true},
		{
			name:   "or alternatives resolve relative to the list",
			rule:   `{"profile": [{"age": 20}, {"age": 80}]}`,
			record: `{"profile": {"age": 80}}`,
			want:   true,
		},
		{
			name:   "nested or lists keep their own path",
			rule:   `{"a": [{"b": [{"c": 1}, {"c": 2}]}]}`,
			record: `{"a": {"b": {"c": 2}}}`,
			want:   true,
		},
		{
			name:   "elemMatch object body resolves inside element",
			rule:   `{"orders": {"$elemMatch": {"status": "open", "total": {"$gt": 100}}}}`,
			record: `{"orders": [{"status": "open", "total": 50}, {"status": "open", "total": 150}]}`,
			want:   true,
		},
		{
			name:   "elemMatch needs one element satisfying the whole body",
			rule:   `{"orders": {"$elemMatch": {"status": "open", "total": {"$gt": 100}}}}`,
			record: `{"orders": [{"status": "open", "total": 50}, {"status": "closed", "total": 150}]}`,
			want:   false,
		},
		{
			name:   "elemMatch on non-array",
			rule:   `{"orders": {"$elemMatch": {"$eq": 1}}}`,
			record: `{"orders": 1}`,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred := mustCompile(t, tt.rule)
			if got := pred(jsonValue(t, tt.record)); got != tt.want {
				t.Errorf("predicate(%s) = %v, want %v", tt.record, got, tt.want)
			}
		})
	}
}

func TestCompile_AcceptsValueDocuments(t *testing.T) {
	doc := types.Object(map[string]types.Value{
		"age": types.Object(map[string]types.Value{"$gte": types.Number(18)}),
	})
	pred, err := CompileMatch(doc)
	if err != nil {
		t.Fatalf("CompileMatch() error = %v, want nil", err)
	}
	if !pred(jsonValue(t, `{"age": 18}`)) {
		t.Error("predicate({age: 18}) = false, want true")
	}
}

// Property-based test: $exists true and false partition every value
func TestCompile_PropertyExistsPartition(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	present := mustCompile(t, `{"f": {"$exists": true}}`)
	absent := mustCompile(t, `{"f": {"$exists": false}}`)

	properties.Property("exactly one of $exists true/false holds", prop.ForAll(
		func(kind int, n float64, s string) bool {
			var rec types.Value
			switch kind {
			case 0:
				rec = types.Object(nil)
			case 1:
				rec = types.Object(map[string]types.Value{"f": types.Null()})
			case 2:
				rec = types.Object(map[string]types.Value{"f": types.Number(n)})
			case 3:
				rec = types.Object(map[string]types.Value{"f": types.String(s)})
			default:
				rec = types.Object(map[string]types.Value{"f": types.Array(types.Number(n))})
			}
			return present(rec) != absent(rec)
		},
		gen.IntRange(0, 4),
		gen.Float64Range(-1e6, 1e6),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// Property-based test: ordering operators never match across types
func TestCompile_PropertyOrderingTypeMismatch(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	ops := []string{"$gt", "$gte", "$lt", "$lte"}

	properties.Property("number operand never matches string field", prop.ForAll(
		func(opIdx int, n float64, s string) bool {
			doc := map[string]any{"f": map[string]any{ops[opIdx]: n}}
			pred, err := CompileMatch(doc)
			if err != nil {
				return false
			}
			return !pred(types.Object(map[string]types.Value{"f": types.String(s)}))
		},
		gen.IntRange(0, len(ops)-1),
		gen.Float64Range(-1e6, 1e6),
		gen.NumString(),
	))

	properties.Property("string operand never matches number field", prop.ForAll(
		func(opIdx int, n float64, s string) bool {
			doc := map[string]any{"f": map[string]any{ops[opIdx]: s}}
			pred, err := CompileMatch(doc)
			if err != nil {
				return false
			}
			return !pred(types.Object(map[string]types.Value{"f": types.Number(n)}))
		},
		gen.IntRange(0, len(ops)-1),
		gen.Float64Range(-1e6, 1e6),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// Property-based test: an OR list is the disjunction of its alternatives
func TestCompile_PropertyOrSemantics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("[a, b] == a || b", prop.ForAll(
		func(x, lo, hi float64) bool {
			a := map[string]any{"x": map[string]any{"$gt": lo}}
			b := map[string]any{"x": map[string]any{"$lt": hi}}

			or, err := CompileMatch([]any{a, b})
			if err != nil {
				return false
			}
			pa, _ := CompileMatch(a)
			pb, _ := CompileMatch(b)

			rec := types.Object(map[string]types.Value{"x": types.Number(x)})
			return or(rec) == (pa(rec) || pb(rec))
		},
		gen.Float64Range(-100, 100),
		gen.Float64Range(-100, 100),
		gen.Float64Range(-100, 100),
	))

	properties.TestingRun(t)
}
