package render

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/davidespo/rules-engine/internal/rules"
	"github.com/davidespo/rules-engine/internal/types"
)

const lengthTemplate = "name={{ .value.name.length }}"

func genRule(matchRule any) types.Rule {
	return types.Rule{
		ID:                  "rule0001",
		TitleTemplate:       "Has Test User",
		DescriptionTemplate: "Found Test User {{ json .value }}",
		SolutionTemplate:    "Ensure Test User is removed",
		Severity:            "LOW",
		Tags:                []string{"testing"},
		Match:               matchRule,
	}
}

func errorRule(title, description, solution string) types.Rule {
	return types.Rule{
		ID:                  "rule0001",
		TitleTemplate:       title,
		DescriptionTemplate: description,
		SolutionTemplate:    solution,
		Severity:            "LOW",
		Tags:                []string{"testing"},
		Match:               map[string]any{},
	}
}

var (
	user1 = types.MustRecord(map[string]any{"id": "user0001", "name": "Test User", "age": 20, "active": true})
	user2 = types.MustRecord(map[string]any{"id": "user0002", "name": nil, "age": 20, "active": true})
)

func TestRender_InsightForExistingRule(t *testing.T) {
	e := rules.NewEngine(NewTextRenderer(), genRule(map[string]any{"active": true}))

	got, ok, err := e.EvaluateOne("rule0001", user1)
	if err != nil || !ok {
		t.Fatalf("EvaluateOne() = %v, %v; want ok", ok, err)
	}

	want := types.Insight{
		RecordID:    "user0001",
		RuleID:      "rule0001",
		Title:       "Has Test User",
		Description: `Found Test User {"active":true,"age":20,"id":"user0001","name":"Test User"}`,
		Solution:    "Ensure Test User is removed",
		Severity:    "LOW",
		Tags:        []string{"testing"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("EvaluateOne() mismatch (-want +got):\n%s", diff)
	}
}

func TestRender_RuleNotFound(t *testing.T) {
	e := rules.NewEngine(NewTextRenderer())
	_, ok, err := e.EvaluateOne("rule0001", user1)
	if err != nil || ok {
		t.Errorf("EvaluateOne() = %v, %v; want not found", ok, err)
	}
}

// checkDiagnostic verifies a field holds the render failure diagnostic for
// lengthTemplate. The cause text comes from text/template.
func checkDiagnostic(t *testing.T, field, got string) {
	t.Helper()
	prefix := `Error generating string from compiled cause="template: insight:`
	suffix := `nil pointer evaluating interface {}.length" template="` + lengthTemplate + `"`
	if !strings.HasPrefix(got, prefix) || !strings.HasSuffix(got, suffix) {
		t.Errorf("%s = %q, want diagnostic for %q", field, got, lengthTemplate)
	}
}

func TestRender_SwallowsTemplateErrors(t *testing.T) {
	const ok = "name={{ .value.name }}"

	tests := []struct {
		name        string
		rule        types.Rule
		titleErr    bool
		descErr     bool
		solutionErr bool
	}{
		{name: "title", rule: errorRule(lengthTemplate, ok, ok), titleErr: true},
		{name: "description", rule: errorRule(ok, lengthTemplate, ok), descErr: true},
		{name: "solution", rule: errorRule(ok, ok, lengthTemplate), solutionErr: true},
		{
			name:        "multiple",
			rule:        errorRule(lengthTemplate, lengthTemplate, lengthTemplate),
			titleErr:    true,
			descErr:     true,
			solutionErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := rules.NewEngine(NewTextRenderer(), tt.rule)
			got, found, err := e.EvaluateOne("rule0001", user2)
			if err != nil || !found {
				t.Fatalf("EvaluateOne() = %v, %v; want found", found, err)
			}

			fields := []struct {
				name    string
				value   string
				failing bool
			}{
				{"Title", got.Title, tt.titleErr},
				{"Description", got.Description, tt.descErr},
				{"Solution", got.Solution, tt.solutionErr},
			}
			for _, f := range fields {
				if f.failing {
					checkDiagnostic(t, f.name, f.value)
				} else if f.value != "name=" {
					t.Errorf("%s = %q, want %q", f.name, f.value, "name=")
				}
			}

			if got.RecordID != "user0002" || got.Severity != "LOW" {
				t.Errorf("insight = %+v, want user0002/LOW", got)
			}
			if diff := cmp.Diff([]string{"testing"}, got.Tags); diff != "" {
				t.Errorf("Tags mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRender_Errors(t *testing.T) {
	r := NewTextRenderer()
	ctx := rules.TemplateContext{Rule: genRule(nil), Value: user2.Fields}

	tests := []struct {
		name     string
		template string
		contains string
	}{
		{name: "parse error", template: "{{ .value.name", contains: "unclosed action"},
		{name: "field of null", template: "{{ .value.name.first }}", contains: "nil pointer evaluating interface {}.first"},
		{name: "unknown function", template: "{{ shout .value.name }}", contains: `function "shout" not defined`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Render(tt.template, ctx)
			var re *rules.RenderError
			if !errors.As(err, &re) {
				t.Fatalf("Render() error = %v, want *rules.RenderError", err)
			}
			if !strings.Contains(re.Message, tt.contains) {
				t.Errorf("Message = %q, want it to contain %q", re.Message, tt.contains)
			}
		})
	}
}

func TestRender_NullAndAbsentFields(t *testing.T) {
	r := NewTextRenderer()
	rec := types.MustRecord(map[string]any{
		"id":   "u1",
		"note": "<no value> here",
		"gone": nil,
		"tags": []any{"a", nil},
	})
	ctx := rules.TemplateContext{Rule: genRule(nil), Value: rec.Fields}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{name: "literal text kept", template: "note={{ .value.note }}", want: "note=<no value> here"},
		{name: "null", template: "gone={{ .value.gone }}", want: "gone="},
		{name: "absent", template: "nick={{ .value.nickname }}", want: "nick="},
		{name: "absent nested", template: "city={{ .value.profile.city }}", want: "city="},
		{name: "null in range", template: "{{ range .value.tags }}[{{ . }}]{{ end }}", want: "[a][]"},
		{name: "absent in if", template: "{{ if .value.nickname }}yes{{ else }}no{{ end }}", want: "no"},
		{name: "default on absent", template: `{{ default "anon" .value.nickname }}`, want: "anon"},
		{name: "variable", template: `{{ $n := .value.note }}[{{ $n }}]`, want: "[<no value> here]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Render(tt.template, ctx)
			if err != nil {
				t.Fatalf("Render() error = %v, want nil", err)
			}
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_Helpers(t *testing.T) {
	r := NewTextRenderer()
	rec := types.MustRecord(map[string]any{
		"id":    "u1",
		"name":  "Ada",
		"tags":  []any{"x", "y"},
		"empty": "",
	})
	ctx := rules.TemplateContext{Rule: genRule(nil), Value: rec.Fields}

	tests := []struct {
		template string
		want     string
	}{
		{template: "{{ upper .value.name }}", want: "ADA"},
		{template: "{{ lower .value.name }}", want: "ada"},
		{template: `{{ join ", " .value.tags }}`, want: "x, y"},
		{template: `{{ default "n/a" .value.empty }}`, want: "n/a"},
		{template: "{{ .rule.severity }} {{ .rule.id }}", want: "LOW rule0001"},
		{template: `{{ index .rule.tags 0 }}`, want: "testing"},
		{template: `{{ range .value.tags }}[{{ . }}]{{ end }}`, want: "[x][y]"},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			got, err := r.Render(tt.template, ctx)
			if err != nil {
				t.Fatalf("Render() error = %v, want nil", err)
			}
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_Concurrent(t *testing.T) {
	r := NewTextRenderer()
	ctx := rules.TemplateContext{Rule: genRule(nil), Value: user1.Fields}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got, err := r.Render("{{ .value.name }}", ctx); err != nil || got != "Test User" {
				t.Errorf("Render() = %q, %v", got, err)
			}
		}()
	}
	wg.Wait()
}
