// Package render implements rules.TemplateRenderer with text/template.
//
// Templates see two top-level keys:
//
//	.rule   the rule (id, titleTemplate, ..., severity, tags, matchRule)
//	.value  the record document
//
// Every printed action ends in the text helper, so explicit nulls and absent
// fields print as the empty string while record text is left untouched.
// Dereferencing through a null ({{ .value.name.length }} with a null name)
// is still a render failure. Helpers: json, join, upper, lower, default,
// text.
package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/davidespo/rules-engine/internal/rules"
	"github.com/davidespo/rules-engine/internal/types"
)

// textFunc is the helper appended to every printed pipeline.
const textFunc = "text"

// TextRenderer renders insight templates with text/template.
// Safe for concurrent use.
type TextRenderer struct {
	funcs template.FuncMap
}

// NewTextRenderer creates a renderer with the default helper functions.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{funcs: template.FuncMap{
		"json":    toJSON,
		"join":    join,
		"upper":   strings.ToUpper,
		"lower":   strings.ToLower,
		"default": defaultValue,
		textFunc:  text,
	}}
}

// Render parses and executes tpl against ctx.
// Parse and execution failures are returned as *rules.RenderError.
func (r *TextRenderer) Render(tpl string, ctx rules.TemplateContext) (string, error) {
	t, err := template.New("insight").
		Funcs(r.funcs).
		Parse(tpl)
	if err != nil {
		return "", &rules.RenderError{Message: err.Error()}
	}
	for _, tt := range t.Templates() {
		if tt.Tree != nil {
			pipeThroughText(tt.Tree, tt.Tree.Root)
		}
	}

	var buf strings.Builder
	if err := t.Execute(&buf, Data(ctx)); err != nil {
		return "", &rules.RenderError{Message: err.Error()}
	}
	return buf.String(), nil
}

// pipeThroughText appends "| text" to every action that prints its result.
func pipeThroughText(tree *parse.Tree, node parse.Node) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			pipeThroughText(tree, child)
		}
	case *parse.ActionNode:
		if len(n.Pipe.Decl) > 0 {
			return
		}
		ident := parse.NewIdentifier(textFunc).SetTree(tree).SetPos(n.Pipe.Pos)
		n.Pipe.Cmds = append(n.Pipe.Cmds, &parse.CommandNode{
			NodeType: parse.NodeCommand,
			Pos:      n.Pipe.Pos,
			Args:     []parse.Node{ident},
		})
	case *parse.IfNode:
		pipeThroughText(tree, n.List)
		pipeThroughText(tree, n.ElseList)
	case *parse.RangeNode:
		pipeThroughText(tree, n.List)
		pipeThroughText(tree, n.ElseList)
	case *parse.WithNode:
		pipeThroughText(tree, n.List)
		pipeThroughText(tree, n.ElseList)
	}
}

// Data builds the template data for ctx.
func Data(ctx rules.TemplateContext) map[string]any {
	return map[string]any{
		"rule":  ruleData(ctx.Rule),
		"value": ctx.Value.ToAny(),
	}
}

func ruleData(r types.Rule) map[string]any {
	tags := make([]any, len(r.Tags))
	for i, t := range r.Tags {
		tags[i] = t
	}
	return map[string]any{
		"id":                  r.ID,
		"titleTemplate":       r.TitleTemplate,
		"descriptionTemplate": r.DescriptionTemplate,
		"solutionTemplate":    r.SolutionTemplate,
		"severity":            r.Severity,
		"tags":                tags,
		"matchRule":           r.Match,
	}
}

func toJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func join(sep string, v any) (string, error) {
	items, ok := v.([]any)
	if !ok {
		return "", fmt.Errorf("join: expected a list, got %T", v)
	}
	parts := make([]string, len(items))
	for i, it := range items {
		if it == nil {
			continue
		}
		parts[i] = fmt.Sprint(it)
	}
	return strings.Join(parts, sep), nil
}

// text prints v as text/template would, with nil (null or absent) as "".
func text(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func defaultValue(def, v any) any {
	if v == nil {
		return def
	}
	if s, ok := v.(string); ok && s == "" {
		return def
	}
	return v
}
