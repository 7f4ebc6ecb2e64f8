// internal/rules/insight.go
package rules

import (
	"errors"
	"fmt"

	"github.com/davidespo/rules-engine/internal/types"
)

/*
 * Insight rendering.
 *
 * A CompiledRule carries three render functions (title, description,
 * solution). Each one hands its template and a TemplateContext to the
 * injected TemplateRenderer. A failing field does not fail the insight: the
 * field is replaced by a diagnostic string naming the cause and the template,
 * and the other fields render normally.
 */

// Insight field names, as reported to RenderObserver.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldSolution    = "solution"
)

// renderFailureFormat is the diagnostic written in place of a failed field.
const renderFailureFormat = `Error generating string from compiled cause="%s" template="%s"`

// TemplateContext is the data a template is rendered against.
type TemplateContext struct {
	Rule  types.Rule
	Value types.Value
}

// TemplateRenderer renders a template against a context.
type TemplateRenderer interface {
	Render(template string, ctx TemplateContext) (string, error)
}

// RenderError is the failure type renderers are expected to return.
type RenderError struct {
	Message string
}

func (e *RenderError) Error() string { return e.Message }

// RenderFailure describes one field that could not be rendered.
type RenderFailure struct {
	RuleID   string
	Field    string
	Template string
	Err      error
}

// RenderObserver is notified of every render failure. Used for metrics and
// logging by hosts; the diagnostic string is produced either way.
type RenderObserver func(RenderFailure)

// RenderFunc renders one insight field for a record value.
type RenderFunc func(types.Value) string

// renderField wraps renderer for one template of rule.
func renderField(renderer TemplateRenderer, observer RenderObserver, rule types.Rule, field, template string) RenderFunc {
	return func(v types.Value) string {
		out, err := renderer.Render(template, TemplateContext{Rule: rule, Value: v})
		if err == nil {
			return out
		}
		if observer != nil {
			observer(RenderFailure{RuleID: rule.ID, Field: field, Template: template, Err: err})
		}
		return renderFailure(template, err)
	}
}

// renderFailure formats the diagnostic for a failed render.
func renderFailure(template string, err error) string {
	msg := err.Error()
	var re *RenderError
	if errors.As(err, &re) {
		msg = re.Message
	}
	return fmt.Sprintf(renderFailureFormat, msg, template)
}
