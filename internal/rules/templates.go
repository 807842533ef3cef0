package rules

import (
	"bytes"
	"text/template"

	"github.com/watchloop/autopilot/embedded"
	"github.com/watchloop/autopilot/internal/domain"
)

// defaultNudgeTemplate is the built-in fallback rendered when a project
// declares no DefaultNudge override (domain.Project.DefaultNudge == "").
// compactNudgeTemplate accompanies the send-compact action: it doesn't get
// rendered into the pane (the literal "/compact" is what's sent) but is
// available for audit/log purposes describing why compaction fired.
// Both are read from the binary's embedded templates/ directory rather than
// hardcoded, so a `config init` install and a from-source build render the
// identical default text.
var defaultNudgeTemplate = mustReadTemplate("default.tmpl")
var compactNudgeTemplate = mustReadTemplate("compact.tmpl")

func mustReadTemplate(name string) string {
	b, err := embedded.Templates.ReadFile("templates/" + name)
	if err != nil {
		panic("rules: embedded template " + name + " missing: " + err.Error())
	}
	return string(b)
}

// RenderCompactAudit expands the built-in compact-audit template, used to
// log why a send-compact action fired; it is never injected into the pane.
func RenderCompactAudit(ctx domain.NudgeContext) (string, error) {
	return RenderNudge(compactNudgeTemplate, ctx)
}

// RenderNudge expands a text/template against NudgeContext, grounded on the
// teacher's internal/formatter/markdown.go template.New(...).Parse(...)
// usage for its session-report templates.
func RenderNudge(tmplText string, ctx domain.NudgeContext) (string, error) {
	if tmplText == "" {
		tmplText = defaultNudgeTemplate
	}
	t, err := template.New("nudge").Parse(tmplText)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}
