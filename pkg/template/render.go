package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

var messageFuncs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"upper": strings.ToUpper,
	"default": func(fallback, value any) any {
		if !Truthy(value) {
			return fallback
		}

		return value
	},
}

// Render executes a notification template against data. Plain text without
// actions is returned as is.
func Render(templateStr string, data any) (string, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	tmpl, err := template.New("message").Funcs(messageFuncs).Option("missingkey=zero").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.TrimSpace(buf.String()), nil
}
