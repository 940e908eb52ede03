package helpers

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
)

// RenderFixture renders the message template at path with data. Expected
// email texts live in testdata files so application wording stays out of the harness.
//
//	want, err := helpers.RenderFixture("testdata/invite.txt.tmpl", map[string]string{"Team": team.Name})
func RenderFixture(path string, data any) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read fixture %s: %w", path, err)
	}

	tmpl, err := template.New(path).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render fixture %s: %w", path, err)
	}
	return buf.String(), nil
}
