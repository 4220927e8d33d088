package alert

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/policywatch/policywatch/sdk"
)

// DefaultDiffTruncate bounds the diff excerpt included in alert
// bodies.
const DefaultDiffTruncate = 4000

var bodyTemplate = template.Must(template.New("alert").Parse(
	`A policy change was detected on a source you are subscribed to.

Source:   {{.SourceName}}
Country:  {{.Country}}
Visa:     {{.VisaType}}
URL:      {{.URL}}
Detected: {{.DetectedAt}}

What changed:

{{.Diff}}{{if .Truncated}}

[diff truncated]{{end}}

You are receiving this message because of your route subscription.
`))

type bodyData struct {
	SourceName string
	Country    string
	VisaType   string
	URL        string
	DetectedAt string
	Diff       string
	Truncated  bool
}

// renderEmail builds the subject and body for a change alert.
func renderEmail(source *sdk.Source, change *sdk.PolicyChange, diffTruncate int) (subject, body string, err error) {
	subject = fmt.Sprintf("Policy update: %s (%s)",
		source.Name, change.DetectedAt.Format("2006-01-02"))

	diff := change.Diff
	truncated := false
	if diffTruncate > 0 && len(diff) > diffTruncate {
		diff = diff[:diffTruncate]
		truncated = true
	}

	var sb strings.Builder
	err = bodyTemplate.Execute(&sb, bodyData{
		SourceName: source.Name,
		Country:    source.Country,
		VisaType:   source.VisaType,
		URL:        source.URL,
		DetectedAt: change.DetectedAt.Format("2006-01-02 15:04 MST"),
		Diff:       diff,
		Truncated:  truncated,
	})
	if err != nil {
		return "", "", fmt.Errorf("rendering alert body: %w", err)
	}
	return subject, sb.String(), nil
}
