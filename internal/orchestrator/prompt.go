package orchestrator

import (
	"strings"
	"text/template"

	"github.com/auspexhq/insight-api/internal/domain"
)

// defaultPromptTemplate is the embedded prompt sent to every engine. Both
// engines receive the identical rendered text so their outputs are
// comparable during the consensus merge.
const defaultPromptTemplate = `You are a senior analyst. Produce an insight report on the subject below.

Subject: {{.Subject}}
{{- if .Timeframe}}
Timeframe: {{.Timeframe}}
{{- end}}
{{- if .Context}}
Additional context: {{.Context}}
{{- end}}

Respond with a single JSON object and nothing else, using exactly this shape:
{"title": string, "summary": string, "insights": [string], "recommendations": [string]}

Provide 3 to 5 insights and 3 to 5 recommendations. Each list entry must be one self-contained sentence.`

var promptTmpl = template.Must(template.New("insight_prompt").Parse(defaultPromptTemplate))

// renderPrompt fills the prompt template from the job parameters.
func renderPrompt(params domain.InsightParams) (string, error) {
	if strings.TrimSpace(params.Subject) == "" {
		return "", domain.ErrEmptyInsightSubject
	}

	var sb strings.Builder
	if err := promptTmpl.Execute(&sb, params); err != nil {
		return "", err
	}
	return sb.String(), nil
}
