package pack

import (
	"bytes"
	"fmt"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"

	"anth/config"
)

// nameValues holds the variables available to the output name template.
type nameValues struct {
	Context   string
	Track     string
	Title     string
	Language  string
	Date      string
	Documents int
}

// expandOutputName expands the configured output name template. An empty
// template falls back to "<track>.epub".
func expandOutputName(field string, values *nameValues) (string, error) {
	if field == "" {
		return values.Track + ".epub", nil
	}

	tmpl, err := template.New(string(config.OutputNameTemplateFieldName)).Funcs(sprig.FuncMap()).Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", config.OutputNameTemplateFieldName, err)
	}

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", err
	}
	return buf.String(), nil
}
