package agents

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"inc":  func(i int) int { return i + 1 },
	"join": strings.Join,
}).ParseFS(promptFS, "prompts/*.tmpl"))

func render(name string, data any) (string, error) {
	var sb strings.Builder
	if err := prompts.ExecuteTemplate(&sb, name+".tmpl", data); err != nil {
		return "", fmt.Errorf("agents: render %s prompt: %w", name, err)
	}
	return sb.String(), nil
}
