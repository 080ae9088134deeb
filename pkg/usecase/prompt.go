package usecase

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/domain/model"
)

var (
	//go:embed prompt/system.md
	systemPromptTmpl string

	//go:embed prompt/wake.md
	wakePromptTmpl string

	//go:embed prompt/inbox.md
	inboxPromptTmpl string

	//go:embed prompt/reflection.md
	reflectionPrompt string

	//go:embed prompt/planning.md
	planningPrompt string
)

var (
	systemPrompt = newTemplate("system", systemPromptTmpl)
	wakePrompt   = newTemplate("wake", wakePromptTmpl)
	inboxPrompt  = newTemplate("inbox", inboxPromptTmpl)
)

func newTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(sprig.TxtFuncMap()).Parse(text))
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render prompt", goerr.V("template", tmpl.Name()))
	}
	return buf.String(), nil
}

type systemPromptData struct {
	*model.Identity
	Locations []string
}

// SystemPrompt renders the identity-derived system prompt.
func SystemPrompt(id *model.Identity) (string, error) {
	return render(systemPrompt, systemPromptData{
		Identity:  id,
		Locations: model.Locations(),
	})
}
