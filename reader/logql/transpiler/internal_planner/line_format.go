package internal_planner

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
)

// NewLineFormatProcessor rewrites each line through a text template with the
// sprig function set, for templates the SQL lowering cannot express.
func NewLineFormatProcessor(tpl string) (shared.StreamProcessor, error) {
	tmpl, err := template.New("line_format").Funcs(sprig.TxtFuncMap()).Parse(tpl)
	if err != nil {
		return nil, err
	}

	return func(ctx *shared.PlannerContext, in chan []shared.LogEntry) chan []shared.LogEntry {
		out := make(chan []shared.LogEntry)
		go func() {
			defer close(out)
			defer shared.TamePanic(out)
			buf := strings.Builder{}
			for entries := range in {
				for i, e := range entries {
					if e.EOF || e.Err != nil {
						continue
					}
					data := make(map[string]string, len(e.Labels)+1)
					for k, v := range e.Labels {
						data[k] = v
					}
					data["_entry"] = e.Message
					buf.Reset()
					if err := tmpl.Execute(&buf, data); err != nil {
						continue
					}
					entries[i].Message = buf.String()
				}
				out <- entries
			}
		}()
		return out
	}, nil
}
