package internal_planner

import (
	"fmt"
	"strings"

	"github.com/grafana/regexp"
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
)

// NewLineFilterProcessor applies a line filter stage to lines already
// rewritten in process, where the SQL filter would see the original text.
func NewLineFilterProcessor(op string, val string) (shared.StreamProcessor, error) {
	var pred func(line string) bool
	switch op {
	case "|=":
		pred = func(line string) bool { return strings.Contains(line, val) }
	case "!=":
		pred = func(line string) bool { return !strings.Contains(line, val) }
	case "|~", "!~":
		re, err := regexp.Compile(val)
		if err != nil {
			return nil, err
		}
		neg := op == "!~"
		pred = func(line string) bool { return re.MatchString(line) != neg }
	default:
		return nil, fmt.Errorf("unknown line filter %s", op)
	}

	return func(ctx *shared.PlannerContext, in chan []shared.LogEntry) chan []shared.LogEntry {
		out := make(chan []shared.LogEntry)
		go func() {
			defer close(out)
			defer shared.TamePanic(out)
			for entries := range in {
				filtered := make([]shared.LogEntry, 0, len(entries))
				for _, e := range entries {
					if e.EOF || e.Err != nil || pred(e.Message) {
						filtered = append(filtered, e)
					}
				}
				out <- filtered
			}
		}()
		return out
	}, nil
}
