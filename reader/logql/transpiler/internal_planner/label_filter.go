package internal_planner

import (
	"fmt"
	"strconv"

	"github.com/grafana/regexp"
	"github.com/metrico/loghouse/reader/logql/logql_parser"
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
)

// NewLabelFilterProcessor drops entries whose labels do not satisfy the
// filter expression. Used after an in-process parser stage, when the SQL
// request no longer sees the extracted labels.
func NewLabelFilterProcessor(filter *logql_parser.LabelFilter) (shared.StreamProcessor, error) {
	pred, err := labelFilterPred(filter)
	if err != nil {
		return nil, err
	}

	return func(ctx *shared.PlannerContext, in chan []shared.LogEntry) chan []shared.LogEntry {
		out := make(chan []shared.LogEntry)
		go func() {
			defer close(out)
			defer shared.TamePanic(out)
			for entries := range in {
				filtered := make([]shared.LogEntry, 0, len(entries))
				for _, e := range entries {
					if e.EOF || e.Err != nil || pred(e.Labels) {
						filtered = append(filtered, e)
					}
				}
				out <- filtered
			}
		}()
		return out
	}, nil
}

func labelFilterPred(filter *logql_parser.LabelFilter) (func(map[string]string) bool, error) {
	head, err := headPred(&filter.Head)
	if err != nil {
		return nil, err
	}
	if filter.Op == "" {
		return head, nil
	}

	tail, err := labelFilterPred(filter.Tail)
	if err != nil {
		return nil, err
	}

	switch filter.Op {
	case "and":
		return func(l map[string]string) bool { return head(l) && tail(l) }, nil
	case "or":
		return func(l map[string]string) bool { return head(l) || tail(l) }, nil
	}
	return nil, fmt.Errorf("unknown label filter op %s", filter.Op)
}

func headPred(head *logql_parser.Head) (func(map[string]string) bool, error) {
	if head.ComplexHead != nil {
		return labelFilterPred(head.ComplexHead)
	}
	return simplePred(head.SimpleHead)
}

func simplePred(filter *logql_parser.SimpleLabelFilter) (func(map[string]string) bool, error) {
	name := filter.Label.Name

	if filter.StrVal != nil {
		val, err := filter.StrVal.Unquote()
		if err != nil {
			return nil, err
		}
		switch filter.Fn {
		case "=":
			return func(l map[string]string) bool { return l[name] == val }, nil
		case "!=":
			return func(l map[string]string) bool { return l[name] != val }, nil
		case "=~", "!~":
			re, err := regexp.Compile(val)
			if err != nil {
				return nil, err
			}
			neg := filter.Fn == "!~"
			return func(l map[string]string) bool {
				return re.MatchString(l[name]) != neg
			}, nil
		}
		return nil, fmt.Errorf("unsupported string label filter %s", filter.Fn)
	}

	num, err := strconv.ParseFloat(filter.NumVal, 64)
	if err != nil {
		return nil, err
	}

	var cmp func(a float64, b float64) bool
	switch filter.Fn {
	case "==":
		cmp = func(a, b float64) bool { return a == b }
	case "!=":
		cmp = func(a, b float64) bool { return a != b }
	case ">":
		cmp = func(a, b float64) bool { return a > b }
	case ">=":
		cmp = func(a, b float64) bool { return a >= b }
	case "<":
		cmp = func(a, b float64) bool { return a < b }
	case "<=":
		cmp = func(a, b float64) bool { return a <= b }
	default:
		return nil, fmt.Errorf("unsupported number label filter %s", filter.Fn)
	}

	return func(l map[string]string) bool {
		v, ok := l[name]
		if !ok {
			return false
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return false
		}
		return cmp(f, num)
	}, nil
}
