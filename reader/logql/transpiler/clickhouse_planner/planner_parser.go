package clickhouse_planner

import (
	"fmt"
	"regexp/syntax"
	"strings"

	"github.com/metrico/loghouse/reader/logql/logql_parser"
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// ParserPlanner lowers `json` with explicit paths and `regexp` stages to SQL,
// merging the extracted pairs over the joined labels map.
type ParserPlanner struct {
	Op              string
	ParameterNames  []string
	ParameterValues []string
	Main            shared.SQLRequestPlanner
}

func NewParserPlanner(parser *logql_parser.Parser,
	main shared.SQLRequestPlanner) (*ParserPlanner, error) {
	p := &ParserPlanner{Op: parser.Fn, Main: main}
	for _, param := range parser.ParserParams {
		val, err := param.Val.Unquote()
		if err != nil {
			return nil, err
		}
		name := ""
		if param.Label != nil {
			name = param.Label.Name
		} else if parser.Fn == "json" {
			name, err = shared.JsonPathToLabelName(val)
			if err != nil {
				return nil, err
			}
		}
		p.ParameterNames = append(p.ParameterNames, name)
		p.ParameterValues = append(p.ParameterValues, val)
	}
	return p, nil
}

func (p *ParserPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := p.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	var extracted sql.SQLObject
	switch p.Op {
	case "json":
		extracted, err = p.jsonPairs()
	case "regexp":
		extracted, err = p.regexpPairs()
	default:
		return nil, &shared.NotSupportedError{
			Msg: fmt.Sprintf("parser %s is not supported", p.Op)}
	}
	if err != nil {
		return nil, err
	}

	if !hasColumn(main.GetSelect(), "labels") {
		return nil, fmt.Errorf("labels column not initialized before %s parser", p.Op)
	}

	cols, err := patchCol(main.GetSelect(), "labels", func(c sql.SQLObject) (sql.SQLObject, error) {
		return &sqlMapUpdate{m1: c, m2: extracted}, nil
	})
	if err != nil {
		return nil, err
	}
	return main.Select(cols...), nil
}

func (p *ParserPlanner) jsonPairs() (sql.SQLObject, error) {
	keys := make([]string, len(p.ParameterNames))
	vals := make([]sql.SQLObject, len(p.ParameterValues))
	for i, path := range p.ParameterValues {
		args, err := shared.JsonPathParamToArray(path)
		if err != nil {
			return nil, err
		}
		keys[i] = fmt.Sprintf("'%s'", p.ParameterNames[i])
		vals[i] = jsonExtractor(args)
	}

	return sql.NewCustomCol(func(ctx *sql.Ctx, options ...int) (string, error) {
		strVals := make([]string, len(vals))
		for i, v := range vals {
			var err error
			strVals[i], err = v.String(ctx, options...)
			if err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("mapFromArrays([%s], [%s])",
			strings.Join(keys, ", "), strings.Join(strVals, ", ")), nil
	}), nil
}

// jsonExtractor renders a string extraction that falls back to the raw JSON
// representation for non-string leaves.
func jsonExtractor(path []sql.SQLObject) sql.SQLObject {
	return sql.NewCustomCol(func(ctx *sql.Ctx, options ...int) (string, error) {
		args := make([]string, len(path)+1)
		args[0] = "samples.string"
		for i, p := range path {
			str, err := p.String(ctx, options...)
			if err != nil {
				return "", err
			}
			args[i+1] = str
		}
		strArgs := strings.Join(args, ", ")
		return fmt.Sprintf(
			"if(JSONType(%[1]s) == 'String', JSONExtractString(%[1]s), JSONExtractRaw(%[1]s))",
			strArgs), nil
	})
}

func (p *ParserPlanner) regexpPairs() (sql.SQLObject, error) {
	if len(p.ParameterValues) != 1 {
		return nil, fmt.Errorf("regexp parser requires exactly one pattern")
	}
	pattern := p.ParameterValues[0]

	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, err
	}
	names, indexes := namedGroups(re)
	if len(names) == 0 {
		return nil, &shared.NotSupportedError{
			Msg: "regexp parser requires at least one named group"}
	}

	keys := make([]string, len(names))
	patternObj := sql.NewStringVal(pattern)
	for i, name := range names {
		keys[i] = fmt.Sprintf("'%s'", name)
	}

	return sql.NewCustomCol(func(ctx *sql.Ctx, options ...int) (string, error) {
		strPattern, err := patternObj.String(ctx, options...)
		if err != nil {
			return "", err
		}
		extracts := make([]string, len(names))
		for i := range names {
			extracts[i] = fmt.Sprintf("extractGroups(samples.string, %s)[%d]",
				strPattern, indexes[i])
		}
		return fmt.Sprintf("mapFromArrays([%s], [%s])",
			strings.Join(keys, ", "), strings.Join(extracts, ", ")), nil
	}), nil
}

// namedGroups walks the parse tree collecting named captures in group order.
func namedGroups(re *syntax.Regexp) ([]string, []int) {
	var names []string
	var indexes []int
	var walk func(r *syntax.Regexp)
	walk = func(r *syntax.Regexp) {
		if r.Op == syntax.OpCapture && r.Name != "" {
			names = append(names, r.Name)
			indexes = append(indexes, r.Cap)
		}
		for _, s := range r.Sub {
			walk(s)
		}
	}
	walk(re)
	return names, indexes
}
