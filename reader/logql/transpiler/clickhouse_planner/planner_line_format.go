package clickhouse_planner

import (
	"fmt"
	"strings"
	"text/template/parse"

	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// LineFormatPlanner lowers simple line_format templates, plain text and bare
// field references, to a format() call. Templates with pipelines or functions
// stay on the in-process path.
type LineFormatPlanner struct {
	Template string
	Main     shared.SQLRequestPlanner
}

func (l *LineFormatPlanner) IsSupported() bool {
	nodes, err := l.nodes()
	if err != nil {
		return false
	}
	for _, n := range nodes {
		switch node := n.(type) {
		case *parse.TextNode:
		case *parse.ActionNode:
			if !isBareField(node) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (l *LineFormatPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := l.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	nodes, err := l.nodes()
	if err != nil {
		return nil, err
	}

	format := strings.Builder{}
	var args []sql.SQLObject
	for _, n := range nodes {
		switch node := n.(type) {
		case *parse.TextNode:
			format.WriteString(strings.NewReplacer("{", "{{", "}", "}}").Replace(string(node.Text)))
		case *parse.ActionNode:
			if !isBareField(node) {
				return nil, &shared.NotSupportedError{Msg: "line_format template is not supported"}
			}
			field := node.Pipe.Cmds[0].Args[0].(*parse.FieldNode).Ident[0]
			format.WriteString("{}")
			args = append(args, sql.NewRawObject(fmt.Sprintf("labels['%s']", field)))
		default:
			return nil, &shared.NotSupportedError{Msg: "line_format template is not supported"}
		}
	}

	cols, err := patchCol(main.GetSelect(), "string", func(sql.SQLObject) (sql.SQLObject, error) {
		return &sqlFormat{format: format.String(), args: args}, nil
	})
	if err != nil {
		return nil, err
	}
	return main.Select(cols...), nil
}

func (l *LineFormatPlanner) nodes() ([]parse.Node, error) {
	trees, err := parse.Parse("line_format", l.Template, "", "")
	if err != nil {
		return nil, err
	}
	return trees["line_format"].Root.Nodes, nil
}

func isBareField(node *parse.ActionNode) bool {
	if len(node.Pipe.Cmds) != 1 || len(node.Pipe.Cmds[0].Args) != 1 {
		return false
	}
	field, ok := node.Pipe.Cmds[0].Args[0].(*parse.FieldNode)
	return ok && len(field.Ident) == 1
}
