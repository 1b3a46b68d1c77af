package clickhouse_planner

import (
	"fmt"

	"github.com/metrico/loghouse/reader/logql/logql_parser"
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// LabelFilterPlanner applies a label filter expression to the labels map
// column after the labels join or a parser stage.
type LabelFilterPlanner struct {
	Filter *logql_parser.LabelFilter
	Main   shared.SQLRequestPlanner
}

func (l *LabelFilterPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := l.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	cond, err := labelFilterCond(l.Filter, func(name string) sql.SQLObject {
		return sql.NewRawObject(fmt.Sprintf("labels['%s']", name))
	})
	if err != nil {
		return nil, err
	}

	return main.AndWhere(cond), nil
}

// labelFilterCond lowers the and/or chain recursively. colGetter abstracts
// how a label value is addressed, a map access after the join or a JSON
// extraction when pushed down to the time series table.
func labelFilterCond(filter *logql_parser.LabelFilter,
	colGetter func(name string) sql.SQLObject) (sql.SQLCondition, error) {
	head, err := labelFilterHeadCond(&filter.Head, colGetter)
	if err != nil {
		return nil, err
	}
	if filter.Op == "" {
		return head, nil
	}

	tail, err := labelFilterCond(filter.Tail, colGetter)
	if err != nil {
		return nil, err
	}

	switch filter.Op {
	case "and":
		return sql.And(head, tail), nil
	case "or":
		return sql.Or(head, tail), nil
	}
	return nil, fmt.Errorf("unknown label filter op %s", filter.Op)
}

func labelFilterHeadCond(head *logql_parser.Head,
	colGetter func(name string) sql.SQLObject) (sql.SQLCondition, error) {
	if head.ComplexHead != nil {
		return labelFilterCond(head.ComplexHead, colGetter)
	}
	return simpleLabelFilterCond(head.SimpleHead, colGetter)
}

func simpleLabelFilterCond(filter *logql_parser.SimpleLabelFilter,
	colGetter func(name string) sql.SQLObject) (sql.SQLCondition, error) {
	col := colGetter(filter.Label.Name)

	if filter.StrVal != nil {
		val, err := filter.StrVal.Unquote()
		if err != nil {
			return nil, err
		}
		switch filter.Fn {
		case "=":
			return sql.Eq(col, sql.NewStringVal(val)), nil
		case "!=":
			return sql.Neq(col, sql.NewStringVal(val)), nil
		case "=~":
			return sql.Eq(&sqlMatch{col: col, pattern: val}, sql.NewIntVal(1)), nil
		case "!~":
			return sql.Eq(&sqlMatch{col: col, pattern: val}, sql.NewIntVal(0)), nil
		}
		return nil, fmt.Errorf("unsupported string label filter %s", filter.Fn)
	}

	op, ok := numberOperatorRegistry[filter.Fn]
	if !ok {
		return nil, &shared.NotSupportedError{
			Msg: fmt.Sprintf("number operator %s not supported", filter.Fn)}
	}

	numCol := sql.NewCustomCol(func(ctx *sql.Ctx, options ...int) (string, error) {
		str, err := col.String(ctx, options...)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("toFloat64OrNull(%s)", str), nil
	})

	return sql.And(
		sql.NewRawCondition(func(ctx *sql.Ctx, options ...int) (string, error) {
			str, err := numCol.String(ctx, options...)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("isNotNull(%s)", str), nil
		}),
		op(numCol, sql.NewRawObject(filter.NumVal))), nil
}
