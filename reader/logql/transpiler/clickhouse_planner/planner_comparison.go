package clickhouse_planner

import (
	"fmt"

	"github.com/metrico/loghouse/reader/logql/logql_parser"
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// ComparisonPlanner filters the computed series values against a number,
// the trailing `> 5` of a metric query.
type ComparisonPlanner struct {
	Main       shared.SQLRequestPlanner
	Comparison *logql_parser.Comparison
}

func (c *ComparisonPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := c.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	op, ok := numberOperatorRegistry[c.Comparison.Fn]
	if !ok {
		return nil, &shared.NotSupportedError{
			Msg: fmt.Sprintf("comparison %s is not supported", c.Comparison.Fn)}
	}

	cond := op(sql.NewRawObject("value"), sql.NewRawObject(c.Comparison.Val))
	if len(main.GetGroupBy()) > 0 {
		return main.AndHaving(cond), nil
	}

	withMain := sql.NewWith(main, fmt.Sprintf("cmp_%d", ctx.Id()))
	return sql.NewSelect().
		With(withMain).
		Select(sql.NewRawObject("*")).
		From(sql.NewWithRef(withMain)).
		AndWhere(cond).
		OrderBy(
			sql.NewOrderBy(sql.NewRawObject("fingerprint"), sql.ORDER_BY_DIRECTION_ASC),
			sql.NewOrderBy(sql.NewRawObject("timestamp_ns"), sql.ORDER_BY_DIRECTION_ASC)), nil
}
