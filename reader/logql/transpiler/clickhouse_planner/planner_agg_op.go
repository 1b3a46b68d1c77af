package clickhouse_planner

import (
	"fmt"

	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// AggOpPlanner applies a vector aggregation over the windowed series. Without
// grouping every series collapses into one with empty labels.
type AggOpPlanner struct {
	Main    shared.SQLRequestPlanner
	Func    string
	Grouped bool
}

func (a *AggOpPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := a.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	fn, ok := aggregationOperatorRegistry[a.Func]
	if !ok {
		return nil, &shared.NotSupportedError{
			Msg: fmt.Sprintf("aggregation operator %s is not supported", a.Func)}
	}

	withMain := sql.NewWith(main, fmt.Sprintf("op_%d", ctx.Id()))
	ref := withMain.GetAlias()

	cols := []sql.SQLObject{
		sql.NewSimpleCol(ref+".timestamp_ns", "timestamp_ns"),
		sql.NewCol(sql.NewRawObject(fmt.Sprintf("%s(%s.value)", fn, ref)), "value"),
	}
	groupBy := []sql.SQLObject{sql.NewRawObject("timestamp_ns")}
	orderBy := []sql.SQLObject{
		sql.NewOrderBy(sql.NewRawObject("timestamp_ns"), sql.ORDER_BY_DIRECTION_ASC),
	}

	if a.Grouped {
		cols = append([]sql.SQLObject{
			sql.NewSimpleCol(ref+".fingerprint", "fingerprint"),
			sql.NewSimpleCol(fmt.Sprintf("any(%s.labels)", ref), "labels"),
		}, cols...)
		groupBy = append([]sql.SQLObject{sql.NewRawObject("fingerprint")}, groupBy...)
		orderBy = append([]sql.SQLObject{
			sql.NewOrderBy(sql.NewRawObject("fingerprint"), sql.ORDER_BY_DIRECTION_ASC),
		}, orderBy...)
	} else {
		cols = append([]sql.SQLObject{
			sql.NewSimpleCol("toUInt64(0)", "fingerprint"),
			sql.NewSimpleCol("CAST(map(), 'Map(String,String)')", "labels"),
		}, cols...)
	}

	return sql.NewSelect().
		With(withMain).
		Select(cols...).
		From(sql.NewWithRef(withMain)).
		GroupBy(groupBy...).
		OrderBy(orderBy...), nil
}
