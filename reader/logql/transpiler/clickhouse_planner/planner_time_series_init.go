package clickhouse_planner

import (
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// TimeSeriesInitPlanner selects fingerprint and decoded labels map from the
// time series table. Labels are stored as a JSON string, decoded once here.
type TimeSeriesInitPlanner struct{}

func (t *TimeSeriesInitPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	return sql.NewSelect().Select(
		sql.NewSimpleCol("time_series.fingerprint", "fingerprint"),
		sql.NewSimpleCol(
			"mapFromArrays("+
				"arrayMap(x -> x.1, JSONExtractKeysAndValues(time_series.labels, 'String') as rawlbls), "+
				"arrayMap(x -> x.2, rawlbls))",
			"labels")).
		From(sql.NewCol(
			sql.NewCtxParamOrDef(shared.ParamTimeSeriesTable, ctx.TimeSeriesDistTableName),
			"time_series")).
		AndWhere(
			sql.Ge(sql.NewRawObject("time_series.date"), sql.NewStringVal(FormatFromDate(ctx.From))),
			GetTypes(ctx)), nil
}
