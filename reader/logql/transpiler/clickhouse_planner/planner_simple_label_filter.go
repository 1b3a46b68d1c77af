package clickhouse_planner

import (
	"fmt"

	"github.com/metrico/loghouse/reader/logql/logql_parser"
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// SimpleLabelFilterPlanner pushes a label filter that precedes any parser
// down to the time series table, narrowing the fingerprint set instead of
// filtering joined rows.
type SimpleLabelFilterPlanner struct {
	Filter *logql_parser.LabelFilter
	Main   shared.SQLRequestPlanner
}

func (s *SimpleLabelFilterPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	fpSel, err := s.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	cond, err := labelFilterCond(s.Filter, func(name string) sql.SQLObject {
		return sql.NewCustomCol(func(_ *sql.Ctx, _ ...int) (string, error) {
			val, err := sql.NewStringVal(name).String(nil)
			return fmt.Sprintf("JSONExtractString(time_series.labels, %s)", val), err
		})
	})
	if err != nil {
		return nil, err
	}

	withFpSel := sql.NewWith(fpSel, fmt.Sprintf("fp_sel_%d", ctx.Id()))
	return sql.NewSelect().
		With(withFpSel).
		Select(sql.NewRawObject("fingerprint")).
		From(sql.NewRawObject(ctx.TimeSeriesDistTableName + " as time_series")).
		AndWhere(
			sql.NewIn(sql.NewRawObject("time_series.fingerprint"), sql.NewWithRef(withFpSel)),
			sql.Ge(sql.NewRawObject("time_series.date"), sql.NewStringVal(FormatFromDate(ctx.From))),
			cond), nil
}
