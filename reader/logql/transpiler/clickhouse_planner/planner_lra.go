package clickhouse_planner

import (
	"fmt"
	"time"

	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// LRAPlanner buckets the stream into fixed windows and applies a log range
// aggregation. Input timestamps are already milliseconds on the matrix path.
type LRAPlanner struct {
	Main      shared.SQLRequestPlanner
	Func      string
	Duration  time.Duration
	UseLabels bool
}

func (l *LRAPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := l.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	valueExpr, ok := logRangeAggregationRegistry[l.Func]
	if !ok {
		return nil, &shared.NotSupportedError{
			Msg: fmt.Sprintf("log range aggregation %s is not supported", l.Func)}
	}

	durMs := l.Duration.Milliseconds()
	withMain := sql.NewWith(main, fmt.Sprintf("agg_%d", ctx.Id()))
	ref := withMain.GetAlias()

	cols := []sql.SQLObject{
		sql.NewSimpleCol(
			fmt.Sprintf("intDiv(%s.timestamp_ns, %d) * %d", ref, durMs, durMs),
			"timestamp_ns"),
		sql.NewSimpleCol(ref+".fingerprint", "fingerprint"),
		sql.NewCol(sql.NewRawObject(valueExpr(ref, l.Duration)), "value"),
	}
	groupBy := []sql.SQLObject{
		sql.NewRawObject("fingerprint"),
		sql.NewRawObject("timestamp_ns"),
	}
	if l.UseLabels {
		cols = append(cols[:2], append([]sql.SQLObject{
			sql.NewSimpleCol(fmt.Sprintf("any(%s.labels)", ref), "labels"),
		}, cols[2:]...)...)
	}

	return sql.NewSelect().
		With(withMain).
		Select(cols...).
		From(sql.NewWithRef(withMain)).
		GroupBy(groupBy...).
		OrderBy(
			sql.NewOrderBy(sql.NewRawObject("fingerprint"), sql.ORDER_BY_DIRECTION_ASC),
			sql.NewOrderBy(sql.NewRawObject("timestamp_ns"), sql.ORDER_BY_DIRECTION_ASC)), nil
}
