package clickhouse_planner

import (
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// LabelsJoinPlanner attaches decoded label maps to the main request with an
// ANY LEFT JOIN against the time series table, GLOBAL on clustered setups.
type LabelsJoinPlanner struct {
	Main shared.SQLRequestPlanner

	// FpCache returns the fingerprints WITH created earlier in the chain so
	// the labels subselect reuses the same set.
	FpCache func() *sql.With
}

func (l *LabelsJoinPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := l.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	timeSeries, err := labelsFromScratch(ctx, l.FpCache())
	if err != nil {
		return nil, err
	}

	withMain := sql.NewWith(main, "main")
	withTimeSeries := sql.NewWith(timeSeries, "_time_series")

	joinType := "ANY LEFT"
	if ctx.IsCluster {
		joinType = "GLOBAL ANY LEFT"
	}

	return sql.NewSelect().
		With(withMain, withTimeSeries).
		Select(
			sql.NewSimpleCol("main.timestamp_ns", "timestamp_ns"),
			sql.NewSimpleCol("main.fingerprint", "fingerprint"),
			sql.NewSimpleCol("_time_series.labels", "labels"),
			sql.NewSimpleCol("main.string", "string"),
			sql.NewSimpleCol("main.value", "value")).
		From(sql.NewWithRef(withMain)).
		AddJoin(sql.NewJoin(joinType, sql.NewWithRef(withTimeSeries),
			sql.Eq(sql.NewRawObject("main.fingerprint"),
				sql.NewRawObject("_time_series.fingerprint")))), nil
}
