package clickhouse_planner

import (
	"fmt"
	"time"

	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// Metrics15ShortcutPlanner reads pre-aggregated 15 second buckets instead of
// raw samples. Valid for rate and count_over_time without pipeline stages
// when the window is a multiple of 15 seconds.
type Metrics15ShortcutPlanner struct {
	Func     string
	Duration time.Duration

	Fingerprints shared.SQLRequestPlanner
}

func (m *Metrics15ShortcutPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	fpSel, err := m.Fingerprints.Process(ctx)
	if err != nil {
		return nil, err
	}
	withFpSel := sql.NewWith(fpSel, "fp_sel")

	durMs := m.Duration.Milliseconds()
	value := "toFloat64(countMerge(count))"
	if m.Func == "rate" {
		value = fmt.Sprintf("toFloat64(countMerge(count)) / %f", m.Duration.Seconds())
	}

	buckets := sql.NewSelect().
		Select(
			sql.NewSimpleCol(
				fmt.Sprintf("intDiv(metrics_15s.timestamp_ns, %d000000) * %d", durMs, durMs),
				"timestamp_ns"),
			sql.NewSimpleCol("metrics_15s.fingerprint", "fingerprint"),
			sql.NewCol(sql.NewRawObject(value), "value")).
		From(sql.NewRawObject(ctx.Metrics15sTableName + " as metrics_15s")).
		AndWhere(
			sql.NewIn(sql.NewRawObject("metrics_15s.fingerprint"), sql.NewWithRef(withFpSel)),
			timeBoundary15s(shared.ParamFrom, ">=", ctx.From.UnixNano()),
			timeBoundary15s(shared.ParamTo, "<=", ctx.To.UnixNano())).
		GroupBy(sql.NewRawObject("fingerprint"), sql.NewRawObject("timestamp_ns"))

	timeSeries, err := labelsFromScratch(ctx, withFpSel)
	if err != nil {
		return nil, err
	}

	withMain := sql.NewWith(buckets, "main")
	withTimeSeries := sql.NewWith(timeSeries, "_time_series")

	joinType := "ANY LEFT"
	if ctx.IsCluster {
		joinType = "GLOBAL ANY LEFT"
	}

	return sql.NewSelect().
		With(withFpSel, withMain, withTimeSeries).
		Select(
			sql.NewSimpleCol("main.timestamp_ns", "timestamp_ns"),
			sql.NewSimpleCol("main.fingerprint", "fingerprint"),
			sql.NewSimpleCol("_time_series.labels", "labels"),
			sql.NewSimpleCol("main.value", "value")).
		From(sql.NewWithRef(withMain)).
		AddJoin(sql.NewJoin(joinType, sql.NewWithRef(withTimeSeries),
			sql.Eq(sql.NewRawObject("main.fingerprint"),
				sql.NewRawObject("_time_series.fingerprint")))).
		OrderBy(
			sql.NewOrderBy(sql.NewRawObject("fingerprint"), sql.ORDER_BY_DIRECTION_ASC),
			sql.NewOrderBy(sql.NewRawObject("timestamp_ns"), sql.ORDER_BY_DIRECTION_ASC)), nil
}

func timeBoundary15s(param string, op string, def int64) sql.SQLCondition {
	return sql.NewRawCondition(func(ctx *sql.Ctx, options ...int) (string, error) {
		val := fmt.Sprintf("%d", def)
		if p, ok := ctx.Params[param]; ok {
			var err error
			val, err = p.String(ctx, options...)
			if err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("metrics_15s.timestamp_ns %s %s", op, val), nil
	})
}
