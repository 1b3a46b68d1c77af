package clickhouse_planner

import (
	"fmt"

	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// MainInitPlanner emits the root samples select. Table name and time bounds
// are late-bound parameters so one plan can be rendered against different
// windows and schema versions.
type MainInitPlanner struct{}

func (m *MainInitPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	return sql.NewSelect().
		Select(
			sql.NewCol(timestampGetter(), "timestamp_ns"),
			sql.NewSimpleCol("samples.fingerprint", "fingerprint"),
			sql.NewSimpleCol("samples.string", "string"),
			sql.NewCol(valueGetter(ctx), "value"),
		).
		From(sql.NewCol(
			sql.NewCtxParamOrDef(shared.ParamSamplesTable, ctx.SamplesTableName),
			"samples")).
		AndWhere(
			timeBoundary(shared.ParamFrom, ">=", ctx.From.UnixNano()),
			timeBoundary(shared.ParamTo, "<=", ctx.To.UnixNano()),
			GetTypes(ctx)), nil
}

// timestampGetter keeps the raw nanosecond timestamp for stream results and
// truncates to milliseconds when the isMatrix parameter is bound truthy.
func timestampGetter() sql.SQLObject {
	return sql.NewCustomCol(func(ctx *sql.Ctx, options ...int) (string, error) {
		p, ok := ctx.Params[shared.ParamIsMatrix]
		if !ok {
			return "samples.timestamp_ns", nil
		}
		str, err := p.String(ctx, options...)
		if err != nil {
			return "", err
		}
		if str == "true" || str == "1" {
			return "intDiv(samples.timestamp_ns, 1000000)", nil
		}
		return "samples.timestamp_ns", nil
	})
}

func valueGetter(ctx *shared.PlannerContext) sql.SQLObject {
	if ctx.Type == shared.SAMPLES_TYPE_METRICS {
		return sql.NewRawObject("toFloat64(samples.value)")
	}
	return sql.NewRawObject("toFloat64(0)")
}

func timeBoundary(param string, op string, def int64) sql.SQLCondition {
	return sql.NewRawCondition(func(ctx *sql.Ctx, options ...int) (string, error) {
		val := fmt.Sprintf("%d", def)
		if p, ok := ctx.Params[param]; ok {
			var err error
			val, err = p.String(ctx, options...)
			if err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("samples.timestamp_ns %s %s", op, val), nil
	})
}
