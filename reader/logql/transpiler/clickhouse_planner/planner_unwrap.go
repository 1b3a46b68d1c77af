package clickhouse_planner

import (
	"fmt"
	"time"

	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// UnwrapPlanner replaces the value column with the unwrapped number and drops
// rows where the source does not parse.
type UnwrapPlanner struct {
	Main  shared.SQLRequestPlanner
	Fn    string
	Label string
}

func (u *UnwrapPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := u.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	var src string
	switch {
	case u.Fn == "unwrap_value":
		src = "samples.value"
	case u.Label == "_entry":
		src = "string"
	default:
		src = fmt.Sprintf("labels['%s']", u.Label)
	}

	value := fmt.Sprintf("toFloat64OrZero(%s)", src)
	if u.Fn == "unwrap_value" {
		value = fmt.Sprintf("toFloat64(%s)", src)
	}

	cols, err := patchCol(main.GetSelect(), "value", func(sql.SQLObject) (sql.SQLObject, error) {
		return sql.NewRawObject(value), nil
	})
	if err != nil {
		return nil, err
	}
	main.Select(cols...)

	if u.Fn != "unwrap_value" {
		main.AndWhere(sql.NewRawCondition(func(_ *sql.Ctx, _ ...int) (string, error) {
			return fmt.Sprintf("isNotNull(toFloat64OrNull(%s))", src), nil
		}))
	}
	return main, nil
}

// UnwrapFunctionPlanner aggregates unwrapped values over fixed windows.
type UnwrapFunctionPlanner struct {
	Main     shared.SQLRequestPlanner
	Func     string
	Duration time.Duration
	// quantile parameter for parameterized functions, unset otherwise
	Param     float64
	UseLabels bool
}

func (u *UnwrapFunctionPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := u.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	var valueExpr string
	if u.Func == "quantile_over_time" {
		valueExpr = fmt.Sprintf("quantile(%f)(%%[1]s.value)", u.Param)
	} else {
		tmpl, ok := unwrapFunctionRegistry[u.Func]
		if !ok {
			return nil, &shared.NotSupportedError{
				Msg: fmt.Sprintf("unwrap function %s is not supported", u.Func)}
		}
		valueExpr = tmpl(u.Duration)
	}

	durMs := u.Duration.Milliseconds()
	withMain := sql.NewWith(main, fmt.Sprintf("uw_%d", ctx.Id()))
	ref := withMain.GetAlias()

	cols := []sql.SQLObject{
		sql.NewSimpleCol(
			fmt.Sprintf("intDiv(%s.timestamp_ns, %d) * %d", ref, durMs, durMs),
			"timestamp_ns"),
		sql.NewSimpleCol(ref+".fingerprint", "fingerprint"),
		sql.NewCol(sql.NewRawObject(fmt.Sprintf(valueExpr, ref)), "value"),
	}
	if u.UseLabels {
		cols = append(cols[:2], append([]sql.SQLObject{
			sql.NewSimpleCol(fmt.Sprintf("any(%s.labels)", ref), "labels"),
		}, cols[2:]...)...)
	}

	return sql.NewSelect().
		With(withMain).
		Select(cols...).
		From(sql.NewWithRef(withMain)).
		GroupBy(sql.NewRawObject("fingerprint"), sql.NewRawObject("timestamp_ns")).
		OrderBy(
			sql.NewOrderBy(sql.NewRawObject("fingerprint"), sql.ORDER_BY_DIRECTION_ASC),
			sql.NewOrderBy(sql.NewRawObject("timestamp_ns"), sql.ORDER_BY_DIRECTION_ASC)), nil
}
