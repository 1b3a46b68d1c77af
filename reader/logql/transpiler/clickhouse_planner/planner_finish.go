package clickhouse_planner

import (
	"fmt"
	"time"

	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// MainOrderByPlanner orders the stream rows, ascending or descending per the
// request direction.
type MainOrderByPlanner struct {
	Cols []string
	Main shared.SQLRequestPlanner
}

func (m *MainOrderByPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := m.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	dir := sql.ORDER_BY_DIRECTION_DESC
	if ctx.OrderASC {
		dir = sql.ORDER_BY_DIRECTION_ASC
	}

	orderBy := make([]sql.SQLObject, len(m.Cols))
	for i, c := range m.Cols {
		orderBy[i] = sql.NewOrderBy(sql.NewRawObject(c), dir)
	}
	return main.OrderBy(orderBy...), nil
}

// MainLimitPlanner applies the late-bound row limit. An empty binding keeps
// the query unlimited.
type MainLimitPlanner struct {
	Main shared.SQLRequestPlanner
}

func (m *MainLimitPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := m.Main.Process(ctx)
	if err != nil {
		return nil, err
	}
	return main.Limit(sql.NewCtxParamOrDef(shared.ParamLimit, "")), nil
}

// MainRenewPlanner re-projects the request through a subselect so parser
// produced columns can be referenced by plain name in later stages.
type MainRenewPlanner struct {
	Main      shared.SQLRequestPlanner
	UseLabels bool
}

func (m *MainRenewPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := m.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	withMain := sql.NewWith(main, fmt.Sprintf("subsel_%d", ctx.Id()))
	cols := []sql.SQLObject{
		sql.NewSimpleCol("timestamp_ns", "timestamp_ns"),
		sql.NewSimpleCol("fingerprint", "fingerprint"),
		sql.NewSimpleCol("string", "string"),
		sql.NewSimpleCol("value", "value"),
	}
	if m.UseLabels {
		cols = append(cols, sql.NewSimpleCol("labels", "labels"))
	}
	return sql.NewSelect().
		With(withMain).
		Select(cols...).
		From(sql.NewWithRef(withMain)), nil
}

// MainFinalizerPlanner renders the canonical final projection for stream
// requests.
type MainFinalizerPlanner struct {
	Main shared.SQLRequestPlanner
}

func (m *MainFinalizerPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := m.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	if !ctx.CHFinalize {
		return main, nil
	}

	withMain := sql.NewWith(main, "out_final")
	return sql.NewSelect().
		With(withMain).
		Select(
			sql.NewSimpleCol("out_final.timestamp_ns", "timestamp_ns"),
			sql.NewSimpleCol("out_final.fingerprint", "fingerprint"),
			sql.NewSimpleCol("out_final.labels", "labels"),
			sql.NewSimpleCol("out_final.string", "string"),
			sql.NewSimpleCol("out_final.value", "value")).
		From(sql.NewWithRef(withMain)), nil
}

// StepFixPlanner snaps matrix timestamps down to the step grid when the step
// exceeds the window duration, so sparse windows still align.
type StepFixPlanner struct {
	Main     shared.SQLRequestPlanner
	Duration time.Duration
}

func (s *StepFixPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := s.Main.Process(ctx)
	if err != nil {
		return nil, err
	}
	if ctx.Step.Milliseconds() <= s.Duration.Milliseconds() {
		return main, nil
	}

	cols, err := patchCol(main.GetSelect(), "timestamp_ns",
		func(c sql.SQLObject) (sql.SQLObject, error) {
			return sql.NewCustomCol(func(_ctx *sql.Ctx, options ...int) (string, error) {
				str, err := c.String(_ctx, options...)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("intDiv(%s, %d) * %d", str,
					ctx.Step.Milliseconds(), ctx.Step.Milliseconds()), nil
			}), nil
		})
	if err != nil {
		return nil, err
	}
	return main.Select(cols...), nil
}
