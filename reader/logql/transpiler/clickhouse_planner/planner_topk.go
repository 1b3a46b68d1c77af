package clickhouse_planner

import (
	"fmt"

	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// TopKPlanner keeps the K highest or lowest valued series per timestamp by
// sorting a per-bucket groupArray and slicing it.
type TopKPlanner struct {
	Main shared.SQLRequestPlanner
	K    int64
	Desc bool
}

func (t *TopKPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := t.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	sortLambda := "x -> x.1"
	if t.Desc {
		sortLambda = "x -> (-x.1)"
	}

	withMain := sql.NewWith(main, fmt.Sprintf("pre_topk_%d", ctx.Id()))
	ref := withMain.GetAlias()

	return sql.NewSelect().
		With(withMain).
		Select(
			sql.NewSimpleCol(ref+".timestamp_ns", "timestamp_ns"),
			sql.NewSimpleCol("topk.3", "fingerprint"),
			sql.NewSimpleCol("topk.2", "labels"),
			sql.NewSimpleCol("topk.1", "value")).
		From(sql.NewWithRef(withMain)).
		AddJoin(sql.NewJoin("array", sql.NewSimpleCol(
			fmt.Sprintf("arraySlice(arraySort(%s, groupArray((%[2]s.value, %[2]s.labels, %[2]s.fingerprint))), 1, %d)",
				sortLambda, ref, t.K),
			"topk"), nil)).
		GroupBy(sql.NewRawObject("timestamp_ns")).
		OrderBy(
			sql.NewOrderBy(sql.NewRawObject("fingerprint"), sql.ORDER_BY_DIRECTION_ASC),
			sql.NewOrderBy(sql.NewRawObject("timestamp_ns"), sql.ORDER_BY_DIRECTION_ASC)), nil
}
