package clickhouse_planner

import (
	"fmt"
	"strings"

	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// ByWithoutPlanner narrows the labels map to the grouping set and
// refingerprints rows so equal narrowed maps share a fingerprint.
type ByWithoutPlanner struct {
	Main   shared.SQLRequestPlanner
	By     bool
	Labels []string
}

func (b *ByWithoutPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := b.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(b.Labels))
	for i, l := range b.Labels {
		names[i] = fmt.Sprintf("'%s'", l)
	}
	op := "in"
	if !b.By {
		op = "not in"
	}

	withMain := sql.NewWith(main, fmt.Sprintf("pre_bw_%d", ctx.Id()))
	ref := withMain.GetAlias()
	filtered := fmt.Sprintf("mapFilter((k, v) -> k %s (%s), %s.labels)",
		op, strings.Join(names, ", "), ref)

	return sql.NewSelect().
		With(withMain).
		Select(
			sql.NewSimpleCol(ref+".timestamp_ns", "timestamp_ns"),
			sql.NewSimpleCol(fmt.Sprintf("cityHash64(toString(%s))", filtered), "fingerprint"),
			sql.NewCol(sql.NewRawObject(filtered), "labels"),
			sql.NewSimpleCol(ref+".value", "value")).
		From(sql.NewWithRef(withMain)).
		OrderBy(
			sql.NewOrderBy(sql.NewRawObject("fingerprint"), sql.ORDER_BY_DIRECTION_ASC),
			sql.NewOrderBy(sql.NewRawObject("timestamp_ns"), sql.ORDER_BY_DIRECTION_ASC)), nil
}
