package clickhouse_planner

import (
	"fmt"

	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// guessLevelExpr detects the log level of the cluster's sample line, either a
// level word near the line start or a glog-style `I0102` prefix.
const guessLevelExpr = `map('', 'unknown', 'debu', 'debug', 'info', 'info', 'warn', 'warning', ` +
	`'erro', 'error', 'crit', 'critical', 'fata', 'fatal', 'I', 'info', 'W', 'warning', ` +
	`'E', 'error', 'F', 'fatal')[arrayFirst(x -> notEmpty(x), ` +
	`[lowerUTF8(arrayMap(x -> x[3], extractAllGroupsVertical(sum_a.string, ` +
	`'(?i)(^|\\s|[\]);|:,.])([\[(<\']|Level=)?(debu|info|warn|erro|crit|fata)'))[1]), ` +
	`extract(sum_a.string, '^([IWEF])[0-9]{4}(\\s|\\p{P})')])]`

// signatureExpr fingerprints a line by the hashes of its lowercased words,
// order insensitive, so lines differing only in numbers and punctuation
// cluster together.
const signatureExpr = `(arrayReduce('sum', arrayMap(x -> cityHash64(lowerUTF8(x[2])), ` +
	`extractAllGroupsVertical(sum_a.string, '(^|\\p{P}|\\s)([a-zA-Z]+)(\\p{P}|$|\\s)')) as a), ` +
	`arrayReduce('groupBitXor', a), ` +
	`toUInt64(arrayProduct(arrayMap(x -> x * 2 + 1, a))), ` +
	guessLevelExpr + ` as _level)`

// SummaryPlanner clusters the selected lines by token signature and emits one
// representative row per cluster with its share of the total.
type SummaryPlanner struct {
	Main shared.SQLRequestPlanner
}

func (s *SummaryPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := s.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	withMain := sql.NewWith(main, "sum_a")

	return sql.NewSelect().
		With(withMain).
		Select(
			sql.NewCol(sql.NewCtxParamOrDef(shared.ParamTo,
				fmt.Sprintf("%d", ctx.To.UnixNano())), "timestamp_ns"),
			sql.NewSimpleCol("[('level', _level)]::Array(Tuple(String,String))", "labels"),
			sql.NewSimpleCol(
				"format('{} ({}%): {}', toString(count() as _c), "+
					"toString(round(toFloat64(_c) / _overall * 100, 3)), min(sum_a.string))",
				"string"),
			sql.NewSimpleCol("toFloat64(0)", "value"),
			sql.NewSimpleCol("(SELECT count() FROM sum_a)", "_overall")).
		From(sql.NewWithRef(withMain)).
		GroupBy(sql.NewRawObject(signatureExpr)).
		OrderBy(sql.NewOrderBy(sql.NewRawObject("_c"), sql.ORDER_BY_DIRECTION_DESC)).
		Limit(sql.NewCtxParamOrDef(shared.ParamLimit, "2000")), nil
}
