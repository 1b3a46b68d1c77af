package clickhouse_planner

import (
	"fmt"
	"time"

	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// The registries below bind every function name the grammar accepts to its
// SQL lowering. init validates that the two sides agree so a grammar edit
// without a lowering fails at startup, not on the first matching query.

var logRangeAggregationRegistry = map[string]func(ref string, dur time.Duration) string{
	"rate": func(ref string, dur time.Duration) string {
		return fmt.Sprintf("toFloat64(count(1)) / %f", dur.Seconds())
	},
	"count_over_time": func(ref string, dur time.Duration) string {
		return "toFloat64(count(1))"
	},
	"bytes_rate": func(ref string, dur time.Duration) string {
		return fmt.Sprintf("toFloat64(sum(length(%s.string))) / %f", ref, dur.Seconds())
	},
	"bytes_over_time": func(ref string, dur time.Duration) string {
		return fmt.Sprintf("toFloat64(sum(length(%s.string)))", ref)
	},
}

// unwrapFunctionRegistry values are format strings over the source alias.
var unwrapFunctionRegistry = map[string]func(dur time.Duration) string{
	"rate": func(dur time.Duration) string {
		return fmt.Sprintf("sum(%%[1]s.value) / %f", dur.Seconds())
	},
	"sum_over_time":    constExpr("sum(%[1]s.value)"),
	"avg_over_time":    constExpr("avg(%[1]s.value)"),
	"max_over_time":    constExpr("max(%[1]s.value)"),
	"min_over_time":    constExpr("min(%[1]s.value)"),
	"first_over_time":  constExpr("argMin(%[1]s.value, %[1]s.timestamp_ns)"),
	"last_over_time":   constExpr("argMax(%[1]s.value, %[1]s.timestamp_ns)"),
	"stdvar_over_time": constExpr("varPop(%[1]s.value)"),
	"stddev_over_time": constExpr("stddevPop(%[1]s.value)"),
}

func constExpr(expr string) func(dur time.Duration) string {
	return func(time.Duration) string { return expr }
}

var aggregationOperatorRegistry = map[string]string{
	"sum":    "sum",
	"min":    "min",
	"max":    "max",
	"avg":    "avg",
	"stddev": "stddevPop",
	"stdvar": "varPop",
	"count":  "count",
}

var parameterizedAggregationRegistry = map[string]bool{
	"topk":    true,
	"bottomk": false,
}

var parameterizedUnwrappedRegistry = map[string]bool{
	"quantile_over_time": true,
}

var numberOperatorRegistry = map[string]func(left sql.SQLObject, right sql.SQLObject) *sql.LogicalOp{
	"==": sql.Eq,
	"!=": sql.Neq,
	">":  sql.Gt,
	">=": sql.Ge,
	"<":  sql.Lt,
	"<=": sql.Le,
}

// range functions the grammar accepts but the SQL backend cannot express
var unsupportedRangeFns = map[string]bool{
	"absent_over_time": true,
}

// grammar function name lists, kept in lockstep with the parser rules
var grammarRangeFns = []string{
	"rate", "count_over_time", "bytes_rate", "bytes_over_time", "absent_over_time",
	"sum_over_time", "avg_over_time", "max_over_time", "min_over_time",
	"first_over_time", "last_over_time", "stdvar_over_time", "stddev_over_time",
}

var grammarAggFns = []string{"sum", "min", "max", "avg", "stddev", "stdvar", "count"}

var grammarParameterizedFns = []string{"topk", "bottomk"}

var grammarComparisonFns = []string{"==", "!=", ">", ">=", "<", "<="}

func init() {
	for _, fn := range grammarRangeFns {
		_, lra := logRangeAggregationRegistry[fn]
		_, unwrap := unwrapFunctionRegistry[fn]
		if !lra && !unwrap && !unsupportedRangeFns[fn] {
			panic(fmt.Sprintf("range function %s has no SQL lowering", fn))
		}
	}
	for _, fn := range grammarAggFns {
		if _, ok := aggregationOperatorRegistry[fn]; !ok {
			panic(fmt.Sprintf("aggregation operator %s has no SQL lowering", fn))
		}
	}
	for _, fn := range grammarParameterizedFns {
		if _, ok := parameterizedAggregationRegistry[fn]; !ok {
			panic(fmt.Sprintf("parameterized aggregation %s has no SQL lowering", fn))
		}
	}
	for _, fn := range grammarComparisonFns {
		if _, ok := numberOperatorRegistry[fn]; !ok {
			panic(fmt.Sprintf("comparison operator %s has no SQL lowering", fn))
		}
	}
}
