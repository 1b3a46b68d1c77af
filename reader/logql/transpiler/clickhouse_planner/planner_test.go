package clickhouse_planner

import (
	"testing"
	"time"

	"github.com/metrico/loghouse/reader/logql/logql_parser"
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx() *shared.PlannerContext {
	return &shared.PlannerContext{
		From:                    time.Unix(1600000000, 0),
		To:                      time.Unix(1600003600, 0),
		SamplesTableName:        "samples_v3",
		TimeSeriesTableName:     "time_series",
		TimeSeriesDistTableName: "time_series",
		TimeSeriesGinTableName:  "time_series_gin",
		Metrics15sTableName:     "metrics_15s",
		Type:                    shared.SAMPLES_TYPE_BOTH,
	}
}

func TestStreamSelectPlanner(t *testing.T) {
	ast, err := logql_parser.Parse(`{job="api", level=~"err.*"}`)
	require.NoError(t, err)

	planner, err := NewStreamSelectPlanner(ast.StrSelector)
	require.NoError(t, err)

	req, err := planner.Process(testCtx())
	require.NoError(t, err)
	res, err := req.String(sql.NewCtx())
	require.NoError(t, err)

	assert.Contains(t, res, "time_series_gin")
	assert.Contains(t, res, "(key) == ('job')")
	assert.Contains(t, res, "(val) == ('api')")
	assert.Contains(t, res, "match(val, 'err.*')")
	assert.Contains(t, res, "groupBitOr")
	// two matchers, both bits must be set
	assert.Contains(t, res, "== (3)")
}

func TestPlanProcessorsSplit(t *testing.T) {
	for _, tc := range []struct {
		query      string
		processors int
	}{
		{`{job="api"}`, 0},
		{`{job="api"} |= "err" | regexp "(?<code>[0-9]+)"`, 0},
		{`{job="api"} | json`, 1},
		{`{job="api"} | json | lbl = "val" |= "err"`, 3},
		{`{job="api"} | logfmt`, 1},
		{`{job="api"} | json code="a.b"`, 0},
	} {
		ast, err := logql_parser.Parse(tc.query)
		require.NoError(t, err, tc.query)
		_, processors, err := Plan(ast)
		require.NoError(t, err, tc.query)
		assert.Len(t, processors, tc.processors, tc.query)
	}
}

func TestPlanRejectsMacros(t *testing.T) {
	ast, err := logql_parser.Parse(`_macro()`)
	require.NoError(t, err)
	_, _, err = Plan(ast)
	require.Error(t, err)
	assert.True(t, shared.IsNotSupportedError(err))
}

func TestPlanRejectsParserAfterStreamSide(t *testing.T) {
	ast, err := logql_parser.Parse(`{job="api"} | json | regexp "(?<c>[0-9]+)"`)
	require.NoError(t, err)
	_, _, err = Plan(ast)
	require.Error(t, err)
	assert.True(t, shared.IsNotSupportedError(err))
}

func TestGetTypes(t *testing.T) {
	ctx := testCtx()

	res, err := GetTypes(ctx).String(sql.NewCtx())
	require.NoError(t, err)
	assert.Equal(t, "type IN (1,0)", res)

	ctx.Type = shared.SAMPLES_TYPE_METRICS
	res, err = GetTypes(ctx).String(sql.NewCtx())
	require.NoError(t, err)
	assert.Equal(t, "type IN (2,0)", res)
}

func TestPatchCol(t *testing.T) {
	cols := []sql.SQLObject{
		sql.NewSimpleCol("samples.string", "string"),
		sql.NewSimpleCol("samples.value", "value"),
	}
	patched, err := patchCol(cols, "value", func(expr sql.SQLObject) (sql.SQLObject, error) {
		return sql.NewRawObject("toFloat64(samples.value)"), nil
	})
	require.NoError(t, err)

	res, err := patched[1].String(sql.NewCtx())
	require.NoError(t, err)
	assert.Equal(t, "toFloat64(samples.value) as value", res)

	// untouched columns stay in place
	res, err = patched[0].String(sql.NewCtx())
	require.NoError(t, err)
	assert.Equal(t, "samples.string as string", res)

	assert.True(t, hasColumn(cols, "value"))
	assert.False(t, hasColumn(cols, "missing"))
}

func TestUnionAll(t *testing.T) {
	a := sql.NewSelect().Select(sql.NewRawObject("1"))
	b := sql.NewSelect().Select(sql.NewRawObject("2"))
	res, err := (&UnionAll{ISelect: a, Anothers: []sql.ISelect{b}}).String(sql.NewCtx())
	require.NoError(t, err)
	assert.Equal(t, " SELECT 1 UNION ALL  SELECT 2", res)
}

func TestFormatFromDate(t *testing.T) {
	// the half hour slack crosses the date boundary
	assert.Equal(t, "2023-12-31",
		FormatFromDate(time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC)))
	assert.Equal(t, "2024-01-01",
		FormatFromDate(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)))
}

func TestRateLowering(t *testing.T) {
	assert.Equal(t, "toFloat64(count(1)) / 10.000000",
		logRangeAggregationRegistry["rate"]("samples", 10*time.Second))
	assert.Equal(t, "toFloat64(count(1))",
		logRangeAggregationRegistry["count_over_time"]("samples", 10*time.Second))
}
