package transpiler

import (
	"testing"
	"time"

	"github.com/metrico/loghouse/reader/logql/logql_parser"
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	"github.com/metrico/loghouse/reader/utils/dbVersion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() Settings {
	return Settings{
		From:  time.Unix(1600000000, 0),
		To:    time.Unix(1600003600, 0),
		Limit: 100,
	}
}

func TestTranspileRawSelection(t *testing.T) {
	cq, err := Transpile(`{test_id="abc"}`, testSettings())
	require.NoError(t, err)
	assert.False(t, cq.Matrix)
	assert.False(t, cq.Summary)
	assert.Empty(t, cq.Processors)
	assert.Contains(t, cq.Query, "samples_read_v2_2")
	assert.Contains(t, cq.Query, "time_series")
	assert.Contains(t, cq.Query, "'abc'")
	assert.Contains(t, cq.Query, "LIMIT 100")
	assert.Contains(t, cq.Query, "desc")
}

func TestTranspileForward(t *testing.T) {
	settings := testSettings()
	settings.OrderASC = true
	cq, err := Transpile(`{test_id="abc"}`, settings)
	require.NoError(t, err)
	assert.Contains(t, cq.Query, "timestamp_ns asc")
}

func TestTranspileOrdersSeriesFirst(t *testing.T) {
	// the assembler groups contiguous runs, so the final rows must be
	// sorted by label set before time
	cq, err := Transpile(`{test_id="abc"}`, testSettings())
	require.NoError(t, err)
	assert.Contains(t, cq.Query, "ORDER BY labels desc, timestamp_ns desc")

	cq, err = Transpile(`{test_id="abc"} | json | lbl = "val"`, testSettings())
	require.NoError(t, err)
	assert.Contains(t, cq.Query, "ORDER BY labels desc, timestamp_ns desc")
}

func TestTranspileFinalize(t *testing.T) {
	settings := testSettings()
	settings.Finalize = true
	cq, err := Transpile(`{test_id="abc"}`, settings)
	require.NoError(t, err)
	assert.Contains(t, cq.Query, "out_final")

	cq, err = Transpile(`{test_id="abc"}`, testSettings())
	require.NoError(t, err)
	assert.NotContains(t, cq.Query, "out_final")
}

func TestTranspileLineFilter(t *testing.T) {
	cq, err := Transpile(`{test_id="abc"} |= "err or"`, testSettings())
	require.NoError(t, err)
	assert.Contains(t, cq.Query, "like")
	assert.Contains(t, cq.Query, "%err or%")
}

func TestTranspileDeterministic(t *testing.T) {
	query := `sum(rate({test_id="abc"} |= "error" [1m])) by (level) > 4`
	a, err := Transpile(query, testSettings())
	require.NoError(t, err)
	b, err := Transpile(query, testSettings())
	require.NoError(t, err)
	assert.Equal(t, a.Query, b.Query)
}

func TestTranspileMatrix(t *testing.T) {
	settings := testSettings()
	cq, err := Transpile(`rate({test_id="abc"}[5m])`, settings)
	require.NoError(t, err)
	assert.True(t, cq.Matrix)
	assert.Equal(t, 5*time.Minute, cq.Duration)
	assert.Contains(t, cq.Query, "intDiv")
	// no LIMIT on matrix responses
	assert.NotContains(t, cq.Query, "LIMIT")

	// the range is widened to whole windows
	durMs := cq.Duration.Milliseconds()
	assert.Zero(t, cq.Ctx.From.UnixMilli()%durMs)
	assert.Zero(t, cq.Ctx.To.UnixMilli()%durMs)
	assert.False(t, cq.Ctx.From.After(settings.From))
	assert.False(t, cq.Ctx.To.Before(settings.To))
}

func TestTranspileAggOp(t *testing.T) {
	cq, err := Transpile(`sum(rate({test_id="abc"}[1m])) by (level)`, testSettings())
	require.NoError(t, err)
	assert.True(t, cq.Matrix)
	assert.Contains(t, cq.Query, "sum(")
	assert.Contains(t, cq.Query, "'level'")
}

func TestTranspileStreamSidePipeline(t *testing.T) {
	cq, err := Transpile(`{test_id="abc"} | json | lbl = "val"`, testSettings())
	require.NoError(t, err)
	// bare json and everything after it run in process
	assert.Len(t, cq.Processors, 2)
}

func TestTranspileUnsupported(t *testing.T) {
	for _, query := range []string{
		`absent_over_time({test_id="abc"}[1m])`,
		`{test_id="abc"} | label_format a=b`,
		`sum_over_time({test_id="abc"} | json | unwrap lbl [1m])`,
	} {
		_, err := Transpile(query, testSettings())
		require.Error(t, err, query)
		assert.True(t, shared.IsNotSupportedError(err), query)
	}
}

func TestTranspileSummary(t *testing.T) {
	cq, err := Transpile(`summary({test_id="abc"})`, testSettings())
	require.NoError(t, err)
	assert.True(t, cq.Summary)
	assert.False(t, cq.Matrix)
	assert.Contains(t, cq.Query, "sum_a")
	assert.Contains(t, cq.Query, "LIMIT 2000")
	// token signature is order insensitive over lowercased words
	assert.Contains(t, cq.Query, "cityHash64(lowerUTF8(x[2]))")
	assert.Contains(t, cq.Query, "groupBitXor")
	// level guess covers both level words and glog prefixes
	assert.Contains(t, cq.Query, "'fata', 'fatal'")
	assert.Contains(t, cq.Query, "^([IWEF])[0-9]{4}")

	settings := testSettings()
	settings.SummaryLimit = 500
	cq, err = Transpile(`summary({test_id="abc"})`, settings)
	require.NoError(t, err)
	assert.Contains(t, cq.Query, "LIMIT 500")
}

func TestTranspileMetrics15Shortcut(t *testing.T) {
	settings := testSettings()
	settings.VersionInfo = dbVersion.VersionInfo{"v5": 1}
	cq, err := Transpile(`rate({test_id="abc"}[30s])`, settings)
	require.NoError(t, err)
	assert.Contains(t, cq.Query, "metrics_15s")

	// without the watermark the full scan is used
	cq, err = Transpile(`rate({test_id="abc"}[30s])`, testSettings())
	require.NoError(t, err)
	assert.NotContains(t, cq.Query, "metrics_15s")

	// a pipeline disqualifies the shortcut
	cq, err = Transpile(`rate({test_id="abc"} |= "err" [30s])`, settings)
	require.NoError(t, err)
	assert.NotContains(t, cq.Query, "metrics_15s")
}

func TestTranspileUnwrapValue(t *testing.T) {
	cq, err := Transpile(`sum_over_time({test_id="abc"} | unwrap_value [1m])`, testSettings())
	require.NoError(t, err)
	assert.Equal(t, uint8(shared.SAMPLES_TYPE_METRICS), cq.Ctx.Type)
	assert.Contains(t, cq.Query, "samples.value")
}

func TestMacros(t *testing.T) {
	RegisterMacro("_test_selector", func(op *logql_parser.MacrosOp) (string, error) {
		return `{test_id="abc"}`, nil
	})
	expanded, err := Transpile(`_test_selector()`, testSettings())
	require.NoError(t, err)
	direct, err := Transpile(`{test_id="abc"}`, testSettings())
	require.NoError(t, err)
	assert.Equal(t, direct.Query, expanded.Query)

	_, err = Transpile(`_not_registered()`, testSettings())
	require.Error(t, err)
	assert.True(t, shared.IsNotSupportedError(err))

	RegisterMacro("_recursive", func(op *logql_parser.MacrosOp) (string, error) {
		return `_recursive()`, nil
	})
	_, err = Transpile(`_recursive()`, testSettings())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded")
}

func TestTranspileTail(t *testing.T) {
	_, err := TranspileTail(`rate({test_id="abc"}[1m])`, testSettings())
	require.Error(t, err)
	assert.True(t, shared.IsNotSupportedError(err))

	tail, err := TranspileTail(`{test_id="abc"} |= "err"`, testSettings())
	require.NoError(t, err)

	initial, err := tail.Render(0)
	require.NoError(t, err)
	assert.Contains(t, initial, "(toUnixTimestamp(now()) - 5) * 1000000000")
	assert.Contains(t, initial, "asc")
	assert.NotContains(t, initial, "LIMIT")

	poll, err := tail.Render(1600000123000000000)
	require.NoError(t, err)
	assert.Contains(t, poll, "1600000123000000000")
}

func TestTranspileSeries(t *testing.T) {
	query, err := TranspileSeries([]string{`{job="api"}`, `up{instance="x"}`},
		testSettings())
	require.NoError(t, err)
	assert.Contains(t, query, "UNION ALL")
	assert.Contains(t, query, "DISTINCT")
	assert.Contains(t, query, "'__name__'")

	single, err := TranspileSeries([]string{`{job="api"}`}, testSettings())
	require.NoError(t, err)
	assert.NotContains(t, single, "UNION ALL")

	_, err = TranspileSeries(nil, testSettings())
	require.Error(t, err)
}
