package internal_planner

import (
	"testing"

	"github.com/metrico/loghouse/reader/logql/logql_parser"
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runProcessor(t *testing.T, proc shared.StreamProcessor,
	entries []shared.LogEntry) []shared.LogEntry {
	in := make(chan []shared.LogEntry, 1)
	in <- entries
	close(in)

	var res []shared.LogEntry
	for batch := range proc(&shared.PlannerContext{}, in) {
		res = append(res, batch...)
	}
	return res
}

func TestJsonParserProcessor(t *testing.T) {
	entries := runProcessor(t, NewJsonParserProcessor(), []shared.LogEntry{
		{
			Labels:  map[string]string{"job": "api"},
			Message: `{"level":"error","http":{"status":500},"cached":true,"tags":["a"]}`,
		},
		{Labels: map[string]string{"job": "api"}, Message: `not json at all`},
		{EOF: true},
	})
	require.Len(t, entries, 3)

	assert.Equal(t, map[string]string{
		"job":         "api",
		"level":       "error",
		"http_status": "500",
		"cached":      "true",
	}, entries[0].Labels)
	// unparsable lines keep their labels
	assert.Equal(t, map[string]string{"job": "api"}, entries[1].Labels)
	assert.True(t, entries[2].EOF)
}

func TestLogfmtParserProcessor(t *testing.T) {
	entries := runProcessor(t, NewLogfmtParserProcessor(), []shared.LogEntry{
		{
			Labels:  map[string]string{"job": "api"},
			Message: `level=error msg="some failure" http.status=500`,
		},
	})
	require.Len(t, entries, 1)
	assert.Equal(t, map[string]string{
		"job":         "api",
		"level":       "error",
		"msg":         "some failure",
		"http_status": "500",
	}, entries[0].Labels)
}

func TestParserKeepsOriginalLabels(t *testing.T) {
	orig := map[string]string{"job": "api"}
	runProcessor(t, NewJsonParserProcessor(), []shared.LogEntry{
		{Labels: orig, Message: `{"a":"b"}`},
	})
	assert.Equal(t, map[string]string{"job": "api"}, orig)
}

func TestLineFilterProcessor(t *testing.T) {
	entries := []shared.LogEntry{
		{Message: "error: disk full"},
		{Message: "all fine"},
		{EOF: true},
	}

	proc, err := NewLineFilterProcessor("|=", "error")
	require.NoError(t, err)
	res := runProcessor(t, proc, append([]shared.LogEntry{}, entries...))
	require.Len(t, res, 2)
	assert.Equal(t, "error: disk full", res[0].Message)
	assert.True(t, res[1].EOF)

	proc, err = NewLineFilterProcessor("!=", "error")
	require.NoError(t, err)
	res = runProcessor(t, proc, append([]shared.LogEntry{}, entries...))
	require.Len(t, res, 2)
	assert.Equal(t, "all fine", res[0].Message)

	proc, err = NewLineFilterProcessor("|~", "disk (full|empty)")
	require.NoError(t, err)
	res = runProcessor(t, proc, append([]shared.LogEntry{}, entries...))
	require.Len(t, res, 2)
	assert.Equal(t, "error: disk full", res[0].Message)

	_, err = NewLineFilterProcessor("|~", "([")
	require.Error(t, err)
}

func findLabelFilter(t *testing.T, query string) *logql_parser.LabelFilter {
	ast, err := logql_parser.Parse(query)
	require.NoError(t, err)
	f := logql_parser.FindFirst[logql_parser.LabelFilter](ast)
	require.NotNil(t, f)
	return f
}

func TestLabelFilterProcessor(t *testing.T) {
	proc, err := NewLabelFilterProcessor(
		findLabelFilter(t, `{a="b"} | level = "error" or status > 499`))
	require.NoError(t, err)

	res := runProcessor(t, proc, []shared.LogEntry{
		{Labels: map[string]string{"level": "error"}},
		{Labels: map[string]string{"level": "info", "status": "500"}},
		{Labels: map[string]string{"level": "info", "status": "200"}},
		{Labels: map[string]string{"level": "info", "status": "not a number"}},
		{EOF: true},
	})
	require.Len(t, res, 3)
	assert.Equal(t, "error", res[0].Labels["level"])
	assert.Equal(t, "500", res[1].Labels["status"])
	assert.True(t, res[2].EOF)
}

func TestLabelFilterProcessorNested(t *testing.T) {
	proc, err := NewLabelFilterProcessor(
		findLabelFilter(t, `{a="b"} | level =~ "err.*" and (status == 500 or status == 502)`))
	require.NoError(t, err)

	res := runProcessor(t, proc, []shared.LogEntry{
		{Labels: map[string]string{"level": "error", "status": "500"}},
		{Labels: map[string]string{"level": "error", "status": "503"}},
		{Labels: map[string]string{"level": "info", "status": "500"}},
	})
	require.Len(t, res, 1)
	assert.Equal(t, "500", res[0].Labels["status"])
}

func TestLineFormatProcessor(t *testing.T) {
	proc, err := NewLineFormatProcessor(`{{.level}}: {{._entry}}`)
	require.NoError(t, err)
	res := runProcessor(t, proc, []shared.LogEntry{
		{Labels: map[string]string{"level": "warn"}, Message: "disk almost full"},
	})
	require.Len(t, res, 1)
	assert.Equal(t, "warn: disk almost full", res[0].Message)
}

func TestLineFormatProcessorSprig(t *testing.T) {
	proc, err := NewLineFormatProcessor(`{{upper .level}}`)
	require.NoError(t, err)
	res := runProcessor(t, proc, []shared.LogEntry{
		{Labels: map[string]string{"level": "warn"}, Message: "x"},
	})
	require.Len(t, res, 1)
	assert.Equal(t, "WARN", res[0].Message)
}

func TestLineFormatProcessorInvalid(t *testing.T) {
	_, err := NewLineFormatProcessor(`{{.unterminated`)
	require.Error(t, err)
}
