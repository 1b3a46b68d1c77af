package logql_parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser(t *testing.T) {
	tests := []string{
		`{test_id="abc"}`,
		`{test_id="abc", freq="2"}`,
		`{test_id="abc", freq="2"} |~ "2[0-9]$"`,
		`{test_id="abc"} |= "error" != "timeout"`,
		`rate({test_id="abc", freq="2"} |~ "2[0-9]$" [1s])`,
		`sum by (test_id) (rate({test_id="abc"} |~ "2[0-9]$" [1s]))`,
		`{test_id="abc_json"}|json`,
		`{test_id="abc_json"}|json lbl_repl="new_lbl"`,
		`{test_id="abc_json"}|json|lbl_repl="REPL"`,
		`sum_over_time({test_id="abc_json"}|json|lbl_repl="REPL"|unwrap int_lbl [3s]) by (test_id, lbl_repl)`,
		`{test_id="abc"}| line_format "{{ divide freq 2 }}"`,
		`{test_id="abc"} | regexp "^(?<e>[^0-9]+)[0-9]+$"`,
		`rate({test_id="abc"} [1s]) == 2`,
		`sum(rate({test_id="abc"} [1s])) by (test_id) > 4`,
		`{test_id="abc"} | freq > 1 and (freq="4" or freq==2 or freq > 0.5)`,
		`topk(5, rate({test_id="abc"}[1m]))`,
		`bottomk(2, sum(rate({test_id="abc"}[1m])) by (freq))`,
		`quantile_over_time(0.95, {test_id="abc"} | unwrap lbl [5m]) by (test_id)`,
		`summary({test_id="abc"} |= "error")`,
		`_my_macro("abc")`,
	}
	for _, test := range tests {
		ast, err := Parse(test)
		require.NoError(t, err, test)

		// the printed form must be stable under reparsing
		printed := ast.String()
		ast2, err := Parse(printed)
		require.NoError(t, err, printed)
		assert.Equal(t, printed, ast2.String(), test)
	}
}

func TestParserAlternatives(t *testing.T) {
	ast, err := Parse(`{a="b"}|json|lbl="val"`)
	require.NoError(t, err)
	require.NotNil(t, ast.StrSelector)
	require.Len(t, ast.StrSelector.Pipelines, 2)
	assert.Equal(t, "json", ast.StrSelector.Pipelines[0].Parser.Fn)
	assert.NotNil(t, ast.StrSelector.Pipelines[1].LabelFilter)

	ast, err = Parse(`summary({a="b"})`)
	require.NoError(t, err)
	require.NotNil(t, ast.Summary)
	assert.Len(t, ast.Summary.StrSel.StrSelCmds, 1)

	ast, err = Parse(`_macro("p1","p2")`)
	require.NoError(t, err)
	require.NotNil(t, ast.Macros)
	assert.Equal(t, "_macro", ast.Macros.Name)
	assert.Len(t, ast.Macros.Params, 2)
}

func TestParseSeries(t *testing.T) {
	ast, err := ParseSeries(`http_requests_total{job="api"}`)
	require.NoError(t, err)
	require.NotNil(t, ast.StrSelector)
	require.Len(t, ast.StrSelector.StrSelCmds, 2)
	assert.Equal(t, "__name__", ast.StrSelector.StrSelCmds[0].Label.Name)
	assert.Equal(t, `"http_requests_total"`, ast.StrSelector.StrSelCmds[0].Val.Str)
	assert.Equal(t, "job", ast.StrSelector.StrSelCmds[1].Label.Name)

	ast, err = ParseSeries(`up`)
	require.NoError(t, err)
	require.NotNil(t, ast.StrSelector)
	require.Len(t, ast.StrSelector.StrSelCmds, 1)
	assert.Equal(t, "__name__", ast.StrSelector.StrSelCmds[0].Label.Name)

	ast, err = ParseSeries(`{job="api"}`)
	require.NoError(t, err)
	require.NotNil(t, ast.StrSelector)
	assert.Equal(t, "job", ast.StrSelector.StrSelCmds[0].Label.Name)
}

func TestQuotedStringUnquote(t *testing.T) {
	res, err := (&QuotedString{Str: `"val\" with escapes\n"`}).Unquote()
	require.NoError(t, err)
	assert.Equal(t, "val\" with escapes\n", res)

	res, err = (&QuotedString{Str: "`backticked \" \\` val`"}).Unquote()
	require.NoError(t, err)
	assert.Equal(t, `backticked " `+"`"+` val`, res)
}

func TestFindFirst(t *testing.T) {
	ast, err := Parse(`sum_over_time({a="b"}|json|unwrap lbl [3s]) by (a)`)
	require.NoError(t, err)

	parser := FindFirst[Parser](ast)
	require.NotNil(t, parser)
	assert.Equal(t, "json", parser.Fn)

	unwrap := FindFirst[Unwrap](ast)
	require.NotNil(t, unwrap)
	assert.Equal(t, "lbl", unwrap.Label.Name)

	assert.Nil(t, FindFirst[LineFormat](ast))
}

func TestFindAll(t *testing.T) {
	ast, err := Parse(`{a="b"} |= "e1" |= "e2" |~ "e3"`)
	require.NoError(t, err)
	filters := FindAll[LineFilter](ast)
	require.Len(t, filters, 3)
	assert.Equal(t, "|=", filters[0].Fn)
	assert.Equal(t, "|~", filters[2].Fn)
}
