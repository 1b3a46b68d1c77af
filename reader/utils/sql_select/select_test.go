package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectRender(t *testing.T) {
	res, err := NewSelect().
		Select(NewSimpleCol("a", "a")).
		From(NewRawObject("tbl")).
		String(NewCtx())
	require.NoError(t, err)
	assert.Equal(t, " SELECT a as a FROM tbl", res)
}

func TestSelectRenderFull(t *testing.T) {
	res, err := NewSelect().
		Select(NewSimpleCol("a", "a"), NewSimpleCol("count(1)", "cnt")).
		From(NewRawObject("tbl")).
		AndWhere(Gt(NewRawObject("a"), NewIntVal(5))).
		GroupBy(NewRawObject("a")).
		OrderBy(NewOrderBy(NewRawObject("a"), ORDER_BY_DIRECTION_ASC)).
		Limit(NewIntVal(10)).
		String(NewCtx())
	require.NoError(t, err)
	assert.Contains(t, res, "SELECT a as a, count(1) as cnt")
	assert.Contains(t, res, "WHERE ((a) > (5))")
	assert.Contains(t, res, "GROUP BY a")
	assert.Contains(t, res, "ORDER BY a asc")
	assert.Contains(t, res, "LIMIT 10")
}

func TestSelectNoColumns(t *testing.T) {
	_, err := NewSelect().From(NewRawObject("tbl")).String(NewCtx())
	require.Error(t, err)
}

func TestAndWhereFlattening(t *testing.T) {
	sel := NewSelect().
		Select(NewRawObject("1")).
		AndWhere(Eq(NewRawObject("a"), NewIntVal(1))).
		AndWhere(Eq(NewRawObject("b"), NewIntVal(2)),
			Eq(NewRawObject("c"), NewIntVal(3)))

	op, ok := sel.GetWhere().(*LogicalOp)
	require.True(t, ok)
	assert.Equal(t, "and", op.GetFunction())
	assert.Len(t, op.GetEntity(), 3)

	res, err := sel.String(NewCtx())
	require.NoError(t, err)
	assert.Contains(t, res, "((a) == (1)) and ((b) == (2)) and ((c) == (3))")
}

func TestCtxParam(t *testing.T) {
	ctx := NewCtx()
	ctx.Params["bound"] = NewIntVal(5)

	res, err := NewCtxParamOrDef("bound", "1").String(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5", res)

	res, err = NewCtxParamOrDef("unbound", "def").String(ctx)
	require.NoError(t, err)
	assert.Equal(t, "def", res)

	_, err = NewCtxParam("unbound", nil).String(ctx)
	require.Error(t, err)
}

func TestEmptyLimitParam(t *testing.T) {
	sel := NewSelect().
		Select(NewRawObject("1")).
		From(NewRawObject("tbl")).
		Limit(NewCtxParamOrDef("limit", ""))

	res, err := sel.String(NewCtx())
	require.NoError(t, err)
	assert.NotContains(t, res, "LIMIT")

	ctx := NewCtx()
	ctx.Params["limit"] = NewIntVal(100)
	res, err = sel.String(ctx)
	require.NoError(t, err)
	assert.Contains(t, res, "LIMIT 100")
}

func TestWithHoisting(t *testing.T) {
	inner := NewSelect().Select(NewRawObject("1"))
	w1 := NewWith(inner, "a")

	mid := NewSelect().With(w1).Select(NewRawObject("*")).From(NewWithRef(w1))
	w2 := NewWith(mid, "b")

	outer := NewSelect().With(w2).Select(NewRawObject("*")).From(NewWithRef(w2))

	res, err := outer.String(NewCtx())
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(res, "a as ("))
	assert.Equal(t, 1, strings.Count(res, "b as ("))
	assert.Less(t, strings.Index(res, "a as ("), strings.Index(res, "b as ("))
}

func TestAddWithDeduplicates(t *testing.T) {
	w := NewWith(NewSelect().Select(NewRawObject("1")), "a")
	sel := NewSelect().With(w).AddWith(w).Select(NewRawObject("*")).From(NewWithRef(w))
	assert.Len(t, sel.GetWith(), 1)
}

func TestWithRefInline(t *testing.T) {
	w := NewWith(NewSelect().Select(NewRawObject("1")), "a")
	ref := NewWithRef(w)

	res, err := ref.String(NewCtx())
	require.NoError(t, err)
	assert.Equal(t, "a", res)

	res, err = ref.String(NewCtx(), STRING_OPT_INLINE_WITH)
	require.NoError(t, err)
	assert.Equal(t, "( SELECT 1) as a", res)
}

func TestStringValQuoting(t *testing.T) {
	res, err := NewStringVal("a'b\\c").String(NewCtx())
	require.NoError(t, err)
	assert.Equal(t, `'a\'b\\c'`, res)
}
