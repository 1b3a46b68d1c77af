package sql

const (
	STRING_OPT_SKIP_WITH    = 1
	STRING_OPT_INLINE_WITH  = 2
	ORDER_BY_DIRECTION_ASC  = 3
	ORDER_BY_DIRECTION_DESC = 4
	WITH_REF_NO_ALIAS       = 5
)

// SQLObject is anything renderable to a SQL fragment.
type SQLObject interface {
	String(ctx *Ctx, options ...int) (string, error)
}

// SQLCondition is a renderable boolean expression.
type SQLCondition interface {
	GetFunction() string
	GetEntity() []SQLObject
	String(ctx *Ctx, options ...int) (string, error)
}

// Ctx carries render state. Params holds the late-bound named parameters:
// sub-plans reference them via CtxParam and the transpiler fills the map once,
// right before the final String call. Binding a name nothing references is a
// no-op; rendering a referenced unbound name without a default fails.
type Ctx struct {
	id     int
	Params map[string]SQLObject
	Result map[string]SQLObject
}

func (c *Ctx) Id() int {
	c.id++
	return c.id
}

func NewCtx() *Ctx {
	return &Ctx{
		Params: map[string]SQLObject{},
		Result: map[string]SQLObject{},
	}
}

type ISelect interface {
	Distinct(distinct bool) ISelect
	GetDistinct() bool
	Select(cols ...SQLObject) ISelect
	GetSelect() []SQLObject
	From(table SQLObject) ISelect
	GetFrom() SQLObject
	AndWhere(clauses ...SQLCondition) ISelect
	OrWhere(clauses ...SQLCondition) ISelect
	GetWhere() SQLCondition
	AndPreWhere(clauses ...SQLCondition) ISelect
	OrPreWhere(clauses ...SQLCondition) ISelect
	GetPreWhere() SQLCondition
	AndHaving(clauses ...SQLCondition) ISelect
	OrHaving(clauses ...SQLCondition) ISelect
	GetHaving() SQLCondition
	SetHaving(having SQLCondition) ISelect
	GroupBy(fields ...SQLObject) ISelect
	GetGroupBy() []SQLObject
	OrderBy(fields ...SQLObject) ISelect
	GetOrderBy() []SQLObject
	Limit(limit SQLObject) ISelect
	GetLimit() SQLObject
	Offset(offset SQLObject) ISelect
	GetOffset() SQLObject
	With(withs ...*With) ISelect
	AddWith(withs ...*With) ISelect
	DropWith(alias ...string) ISelect
	GetWith() []*With
	Join(joins ...*Join) ISelect
	AddJoin(joins ...*Join) ISelect
	GetJoin() []*Join
	String(ctx *Ctx, options ...int) (string, error)
	SetSetting(name string, value string) ISelect
	GetSettings() map[string]string
}

type Aliased interface {
	GetExpr() SQLObject
	GetAlias() string
	String(ctx *Ctx, options ...int) (string, error)
}
