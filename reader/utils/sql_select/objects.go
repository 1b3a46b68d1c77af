package sql

import (
	"fmt"
	"strings"
)

type RawObject struct {
	val string
}

func (r *RawObject) String(ctx *Ctx, options ...int) (string, error) {
	return r.val, nil
}

func NewRawObject(val string) *RawObject {
	return &RawObject{val: val}
}

func FmtRawObject(tmpl string, arg ...interface{}) *RawObject {
	return &RawObject{fmt.Sprintf(tmpl, arg...)}
}

type OrderBy struct {
	col       SQLObject
	direction int
}

func (o *OrderBy) String(ctx *Ctx, options ...int) (string, error) {
	order := "desc"
	if o.direction == ORDER_BY_DIRECTION_ASC {
		order = "asc"
	}
	str, err := o.col.String(ctx, options...)
	return fmt.Sprintf("%s %s", str, order), err
}

func NewOrderBy(col SQLObject, direction int) *OrderBy {
	return &OrderBy{col: col, direction: direction}
}

type With struct {
	query ISelect
	alias string
}

func (w *With) GetQuery() ISelect {
	return w.query
}

func (w *With) GetAlias() string {
	return w.alias
}

func (w *With) String(ctx *Ctx, options ...int) (string, error) {
	str, err := w.query.String(ctx, options...)
	return fmt.Sprintf("%s as (%s)", w.alias, str), err
}

func NewWith(query ISelect, alias string) *With {
	return &With{query: query, alias: alias}
}

type WithRef struct {
	ref *With
}

func (w *WithRef) String(ctx *Ctx, options ...int) (string, error) {
	if w.ref.alias == "" {
		return "", fmt.Errorf("alias is empty")
	}
	inline := false
	noAlias := false
	var _opts []int
	for _, opt := range options {
		inline = inline || opt == STRING_OPT_INLINE_WITH
		noAlias = noAlias || opt == WITH_REF_NO_ALIAS
		if opt != WITH_REF_NO_ALIAS {
			_opts = append(_opts, opt)
		}
	}
	res := w.ref.alias
	if inline {
		str, err := w.ref.GetQuery().String(ctx, _opts...)
		if err != nil {
			return "", err
		}
		res = "(" + str + ")"
		if !noAlias {
			res += " as " + w.ref.alias
		}
	}
	return res, nil
}

func NewWithRef(ref *With) *WithRef {
	return &WithRef{ref: ref}
}

type Join struct {
	tp    string
	table SQLObject
	on    SQLCondition
}

func (j *Join) String(ctx *Ctx, options ...int) (string, error) {
	tbl, err := j.table.String(ctx, options...)
	if err != nil {
		return "", err
	}
	on := ""
	if strings.ToLower(j.tp) != "array" {
		_on, err := j.on.String(ctx, options...)
		if err != nil {
			return "", err
		}
		on = "ON " + _on
	}
	return fmt.Sprintf("%s %s", tbl, on), nil
}

func (j *Join) GetTable() SQLObject {
	return j.table
}

func (j *Join) GetOn() SQLCondition {
	return j.on
}

func NewJoin(tp string, table SQLObject, on SQLCondition) *Join {
	return &Join{tp: tp, table: table, on: on}
}

// CtxParam renders the parameter bound under its name in Ctx.Params, the
// default when unbound, or fails when there is no default either.
type CtxParam struct {
	name string
	def  *string
}

func (c *CtxParam) String(ctx *Ctx, options ...int) (string, error) {
	if p, ok := ctx.Params[c.name]; ok {
		return p.String(ctx, options...)
	}
	if c.def == nil {
		return "", fmt.Errorf("undefined parameter %s", c.name)
	}
	return *c.def, nil
}

func NewCtxParam(name string, def *string) *CtxParam {
	return &CtxParam{name: name, def: def}
}

func NewCtxParamOrDef(name string, def string) *CtxParam {
	return &CtxParam{name: name, def: &def}
}

type StringVal struct {
	val string
}

var quoteReplacer = strings.NewReplacer(
	"\\", "\\\\",
	"\000", "\\0",
	"\n", "\\n",
	"\r", "\\r",
	"\b", "\\b",
	"\t", "\\t",
	"\x1a", "\\x1a",
	"'", "\\'",
)

func (s *StringVal) String(ctx *Ctx, options ...int) (string, error) {
	return "'" + quoteReplacer.Replace(s.val) + "'", nil
}

func NewStringVal(s string) SQLObject {
	return &StringVal{val: s}
}

type IntVal struct {
	val int64
}

func (i *IntVal) String(ctx *Ctx, options ...int) (string, error) {
	return fmt.Sprintf("%d", i.val), nil
}

func NewIntVal(val int64) *IntVal {
	return &IntVal{val: val}
}

type FloatVal struct {
	val float64
}

func (f *FloatVal) String(ctx *Ctx, options ...int) (string, error) {
	return fmt.Sprintf("%f", f.val), nil
}

func NewFloatVal(f float64) SQLObject {
	return &FloatVal{val: f}
}

type Col struct {
	expr  SQLObject
	alias string
}

func (c *Col) GetExpr() SQLObject {
	return c.expr
}

func (c *Col) GetAlias() string {
	return c.alias
}

func (c *Col) String(ctx *Ctx, options ...int) (string, error) {
	_opts := append(options, WITH_REF_NO_ALIAS)
	expr, err := c.expr.String(ctx, _opts...)
	if c.alias == "" {
		return expr, err
	}
	return fmt.Sprintf("%s as %s", expr, c.alias), err
}

func NewCol(expr SQLObject, alias string) SQLObject {
	return &Col{expr: expr, alias: alias}
}

func NewSimpleCol(name string, alias string) SQLObject {
	return &Col{expr: NewRawObject(name), alias: alias}
}

type In struct {
	leftSide  SQLObject
	rightSide []SQLObject
}

func (in *In) String(ctx *Ctx, options ...int) (string, error) {
	parts := make([]string, len(in.rightSide))
	for i, e := range in.rightSide {
		str, err := e.String(ctx, options...)
		if err != nil {
			return "", err
		}
		parts[i] = str
	}
	str, err := in.leftSide.String(ctx, options...)
	return fmt.Sprintf("%s IN (%s)", str, strings.Join(parts, ",")), err
}

func (in *In) GetFunction() string {
	return "IN"
}

func (in *In) GetEntity() []SQLObject {
	ent := make([]SQLObject, 0, len(in.rightSide)+1)
	ent = append(ent, in.leftSide)
	return append(ent, in.rightSide...)
}

func NewIn(left SQLObject, right ...SQLObject) *In {
	return &In{leftSide: left, rightSide: right}
}

type CustomCol struct {
	stringify func(ctx *Ctx, options ...int) (string, error)
}

func (c *CustomCol) String(ctx *Ctx, options ...int) (string, error) {
	return c.stringify(ctx, options...)
}

func NewCustomCol(fn func(ctx *Ctx, options ...int) (string, error)) SQLObject {
	return &CustomCol{stringify: fn}
}
