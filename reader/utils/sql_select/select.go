package sql

import (
	"fmt"
	"strings"
)

type Select struct {
	distinct bool
	columns  []SQLObject
	from     SQLObject
	where    SQLCondition
	preWhere SQLCondition
	having   SQLCondition
	groupBy  []SQLObject
	orderBy  []SQLObject
	limit    SQLObject
	offset   SQLObject
	withs    []*With
	joins    []*Join
	settings map[string]string
}

func NewSelect() ISelect {
	return &Select{}
}

// mergeCond chains a new clause set onto an existing condition, flattening
// into an already matching LogicalOp instead of nesting.
func mergeCond(cur SQLCondition, fn string, clauses []SQLCondition) SQLCondition {
	if cur == nil {
		return NewGenericLogicalOp(fn, clauses...)
	}
	if op, ok := cur.(*LogicalOp); ok && op.GetFunction() == fn {
		op.AppendEntity(clauses...)
		return op
	}
	merged := append([]SQLCondition{cur}, clauses...)
	return NewGenericLogicalOp(fn, merged...)
}

func (s *Select) Distinct(distinct bool) ISelect {
	s.distinct = distinct
	return s
}

func (s *Select) GetDistinct() bool {
	return s.distinct
}

func (s *Select) Select(cols ...SQLObject) ISelect {
	s.columns = cols
	return s
}

func (s *Select) GetSelect() []SQLObject {
	return s.columns
}

func (s *Select) From(table SQLObject) ISelect {
	s.from = table
	return s
}

func (s *Select) GetFrom() SQLObject {
	return s.from
}

func (s *Select) AndWhere(clauses ...SQLCondition) ISelect {
	s.where = mergeCond(s.where, "and", clauses)
	return s
}

func (s *Select) OrWhere(clauses ...SQLCondition) ISelect {
	s.where = mergeCond(s.where, "or", clauses)
	return s
}

func (s *Select) GetWhere() SQLCondition {
	return s.where
}

func (s *Select) AndPreWhere(clauses ...SQLCondition) ISelect {
	s.preWhere = mergeCond(s.preWhere, "and", clauses)
	return s
}

func (s *Select) OrPreWhere(clauses ...SQLCondition) ISelect {
	s.preWhere = mergeCond(s.preWhere, "or", clauses)
	return s
}

func (s *Select) GetPreWhere() SQLCondition {
	return s.preWhere
}

func (s *Select) AndHaving(clauses ...SQLCondition) ISelect {
	s.having = mergeCond(s.having, "and", clauses)
	return s
}

func (s *Select) OrHaving(clauses ...SQLCondition) ISelect {
	s.having = mergeCond(s.having, "or", clauses)
	return s
}

func (s *Select) GetHaving() SQLCondition {
	return s.having
}

func (s *Select) SetHaving(having SQLCondition) ISelect {
	s.having = having
	return s
}

func (s *Select) GroupBy(fields ...SQLObject) ISelect {
	s.groupBy = fields
	return s
}

func (s *Select) GetGroupBy() []SQLObject {
	return s.groupBy
}

func (s *Select) OrderBy(fields ...SQLObject) ISelect {
	s.orderBy = fields
	return s
}

func (s *Select) GetOrderBy() []SQLObject {
	return s.orderBy
}

func (s *Select) Limit(limit SQLObject) ISelect {
	s.limit = limit
	return s
}

func (s *Select) GetLimit() SQLObject {
	return s.limit
}

func (s *Select) Offset(offset SQLObject) ISelect {
	s.offset = offset
	return s
}

func (s *Select) GetOffset() SQLObject {
	return s.offset
}

func (s *Select) With(withs ...*With) ISelect {
	s.withs = []*With{}
	s.AddWith(withs...)
	return s
}

func (s *Select) AddWith(withs ...*With) ISelect {
	if s.withs == nil {
		return s.With(withs...)
	}
	for _, w := range withs {
		exists := false
		for _, with := range s.withs {
			if with.alias == w.alias {
				exists = true
			}
		}
		if exists {
			continue
		}
		// hoist nested withs so they render once at the top level
		s.AddWith(w.GetQuery().GetWith()...)
		s.withs = append(s.withs, w)
	}
	return s
}

func (s *Select) DropWith(alias ...string) ISelect {
	aliases := map[string]bool{}
	for _, a := range alias {
		aliases[a] = true
	}
	withs := make([]*With, 0, len(s.withs))
	for _, w := range s.withs {
		if aliases[w.alias] {
			continue
		}
		withs = append(withs, w)
	}
	s.withs = withs
	return s
}

func (s *Select) GetWith() []*With {
	return append([]*With{}, s.withs...)
}

func (s *Select) Join(joins ...*Join) ISelect {
	s.joins = joins
	return s
}

func (s *Select) AddJoin(joins ...*Join) ISelect {
	s.joins = append(s.joins, joins...)
	return s
}

func (s *Select) GetJoin() []*Join {
	return s.joins
}

func (s *Select) SetSetting(name string, value string) ISelect {
	if s.settings == nil {
		s.settings = make(map[string]string)
	}
	s.settings[name] = value
	return s
}

func (s *Select) GetSettings() map[string]string {
	return s.settings
}

func (s *Select) writeObjects(res *strings.Builder, ctx *Ctx, objs []SQLObject,
	options ...int) error {
	for i, o := range objs {
		if i != 0 {
			res.WriteString(", ")
		}
		str, err := o.String(ctx, options...)
		if err != nil {
			return err
		}
		res.WriteString(str)
	}
	return nil
}

func (s *Select) String(ctx *Ctx, options ...int) (string, error) {
	res := strings.Builder{}
	skipWith := false
	for _, i := range options {
		skipWith = skipWith || i == STRING_OPT_SKIP_WITH || i == STRING_OPT_INLINE_WITH
	}
	if !skipWith && len(s.withs) > 0 {
		res.WriteString("WITH ")
		_options := append(options, STRING_OPT_SKIP_WITH)
		for i, w := range s.withs {
			if i != 0 {
				res.WriteRune(',')
			}
			str, err := w.String(ctx, _options...)
			if err != nil {
				return "", err
			}
			res.WriteString(str)
		}
	}
	res.WriteString(" SELECT ")
	if s.distinct {
		res.WriteString(" DISTINCT ")
	}
	if len(s.columns) == 0 {
		return "", fmt.Errorf("no 'SELECT' part")
	}
	if err := s.writeObjects(&res, ctx, s.columns, options...); err != nil {
		return "", err
	}
	if s.from != nil {
		res.WriteString(" FROM ")
		str, err := s.from.String(ctx, options...)
		if err != nil {
			return "", err
		}
		res.WriteString(str)
		for _, j := range s.joins {
			res.WriteString(fmt.Sprintf(" %s JOIN ", j.tp))
			str, err = j.String(ctx, options...)
			if err != nil {
				return "", err
			}
			res.WriteString(str)
		}
	}
	for _, part := range []struct {
		kw   string
		cond SQLCondition
	}{{" PREWHERE ", s.preWhere}, {" WHERE ", s.where}} {
		if part.cond == nil {
			continue
		}
		str, err := part.cond.String(ctx, options...)
		if err != nil {
			return "", err
		}
		res.WriteString(part.kw)
		res.WriteString(str)
	}
	if len(s.groupBy) > 0 {
		res.WriteString(" GROUP BY ")
		if err := s.writeObjects(&res, ctx, s.groupBy, options...); err != nil {
			return "", err
		}
	}
	if s.having != nil {
		str, err := s.having.String(ctx, options...)
		if err != nil {
			return "", err
		}
		res.WriteString(" HAVING ")
		res.WriteString(str)
	}
	if len(s.orderBy) > 0 {
		res.WriteString(" ORDER BY ")
		if err := s.writeObjects(&res, ctx, s.orderBy, options...); err != nil {
			return "", err
		}
	}
	for _, part := range []struct {
		kw  string
		obj SQLObject
	}{{" LIMIT ", s.limit}, {" OFFSET ", s.offset}} {
		if part.obj == nil {
			continue
		}
		str, err := part.obj.String(ctx, options...)
		if err != nil {
			return "", err
		}
		if str != "" {
			res.WriteString(part.kw)
			res.WriteString(str)
		}
	}
	if s.settings != nil {
		res.WriteString(" SETTINGS ")
		for k, v := range s.settings {
			res.WriteString(k)
			res.WriteString("=")
			res.WriteString(v)
			res.WriteString(" ")
		}
	}
	return res.String(), nil
}
