package clickhouse_planner

import (
	"fmt"

	"github.com/metrico/loghouse/reader/logql/logql_parser"
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// StreamSelectPlanner resolves the stream selector to a fingerprint set
// through the inverted key/value index. Every matcher must hit, which the
// bitmask HAVING enforces.
type StreamSelectPlanner struct {
	LabelNames []string
	Ops        []string
	Values     []string
}

func NewStreamSelectPlanner(sel *logql_parser.StrSelector) (*StreamSelectPlanner, error) {
	p := &StreamSelectPlanner{
		LabelNames: make([]string, len(sel.StrSelCmds)),
		Ops:        make([]string, len(sel.StrSelCmds)),
		Values:     make([]string, len(sel.StrSelCmds)),
	}
	for i, cmd := range sel.StrSelCmds {
		p.LabelNames[i] = cmd.Label.Name
		p.Ops[i] = cmd.Op
		val, err := cmd.Val.Unquote()
		if err != nil {
			return nil, err
		}
		p.Values[i] = val
	}
	return p, nil
}

func (s *StreamSelectPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	clauses := make([]sql.SQLCondition, len(s.LabelNames))
	for i, name := range s.LabelNames {
		var valClause sql.SQLCondition
		switch s.Ops[i] {
		case "=":
			valClause = sql.Eq(sql.NewRawObject("val"), sql.NewStringVal(s.Values[i]))
		case "!=":
			valClause = sql.Neq(sql.NewRawObject("val"), sql.NewStringVal(s.Values[i]))
		case "=~":
			valClause = sql.Eq(&sqlMatch{
				col:     sql.NewRawObject("val"),
				pattern: s.Values[i],
			}, sql.NewIntVal(1))
		case "!~":
			valClause = sql.Eq(&sqlMatch{
				col:     sql.NewRawObject("val"),
				pattern: s.Values[i],
			}, sql.NewIntVal(0))
		default:
			return nil, fmt.Errorf("unknown label matcher %s", s.Ops[i])
		}
		clauses[i] = sql.And(
			sql.Eq(sql.NewRawObject("key"), sql.NewStringVal(name)),
			valClause)
	}

	bitSet := &SqlBitSetAnd{clauses}

	return sql.NewSelect().Select(sql.NewRawObject("fingerprint")).
		From(sql.NewRawObject(ctx.TimeSeriesGinTableName)).
		AndWhere(
			sql.Or(clauses...),
			sql.Ge(sql.NewRawObject("date"), sql.NewStringVal(FormatFromDate(ctx.From))),
			GetTypes(ctx)).
		GroupBy(sql.NewRawObject("fingerprint")).
		AndHaving(sql.Eq(bitSet, sql.NewIntVal((int64(1)<<uint(len(clauses)))-1))), nil
}

// SqlBitSetAnd renders groupBitOr over one bit per clause so HAVING can check
// that all matchers were satisfied by at least one row each.
type SqlBitSetAnd struct {
	clauses []sql.SQLCondition
}

func (s *SqlBitSetAnd) String(ctx *sql.Ctx, options ...int) (string, error) {
	clauses := make([]string, len(s.clauses))
	for i, c := range s.clauses {
		str, err := c.String(ctx, options...)
		if err != nil {
			return "", err
		}
		clauses[i] = fmt.Sprintf("bitShiftLeft(toUInt64(%s), %d)", str, i)
	}
	res := clauses[0]
	for _, c := range clauses[1:] {
		res = res + "+" + c
	}
	return fmt.Sprintf("groupBitOr(%s)", res), nil
}
