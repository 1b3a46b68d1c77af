package clickhouse_planner

import (
	"fmt"
	"regexp/syntax"
	"strings"

	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// LineFilterPlanner applies `|=`, `!=`, `|~` and `!~` stages to the line
// column. Regexes that are plain literals are lowered to LIKE so the engine
// can use token indexes.
type LineFilterPlanner struct {
	Op   string
	Val  string
	Main shared.SQLRequestPlanner
}

func (l *LineFilterPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := l.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	var clause sql.SQLCondition
	switch l.Op {
	case "|=":
		clause = sql.BinaryLogicalOp("like", sql.NewRawObject("string"),
			sql.NewStringVal(likePattern(l.Val)))
	case "!=":
		clause = sql.BinaryLogicalOp("notLike", sql.NewRawObject("string"),
			sql.NewStringVal(likePattern(l.Val)))
	case "|~":
		clause, err = l.regexClause(false)
	case "!~":
		clause, err = l.regexClause(true)
	default:
		return nil, fmt.Errorf("unknown line filter %s", l.Op)
	}
	if err != nil {
		return nil, err
	}

	return main.AndWhere(clause), nil
}

func (l *LineFilterPlanner) regexClause(negate bool) (sql.SQLCondition, error) {
	if literal, insensitive, ok := regexAsLiteral(l.Val); ok {
		op := "like"
		switch {
		case insensitive && negate:
			op = "notILike"
		case insensitive:
			op = "ilike"
		case negate:
			op = "notLike"
		}
		return sql.BinaryLogicalOp(op, sql.NewRawObject("string"),
			sql.NewStringVal(likePattern(literal))), nil
	}

	match := &sqlMatch{col: sql.NewRawObject("string"), pattern: l.Val}
	if negate {
		return sql.Eq(match, sql.NewIntVal(0)), nil
	}
	return sql.Eq(match, sql.NewIntVal(1)), nil
}

// regexAsLiteral reports whether the pattern matches exactly one literal
// substring, so it can run as LIKE '%literal%' instead of a regex match.
func regexAsLiteral(pattern string) (string, bool, bool) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return "", false, false
	}
	re = re.Simplify()
	if re.Op != syntax.OpLiteral {
		return "", false, false
	}
	return string(re.Rune), re.Flags&syntax.FoldCase != 0, true
}

func likePattern(val string) string {
	escaped := strings.NewReplacer("%", "\\%", "_", "\\_").Replace(val)
	return "%" + escaped + "%"
}
