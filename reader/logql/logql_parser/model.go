package logql_parser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LogQLScript is the root node. Exactly one alternative is set after parsing.
type LogQLScript struct {
	StrSelector      *StrSelector      `@@`
	Summary          *Summary          `| @@`
	LRAOrUnwrap      *LRAOrUnwrap      `| @@`
	AggOperator      *AggOperator      `| @@`
	Macros           *MacrosOp         `| @@`
	TopK             *TopK             `| @@`
	QuantileOverTime *QuantileOverTime `| @@`
}

func (l LogQLScript) String() string {
	switch {
	case l.StrSelector != nil:
		return l.StrSelector.String()
	case l.Summary != nil:
		return l.Summary.String()
	case l.LRAOrUnwrap != nil:
		return l.LRAOrUnwrap.String()
	case l.AggOperator != nil:
		return l.AggOperator.String()
	case l.Macros != nil:
		return l.Macros.String()
	case l.TopK != nil:
		return l.TopK.String()
	case l.QuantileOverTime != nil:
		return l.QuantileOverTime.String()
	}
	return ""
}

type StrSelector struct {
	StrSelCmds []StrSelCmd           `"{" @@ ("," @@ )* "}" `
	Pipelines  []StrSelectorPipeline `@@*`
}

func (l StrSelector) String() string {
	sel := make([]string, len(l.StrSelCmds))
	for i, c := range l.StrSelCmds {
		sel[i] = c.String()
	}
	ppl := make([]string, len(l.Pipelines))
	for i, p := range l.Pipelines {
		ppl[i] = p.String()
	}
	return fmt.Sprintf("{%s}%s", strings.Join(sel, ","), strings.Join(ppl, " "))
}

type StrSelCmd struct {
	Label LabelName    `@@`
	Op    string       `@("="|"!="|"=~"|"!~")`
	Val   QuotedString `@@`
}

func (c StrSelCmd) String() string {
	return c.Label.String() + c.Op + c.Val.String()
}

type LabelName struct {
	Name string `@(Macros_function|Label_name)`
}

func (l LabelName) String() string {
	return l.Name
}

type QuotedString struct {
	Str string `@(Quoted_string|Ticked_string) `
}

func (q QuotedString) String() string {
	return q.Str
}

// Unquote resolves both double-quoted and backtick-quoted forms to the raw
// string value.
func (q *QuotedString) Unquote() (string, error) {
	str := q.Str
	if str[0] == '`' {
		str = str[1 : len(str)-1]
		str = strings.ReplaceAll(str, "\\`", "`")
		str = strings.ReplaceAll(str, `\`, `\\`)
		str = strings.ReplaceAll(str, `"`, `\"`)
		str = `"` + str + `"`
	}
	var res string
	err := json.Unmarshal([]byte(str), &res)
	return res, err
}

type StrSelectorPipeline struct {
	LineFilter  *LineFilter  `@@ `
	LabelFilter *LabelFilter `| "|" @@ `
	Parser      *Parser      `| "|" @@ `
	LineFormat  *LineFormat  `| "|" @@ `
	LabelFormat *LabelFormat `| "|" @@ `
	Unwrap      *Unwrap      `| "|" @@ `
}

func (s *StrSelectorPipeline) String() string {
	switch {
	case s.LineFilter != nil:
		return s.LineFilter.String()
	case s.LabelFilter != nil:
		return "| " + s.LabelFilter.String()
	case s.Parser != nil:
		return s.Parser.String()
	case s.LineFormat != nil:
		return s.LineFormat.String()
	case s.LabelFormat != nil:
		return s.LabelFormat.String()
	}
	return s.Unwrap.String()
}

type LineFilter struct {
	Fn  string       `@("|="|"!="|"|~"|"!~")`
	Val QuotedString `@@`
}

func (l *LineFilter) String() string {
	return fmt.Sprintf(" %s %s", l.Fn, l.Val.String())
}

// LabelFilter is a right-recursive and/or chain of filter heads.
type LabelFilter struct {
	Head Head         `@@`
	Op   string       `(@("and"|"or"))?`
	Tail *LabelFilter `@@?`
}

func (l *LabelFilter) String() string {
	res := l.Head.String()
	if l.Op == "" {
		return res
	}
	return res + " " + l.Op + " " + l.Tail.String()
}

type Head struct {
	ComplexHead *LabelFilter       `"(" @@ ")"`
	SimpleHead  *SimpleLabelFilter `|@@`
}

func (h *Head) String() string {
	if h.ComplexHead != nil {
		return "(" + h.ComplexHead.String() + ")"
	}
	return h.SimpleHead.String()
}

type SimpleLabelFilter struct {
	Label  LabelName     `@@`
	Fn     string        `@("="|"!="|"!~"|"=="|">="|">"|"<="|"<"|"=~")`
	StrVal *QuotedString `(@@`
	NumVal string        `| @(Integer "."? Integer*))`
}

func (s *SimpleLabelFilter) String() string {
	res := fmt.Sprintf("%s %s ", s.Label, s.Fn)
	if s.StrVal != nil {
		return res + s.StrVal.String()
	}
	return res + s.NumVal
}

type Parser struct {
	Fn           string        `@("json"|"logfmt"|"regexp")`
	ParserParams []ParserParam `@@? ("," @@)*`
}

func (p *Parser) String() string {
	if p.ParserParams == nil {
		return fmt.Sprintf("| %s", p.Fn)
	}
	params := make([]string, len(p.ParserParams))
	for i, param := range p.ParserParams {
		params[i] = param.String()
	}
	return fmt.Sprintf("| %s %s", p.Fn, strings.Join(params, ", "))
}

type ParserParam struct {
	Label *LabelName   `(@@ "=" )?`
	Val   QuotedString `@@`
}

func (p *ParserParam) String() string {
	if p.Label == nil {
		return p.Val.String()
	}
	return fmt.Sprintf("%s = %s", p.Label, p.Val.String())
}

type LineFormat struct {
	Val QuotedString `"line_format" @@ `
}

func (f *LineFormat) String() string {
	return fmt.Sprintf("| line_format %s", f.Val.String())
}

type LabelFormat struct {
	LabelFormatOps []LabelFormatOp `"label_format" @@ ("," @@ )*`
}

func (l *LabelFormat) String() string {
	ops := make([]string, len(l.LabelFormatOps))
	for i, op := range l.LabelFormatOps {
		ops[i] = op.String()
	}
	return fmt.Sprintf("| label_format %s", strings.Join(ops, ", "))
}

type LabelFormatOp struct {
	Label    LabelName     `@@ "=" `
	LabelVal *LabelName    `(@@`
	ConstVal *QuotedString `|@@)`
}

func (l *LabelFormatOp) String() string {
	res := l.Label.String() + " = "
	if l.LabelVal != nil {
		return res + l.LabelVal.String()
	}
	return res + l.ConstVal.String()
}

type Unwrap struct {
	Fn    string    `@("unwrap"|"unwrap_value")`
	Label LabelName ` @@?`
}

func (u *Unwrap) String() string {
	return fmt.Sprintf("| %s %s", u.Fn, u.Label.String())
}

type LRAOrUnwrap struct {
	Fn string `@("rate"|"count_over_time"|"bytes_rate"|"bytes_over_time"|"absent_over_time"|
"sum_over_time"|"avg_over_time"|"max_over_time"|"min_over_time"|"first_over_time"|"last_over_time"|
"stdvar_over_time"|"stddev_over_time")`
	ByOrWithoutPrefix *ByOrWithout `( @@)?`
	StrSel            StrSelector  `"(" @@ `
	Time              string       `"[" @Integer `
	TimeUnit          string       `@("ns"|"us"|"ms"|"s"|"m"|"h") "]" ")" `
	ByOrWithoutSuffix *ByOrWithout `@@?`
	Comparison        *Comparison  `@@?`
}

func (l LRAOrUnwrap) String() string {
	res := l.Fn
	if l.ByOrWithoutPrefix != nil {
		res += " " + l.ByOrWithoutPrefix.String()
	}
	res += " (" + l.StrSel.String() + "[" + l.Time + l.TimeUnit + "])"
	if l.ByOrWithoutPrefix == nil && l.ByOrWithoutSuffix != nil {
		res += l.ByOrWithoutSuffix.String()
	}
	if l.Comparison != nil {
		res += l.Comparison.String()
	}
	return res
}

type Comparison struct {
	Fn  string `@("=="|"!="|">"|">="|"<"|"<=") `
	Val string `@(Integer "."? Integer*)`
}

func (l Comparison) String() string {
	return l.Fn + " " + l.Val
}

type ByOrWithout struct {
	Fn     string      `@("by"|"without") `
	Labels []LabelName `"(" @@ ("," @@)* ")" `
}

func (l ByOrWithout) String() string {
	return fmt.Sprintf("%s (%s)", l.Fn, strings.Join(l.LabelNames(), ","))
}

func (l ByOrWithout) LabelNames() []string {
	labels := make([]string, len(l.Labels))
	for i, label := range l.Labels {
		labels[i] = label.String()
	}
	return labels
}

type AggOperator struct {
	Fn                string       `@("sum"|"min"|"max"|"avg"|"stddev"|"stdvar"|"count") `
	ByOrWithoutPrefix *ByOrWithout `@@?`
	LRAOrUnwrap       LRAOrUnwrap  `"(" @@ ")" `
	ByOrWithoutSuffix *ByOrWithout `@@?`
	Comparison        *Comparison  `@@?`
}

func (l AggOperator) String() string {
	res := l.Fn
	if l.ByOrWithoutPrefix != nil {
		res += " " + l.ByOrWithoutPrefix.String()
	}
	res += " (" + l.LRAOrUnwrap.String() + ")"
	if l.ByOrWithoutPrefix == nil && l.ByOrWithoutSuffix != nil {
		res += l.ByOrWithoutSuffix.String()
	}
	if l.Comparison != nil {
		res += l.Comparison.String()
	}
	return res
}

// Summary clusters the selected log lines by token signature.
type Summary struct {
	Fn     string      `@"summary"`
	StrSel StrSelector `"(" @@ ")"`
}

func (s Summary) String() string {
	return fmt.Sprintf("summary(%s)", s.StrSel.String())
}

type MacrosOp struct {
	Name   string         `@Macros_function`
	Params []QuotedString `"(" @@? ("," @@)* ")"`
}

func (l MacrosOp) String() string {
	params := make([]string, len(l.Params))
	for i, p := range l.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("%s(%s)", l.Name, strings.Join(params, ","))
}

type TopK struct {
	Fn               string            `@("topk"|"bottomk")`
	Param            string            `"(" @(Integer+ "."? Integer*) "," `
	LRAOrUnwrap      *LRAOrUnwrap      `(@@`
	AggOperator      *AggOperator      `| @@`
	QuantileOverTime *QuantileOverTime `| @@)")"`
	Comparison       *Comparison       `@@?`
}

func (l TopK) String() string {
	fn := ""
	cmp := ""
	switch {
	case l.LRAOrUnwrap != nil:
		fn = l.LRAOrUnwrap.String()
	case l.AggOperator != nil:
		fn = l.AggOperator.String()
	case l.QuantileOverTime != nil:
		fn = l.QuantileOverTime.String()
	}
	if l.Comparison != nil {
		cmp = l.Comparison.String()
	}
	return fmt.Sprintf("%s(%s, %s)%s", l.Fn, l.Param, fn, cmp)
}

type QuantileOverTime struct {
	Fn                string       `@"quantile_over_time" `
	ByOrWithoutPrefix *ByOrWithout `@@?`
	Param             string       `"(" @(Integer+ "."? Integer*) "," `
	StrSel            StrSelector  `@@`
	Time              string       `"[" @Integer `
	TimeUnit          string       `@("ns"|"us"|"ms"|"s"|"m"|"h") "]" ")" `
	ByOrWithoutSuffix *ByOrWithout `@@?`
	Comparison        *Comparison  `@@?`
}

func (l QuantileOverTime) String() string {
	res := l.Fn
	if l.ByOrWithoutPrefix != nil {
		res += " " + l.ByOrWithoutPrefix.String()
	}
	res += " (" + l.Param + ", " + l.StrSel.String() + "[" + l.Time + l.TimeUnit + "])"
	if l.ByOrWithoutPrefix == nil && l.ByOrWithoutSuffix != nil {
		res += l.ByOrWithoutSuffix.String()
	}
	if l.Comparison != nil {
		res += l.Comparison.String()
	}
	return res
}
