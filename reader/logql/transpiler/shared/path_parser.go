package shared

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

type jsonPath struct {
	Head jsonPathPart   `@@`
	Tail []jsonPathPart `("." @@ | @@)*`
}

type jsonPathPart struct {
	Ident string `@Ident`
	Idx   []sub  `| @@+`
}

type sub struct {
	StrIdx string `"[" (@QStr`
	IntIdx string `| @Int) "]"`
}

var jsonPathLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: `Ident`, Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: `QStr`, Pattern: `"([^"\\]|\\.)*"`},
	{Name: `Int`, Pattern: `[0-9]+`},
	{Name: `Punct`, Pattern: `[\[\].]`},
})

var jsonPathParser = participle.MustBuild[jsonPath](
	participle.Lexer(jsonPathLexer),
)

// JsonPathParamToArray parses a json parser path expression like
// `a.b["c"][0]` into the list of keys and indexes for JSONExtract calls.
func JsonPathParamToArray(path string) ([]sql.SQLObject, error) {
	parsed, err := jsonPathParser.ParseString("", path)
	if err != nil {
		return nil, err
	}

	var res []sql.SQLObject
	appendPart := func(p jsonPathPart) {
		if p.Ident != "" {
			res = append(res, sql.NewStringVal(p.Ident))
			return
		}
		for _, s := range p.Idx {
			if s.StrIdx != "" {
				str, _ := strconv.Unquote(s.StrIdx)
				res = append(res, sql.NewStringVal(str))
				continue
			}
			i, _ := strconv.ParseInt(s.IntIdx, 10, 64)
			res = append(res, sql.NewIntVal(i+1))
		}
	}
	appendPart(parsed.Head)
	for _, p := range parsed.Tail {
		appendPart(p)
	}
	return res, nil
}

// JsonPathToLabelName flattens a path expression to the label name the parser
// stage exposes, `a.b["c"]` becoming `a_b_c`.
func JsonPathToLabelName(path string) (string, error) {
	parsed, err := jsonPathParser.ParseString("", path)
	if err != nil {
		return "", err
	}

	var parts []string
	appendPart := func(p jsonPathPart) {
		if p.Ident != "" {
			parts = append(parts, p.Ident)
			return
		}
		for _, s := range p.Idx {
			if s.StrIdx != "" {
				str, _ := strconv.Unquote(s.StrIdx)
				parts = append(parts, str)
				continue
			}
			parts = append(parts, s.IntIdx)
		}
	}
	appendPart(parsed.Head)
	for _, p := range parsed.Tail {
		appendPart(p)
	}
	return strings.Join(parts, "_"), nil
}
