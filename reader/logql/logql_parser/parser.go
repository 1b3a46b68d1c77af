package logql_parser

import (
	"reflect"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/grafana/regexp"
)

var logQLParser = participle.MustBuild[LogQLScript](
	participle.Lexer(LogQLLexerDefinition),
	participle.UseLookahead(2))

func Parse(str string) (*LogQLScript, error) {
	return logQLParser.ParseString("", str+" ")
}

var promStyleRe = regexp.MustCompile(`^([a-zA-Z_]\w*)\s*($|\{.+$)`)

// ParseSeries accepts both logql selectors and the prometheus-style
// `name{...}` form, rewriting the latter to `{__name__="name",...}`.
func ParseSeries(str string) (*LogQLScript, error) {
	if promExp := promStyleRe.FindStringSubmatch(str); promExp != nil {
		left := promExp[2]
		if len(left) > 2 {
			left = "," + left[1:]
		} else {
			left = "}"
		}
		b := strings.Builder{}
		b.WriteString(`{__name__="`)
		b.WriteString(promExp[1])
		b.WriteString(`"`)
		b.WriteString(left)
		str = b.String()
	}
	return Parse(str)
}

// FindFirst walks the AST depth-first and returns the first node of type T.
// The walk is reflective so new node types do not need to be registered.
func FindFirst[T any](node any) *T {
	if n, ok := node.(*T); ok {
		return n
	}
	v := reflect.ValueOf(node)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() {
		return nil
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return nil
	}
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		switch f.Kind() {
		case reflect.Ptr:
			if res := FindFirst[T](f.Interface()); res != nil {
				return res
			}
		case reflect.Struct:
			if res := FindFirst[T](f.Addr().Interface()); res != nil {
				return res
			}
		case reflect.Slice:
			for j := 0; j < f.Len(); j++ {
				el := f.Index(j)
				if el.Kind() != reflect.Struct {
					continue
				}
				if res := FindFirst[T](el.Addr().Interface()); res != nil {
					return res
				}
			}
		}
	}
	return nil
}

// FindAll collects every node of type T in document order.
func FindAll[T any](node any) []*T {
	var res []*T
	collectAll(node, &res)
	return res
}

func collectAll[T any](node any, acc *[]*T) {
	if n, ok := node.(*T); ok {
		*acc = append(*acc, n)
	}
	v := reflect.ValueOf(node)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() {
		return
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		switch f.Kind() {
		case reflect.Ptr:
			collectAll(f.Interface(), acc)
		case reflect.Struct:
			collectAll(f.Addr().Interface(), acc)
		case reflect.Slice:
			for j := 0; j < f.Len(); j++ {
				el := f.Index(j)
				if el.Kind() == reflect.Struct {
					collectAll(el.Addr().Interface(), acc)
				}
			}
		}
	}
}
