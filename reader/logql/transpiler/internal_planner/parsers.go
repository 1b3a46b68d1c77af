package internal_planner

import (
	"strconv"
	"strings"

	"github.com/go-logfmt/logfmt"
	jsoniter "github.com/json-iterator/go"
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NewJsonParserProcessor extracts every leaf of a JSON line into labels,
// nested keys flattened with underscores. Lines that do not parse pass
// through unchanged.
func NewJsonParserProcessor() shared.StreamProcessor {
	return mapParser(func(line string, labels map[string]string) {
		var data map[string]interface{}
		if err := json.UnmarshalFromString(line, &data); err != nil {
			return
		}
		flattenJson("", data, labels)
	})
}

func flattenJson(prefix string, data map[string]interface{}, labels map[string]string) {
	for k, v := range data {
		key := sanitizeLabelName(k)
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flattenJson(key, val, labels)
		case string:
			labels[key] = val
		case float64:
			labels[key] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			labels[key] = strconv.FormatBool(val)
		}
	}
}

// NewLogfmtParserProcessor extracts logfmt pairs into labels.
func NewLogfmtParserProcessor() shared.StreamProcessor {
	return mapParser(func(line string, labels map[string]string) {
		dec := logfmt.NewDecoder(strings.NewReader(line))
		for dec.ScanRecord() {
			for dec.ScanKeyval() {
				if len(dec.Key()) == 0 {
					continue
				}
				labels[sanitizeLabelName(string(dec.Key()))] = string(dec.Value())
			}
		}
	})
}

func mapParser(parse func(line string, labels map[string]string)) shared.StreamProcessor {
	return func(ctx *shared.PlannerContext, in chan []shared.LogEntry) chan []shared.LogEntry {
		out := make(chan []shared.LogEntry)
		go func() {
			defer close(out)
			defer shared.TamePanic(out)
			for entries := range in {
				for i, e := range entries {
					if e.EOF || e.Err != nil {
						continue
					}
					labels := make(map[string]string, len(e.Labels))
					for k, v := range e.Labels {
						labels[k] = v
					}
					parse(e.Message, labels)
					entries[i].Labels = labels
				}
				out <- entries
			}
		}()
		return out
	}
}

func sanitizeLabelName(name string) string {
	res := []byte(name)
	for i, c := range res {
		valid := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(i > 0 && c >= '0' && c <= '9')
		if !valid {
			res[i] = '_'
		}
	}
	return string(res)
}
