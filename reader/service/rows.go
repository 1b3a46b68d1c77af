package service

import (
	"bufio"
	"io"
	"strconv"

	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	"github.com/metrico/loghouse/reader/utils/logger"
	"github.com/valyala/fastjson"
)

const decodeBatchSize = 100

// DecodeRows turns a JSONEachRow response body into the entry stream the
// assembler consumes. The stream always ends with one EOF entry before the
// channel closes, and the channel close itself is a terminator as well.
func DecodeRows(ctx *shared.PlannerContext, body io.Reader) chan []shared.LogEntry {
	out := make(chan []shared.LogEntry)
	go func() {
		defer close(out)
		defer shared.TamePanic(out)

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 1024*1024), 100*1024*1024)

		var parser fastjson.Parser
		batch := make([]shared.LogEntry, 0, decodeBatchSize)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			entry, err := decodeRow(&parser, line)
			if err != nil {
				// a malformed row does not fail the query
				logger.Error("skipping row: ", err)
				continue
			}
			batch = append(batch, entry)
			if len(batch) >= decodeBatchSize {
				out <- batch
				batch = make([]shared.LogEntry, 0, decodeBatchSize)
			}
		}
		if err := scanner.Err(); err != nil {
			out <- []shared.LogEntry{{Err: err}}
			return
		}
		out <- append(batch, shared.LogEntry{EOF: true})
	}()
	return out
}

func decodeRow(parser *fastjson.Parser, line []byte) (shared.LogEntry, error) {
	v, err := parser.ParseBytes(line)
	if err != nil {
		return shared.LogEntry{}, err
	}

	res := shared.LogEntry{
		TimestampNS: jsonInt(v.Get("timestamp_ns")),
		Fingerprint: uint64(jsonInt(v.Get("fingerprint"))),
		Message:     string(v.GetStringBytes("string")),
		Value:       jsonFloat(v.Get("value")),
		Labels:      decodeLabels(v.Get("labels")),
	}
	return res, nil
}

// decodeLabels accepts both encodings the requests produce, an object map and
// an array of [key, value] tuples.
func decodeLabels(v *fastjson.Value) map[string]string {
	if v == nil {
		return nil
	}
	res := map[string]string{}
	switch v.Type() {
	case fastjson.TypeObject:
		obj, _ := v.Object()
		obj.Visit(func(key []byte, val *fastjson.Value) {
			res[string(key)] = string(val.GetStringBytes())
		})
	case fastjson.TypeArray:
		for _, pair := range v.GetArray() {
			arr := pair.GetArray()
			if len(arr) != 2 {
				continue
			}
			res[string(arr[0].GetStringBytes())] = string(arr[1].GetStringBytes())
		}
	}
	return res
}

// jsonInt reads a number that large value columns may render as a string.
func jsonInt(v *fastjson.Value) int64 {
	if v == nil {
		return 0
	}
	switch v.Type() {
	case fastjson.TypeNumber:
		return v.GetInt64()
	case fastjson.TypeString:
		res, _ := strconv.ParseInt(string(v.GetStringBytes()), 10, 64)
		return res
	}
	return 0
}

func jsonFloat(v *fastjson.Value) float64 {
	if v == nil {
		return 0
	}
	switch v.Type() {
	case fastjson.TypeNumber:
		return v.GetFloat64()
	case fastjson.TypeString:
		res, _ := strconv.ParseFloat(string(v.GetStringBytes()), 64)
		return res
	}
	return 0
}
