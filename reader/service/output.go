package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-faster/city"
	jsoniter "github.com/json-iterator/go"
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	"github.com/metrico/loghouse/reader/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// series is the group under assembly, a label set with its rows in arrival
// order. Only one group is held at a time.
type series struct {
	labels  map[string]string
	entries []shared.LogEntry
}

// scanGroups walks the decoded stream in one pass and emits every contiguous
// run of one label set as soon as the run ends. Plans order rows by labels
// before time, so a series arrives as a single run. An EOF entry flushes the
// pending group, the channel close is a terminator as well.
func scanGroups(in chan []shared.LogEntry, emit func(g *series) error) error {
	var cur *series
	var curKey uint64

	flush := func() error {
		if cur == nil {
			return nil
		}
		g := cur
		cur = nil
		return emit(g)
	}

	for batch := range in {
		for _, e := range batch {
			if e.Err != nil {
				return e.Err
			}
			if e.EOF {
				if err := flush(); err != nil {
					return err
				}
				continue
			}
			key := labelsKey(e.Labels)
			if cur != nil && key != curKey {
				if err := flush(); err != nil {
					return err
				}
			}
			if cur == nil {
				cur = &series{labels: e.Labels}
				curKey = key
			}
			cur.entries = append(cur.entries, e)
		}
	}
	return flush()
}

func labelsKey(labels map[string]string) uint64 {
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return city.CH64([]byte(strings.Join(pairs, ";")))
}

type streamsResult struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

type matrixResult struct {
	Metric map[string]string `json:"metric"`
	Values [][]interface{}   `json:"values"`
}

type vectorResult struct {
	Metric map[string]string `json:"metric"`
	Value  []interface{}     `json:"value"`
}

// writeGroups streams the response envelope to the sink, one chunk per group
// as its run ends. render returning an empty chunk skips the group.
func writeGroups(sink model.ISink, resultType string, in chan []shared.LogEntry,
	render func(g *series) (string, error)) error {
	err := sink.Write(`{"status":"success","data":{"resultType":"` +
		resultType + `","result":[`)
	if err != nil {
		return err
	}

	first := true
	err = scanGroups(in, func(g *series) error {
		chunk, err := render(g)
		if err != nil {
			return err
		}
		if chunk == "" {
			return nil
		}
		if !first {
			if err := sink.Write(","); err != nil {
				return err
			}
		}
		first = false
		return sink.Write(chunk)
	})
	if err != nil {
		return err
	}

	if err := sink.Write("]}}"); err != nil {
		return err
	}
	return sink.End()
}

func renderStreams(g *series) (string, error) {
	if len(g.entries) == 0 {
		return "", nil
	}
	values := make([][]string, len(g.entries))
	for j, e := range g.entries {
		values[j] = []string{strconv.FormatInt(e.TimestampNS, 10), e.Message}
	}
	return json.MarshalToString(streamsResult{
		Stream: nonNil(g.labels), Values: values})
}

// WriteStreams streams the log streams response shape. Entry timestamps are
// nanoseconds.
func WriteStreams(in chan []shared.LogEntry, sink model.ISink) error {
	return writeGroups(sink, "streams", in, renderStreams)
}

// WriteMatrix streams the matrix response shape. Entry timestamps are
// milliseconds; every kept window value repeats over the whole range worth of
// steps starting at its own timestamp.
func WriteMatrix(in chan []shared.LogEntry, durationMs int64, stepMs int64,
	sink model.ISink) error {
	if stepMs == 0 {
		stepMs = durationMs
	}
	addPoints := (durationMs + stepMs - 1) / stepMs

	return writeGroups(sink, "matrix", in, func(g *series) (string, error) {
		entries := dropWithinStep(g.entries, stepMs)
		if len(entries) == 0 {
			return "", nil
		}
		var values [][]interface{}
		for _, e := range entries {
			for j := int64(0); j < addPoints; j++ {
				values = append(values, []interface{}{
					float64(e.TimestampNS+stepMs*j) / 1000,
					strconv.FormatFloat(e.Value, 'f', -1, 64),
				})
			}
		}
		return json.MarshalToString(matrixResult{
			Metric: nonNil(g.labels), Values: values})
	})
}

// dropWithinStep discards points landing inside the step bucket of the
// previous kept point of the same series.
func dropWithinStep(entries []shared.LogEntry, stepMs int64) []shared.LogEntry {
	res := make([]shared.LogEntry, 0, len(entries))
	for _, e := range entries {
		if len(res) > 0 && e.TimestampNS-res[len(res)-1].TimestampNS < stepMs {
			continue
		}
		res = append(res, e)
	}
	return res
}

// WriteVector streams the vector shape for instant metric requests, one value
// per series, the latest.
func WriteVector(in chan []shared.LogEntry, sink model.ISink) error {
	return writeGroups(sink, "vector", in, func(g *series) (string, error) {
		if len(g.entries) == 0 {
			return "", nil
		}
		last := g.entries[len(g.entries)-1]
		return json.MarshalToString(vectorResult{
			Metric: nonNil(g.labels),
			Value: []interface{}{
				float64(last.TimestampNS) / 1000,
				strconv.FormatFloat(last.Value, 'f', -1, 64),
			},
		})
	})
}

// WriteCSV streams one flat record per point. Stream rows carry the line;
// matrix rows carry the value, expanded over the step grid like the JSON
// shape with timestamps upscaled back to nanoseconds.
func WriteCSV(in chan []shared.LogEntry, matrix bool, durationMs int64,
	stepMs int64, sink model.ISink) error {
	header := "timestamp_ns,labels,string\n"
	if matrix {
		header = "timestamp_ns,labels,value\n"
		if stepMs == 0 {
			stepMs = durationMs
		}
	}
	if err := sink.Write(header); err != nil {
		return err
	}
	var addPoints int64
	if matrix {
		addPoints = (durationMs + stepMs - 1) / stepMs
	}

	err := scanGroups(in, func(g *series) error {
		strLabels, err := json.MarshalToString(nonNil(g.labels))
		if err != nil {
			return err
		}
		if matrix {
			for _, e := range dropWithinStep(g.entries, stepMs) {
				for j := int64(0); j < addPoints; j++ {
					record := fmt.Sprintf("%d,%s,%s\n",
						(e.TimestampNS+stepMs*j)*1000000,
						csvQuote(strLabels),
						strconv.FormatFloat(e.Value, 'f', -1, 64))
					if err := sink.Write(record); err != nil {
						return err
					}
				}
			}
			return nil
		}
		for _, e := range g.entries {
			record := fmt.Sprintf("%d,%s,%s\n",
				e.TimestampNS, csvQuote(strLabels), csvQuote(e.Message))
			if err := sink.Write(record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return sink.End()
}

func csvQuote(val string) string {
	return `"` + strings.ReplaceAll(val, `"`, `""`) + `"`
}

// builderSink buffers the response in memory for callers that need the whole
// body as one string.
type builderSink struct {
	b strings.Builder
}

func (s *builderSink) Write(chunk string) error {
	s.b.WriteString(chunk)
	return nil
}

func (s *builderSink) End() error { return nil }

func MarshalStreams(in chan []shared.LogEntry) (string, error) {
	sink := &builderSink{}
	err := WriteStreams(in, sink)
	return sink.b.String(), err
}

func MarshalMatrix(in chan []shared.LogEntry, durationMs int64,
	stepMs int64) (string, error) {
	sink := &builderSink{}
	err := WriteMatrix(in, durationMs, stepMs, sink)
	return sink.b.String(), err
}

func MarshalVector(in chan []shared.LogEntry) (string, error) {
	sink := &builderSink{}
	err := WriteVector(in, sink)
	return sink.b.String(), err
}

func MarshalCSV(in chan []shared.LogEntry, matrix bool, durationMs int64,
	stepMs int64) (string, error) {
	sink := &builderSink{}
	err := WriteCSV(in, matrix, durationMs, stepMs, sink)
	return sink.b.String(), err
}

func nonNil(labels map[string]string) map[string]string {
	if labels == nil {
		return map[string]string{}
	}
	return labels
}
