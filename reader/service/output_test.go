package service

import (
	"testing"

	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedEntries(batches ...[]shared.LogEntry) chan []shared.LogEntry {
	out := make(chan []shared.LogEntry, len(batches))
	for _, b := range batches {
		out <- b
	}
	close(out)
	return out
}

func collectGroups(t *testing.T, in chan []shared.LogEntry) []*series {
	var res []*series
	err := scanGroups(in, func(g *series) error {
		res = append(res, g)
		return nil
	})
	require.NoError(t, err)
	return res
}

func TestScanGroups(t *testing.T) {
	groups := collectGroups(t, feedEntries(
		[]shared.LogEntry{
			{TimestampNS: 1, Labels: map[string]string{"job": "api"}, Message: "m1"},
			{TimestampNS: 2, Labels: map[string]string{"job": "api"}, Message: "m2"},
		},
		[]shared.LogEntry{
			{TimestampNS: 3, Labels: map[string]string{"job": "db"}, Message: "m3"},
			{EOF: true},
		},
	))
	require.Len(t, groups, 2)

	assert.Equal(t, map[string]string{"job": "api"}, groups[0].labels)
	require.Len(t, groups[0].entries, 2)
	assert.Equal(t, "m1", groups[0].entries[0].Message)
	assert.Equal(t, "m2", groups[0].entries[1].Message)
	assert.Equal(t, map[string]string{"job": "db"}, groups[1].labels)
}

func TestScanGroupsSplitsOnLabelChange(t *testing.T) {
	// a label set coming back after another one starts a new run
	groups := collectGroups(t, feedEntries([]shared.LogEntry{
		{TimestampNS: 1, Labels: map[string]string{"a": "1"}},
		{TimestampNS: 2, Labels: map[string]string{"a": "2"}},
		{TimestampNS: 3, Labels: map[string]string{"a": "1"}},
		{EOF: true},
	}))
	require.Len(t, groups, 3)
	assert.Equal(t, "1", groups[0].labels["a"])
	assert.Equal(t, "2", groups[1].labels["a"])
	assert.Equal(t, "1", groups[2].labels["a"])
}

func TestScanGroupsEmitsBeforeStreamEnd(t *testing.T) {
	in := make(chan []shared.LogEntry, 2)
	in <- []shared.LogEntry{
		{TimestampNS: 1, Labels: map[string]string{"a": "1"}},
		{TimestampNS: 2, Labels: map[string]string{"a": "2"}},
	}

	// the first group must come out as soon as its run ends, while the
	// channel is still open
	emitted := make(chan *series, 2)
	done := make(chan error)
	go func() {
		done <- scanGroups(in, func(g *series) error {
			emitted <- g
			return nil
		})
	}()

	first := <-emitted
	assert.Equal(t, "1", first.labels["a"])

	close(in)
	require.NoError(t, <-done)
	second := <-emitted
	assert.Equal(t, "2", second.labels["a"])
}

func TestScanGroupsError(t *testing.T) {
	err := scanGroups(feedEntries(
		[]shared.LogEntry{{Err: assert.AnError}},
	), func(g *series) error { return nil })
	require.Error(t, err)
}

func TestScanGroupsCloseWithoutEOF(t *testing.T) {
	groups := collectGroups(t, feedEntries(
		[]shared.LogEntry{{TimestampNS: 1, Labels: map[string]string{"a": "b"}}},
	))
	assert.Len(t, groups, 1)
}

func TestMarshalStreams(t *testing.T) {
	res, err := MarshalStreams(feedEntries([]shared.LogEntry{
		{TimestampNS: 1600000000000000000,
			Labels: map[string]string{"job": "api"}, Message: "hello"},
		{TimestampNS: 1600000001000000000,
			Labels: map[string]string{"job": "api"}, Message: "world"},
		{EOF: true},
	}))
	require.NoError(t, err)
	assert.Equal(t, `{"status":"success","data":{"resultType":"streams",`+
		`"result":[{"stream":{"job":"api"},"values":[`+
		`["1600000000000000000","hello"],["1600000001000000000","world"]]}]}}`, res)
}

func TestMarshalMatrix(t *testing.T) {
	// one value repeated over a range worth of steps
	res, err := MarshalMatrix(feedEntries([]shared.LogEntry{
		{TimestampNS: 0, Labels: map[string]string{}, Value: 5},
		{EOF: true},
	}), 60000, 15000)
	require.NoError(t, err)
	assert.Equal(t, `{"status":"success","data":{"resultType":"matrix",`+
		`"result":[{"metric":{},"values":[[0,"5"],[15,"5"],[30,"5"],[45,"5"]]}]}}`, res)
}

func TestMarshalMatrixFullGridPerPoint(t *testing.T) {
	// every kept point expands into the full grid from its own timestamp
	res, err := MarshalMatrix(feedEntries([]shared.LogEntry{
		{TimestampNS: 0, Labels: map[string]string{}, Value: 5},
		{TimestampNS: 30000, Labels: map[string]string{}, Value: 7},
		{EOF: true},
	}), 60000, 15000)
	require.NoError(t, err)
	assert.Contains(t, res,
		`[[0,"5"],[15,"5"],[30,"5"],[45,"5"],[30,"7"],[45,"7"],[60,"7"],[75,"7"]]`)
	assert.NotContains(t, res, "null")
}

func TestMatrixWithinStepDedup(t *testing.T) {
	// the second point lands inside the first point's step bucket
	res, err := MarshalMatrix(feedEntries([]shared.LogEntry{
		{TimestampNS: 0, Labels: map[string]string{}, Value: 5},
		{TimestampNS: 5000, Labels: map[string]string{}, Value: 9},
		{EOF: true},
	}), 60000, 15000)
	require.NoError(t, err)
	assert.Contains(t, res, `[[0,"5"],[15,"5"],[30,"5"],[45,"5"]]`)
	assert.NotContains(t, res, `"9"`)
}

func TestMarshalMatrixZeroStep(t *testing.T) {
	// a zero step falls back to the window duration, one sample per window
	res, err := MarshalMatrix(feedEntries([]shared.LogEntry{
		{TimestampNS: 15000, Labels: map[string]string{}, Value: 2},
		{EOF: true},
	}), 15000, 0)
	require.NoError(t, err)
	assert.Contains(t, res, `"values":[[15,"2"]]`)
}

func TestMarshalVector(t *testing.T) {
	// only the latest value of each series survives
	res, err := MarshalVector(feedEntries([]shared.LogEntry{
		{TimestampNS: 15000, Labels: map[string]string{"job": "api"}, Value: 1},
		{TimestampNS: 30000, Labels: map[string]string{"job": "api"}, Value: 2.5},
		{EOF: true},
	}))
	require.NoError(t, err)
	assert.Equal(t, `{"status":"success","data":{"resultType":"vector",`+
		`"result":[{"metric":{"job":"api"},"value":[30,"2.5"]}]}}`, res)
}

func TestMarshalCSV(t *testing.T) {
	res, err := MarshalCSV(feedEntries([]shared.LogEntry{
		{TimestampNS: 1000, Labels: map[string]string{"job": "api"},
			Message: `say "hi"`},
		{EOF: true},
	}), false, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "timestamp_ns,labels,string\n"+
		`1000,"{""job"":""api""}","say ""hi"""`+"\n", res)
}

func TestMarshalCSVMatrix(t *testing.T) {
	// matrix records expand over the step grid like the JSON shape, with
	// timestamps upscaled back to nanoseconds
	res, err := MarshalCSV(feedEntries([]shared.LogEntry{
		{TimestampNS: 15000, Labels: map[string]string{}, Value: 2.5},
		{EOF: true},
	}), true, 30000, 15000)
	require.NoError(t, err)
	assert.Equal(t, "timestamp_ns,labels,value\n"+
		`15000000000,"{}",2.5`+"\n"+
		`30000000000,"{}",2.5`+"\n", res)
}

func TestMarshalCSVMatrixWithinStepDedup(t *testing.T) {
	res, err := MarshalCSV(feedEntries([]shared.LogEntry{
		{TimestampNS: 0, Labels: map[string]string{}, Value: 5},
		{TimestampNS: 5000, Labels: map[string]string{}, Value: 9},
		{EOF: true},
	}), true, 15000, 15000)
	require.NoError(t, err)
	assert.Equal(t, "timestamp_ns,labels,value\n"+
		`0,"{}",5`+"\n", res)
}

type chunkSink struct {
	chunks []string
	ended  bool
}

func (s *chunkSink) Write(chunk string) error {
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *chunkSink) End() error {
	s.ended = true
	return nil
}

func TestWriteStreamsIncremental(t *testing.T) {
	sink := &chunkSink{}
	err := WriteStreams(feedEntries([]shared.LogEntry{
		{TimestampNS: 1, Labels: map[string]string{"a": "1"}, Message: "x"},
		{TimestampNS: 2, Labels: map[string]string{"a": "2"}, Message: "y"},
		{EOF: true},
	}), sink)
	require.NoError(t, err)
	assert.True(t, sink.ended)
	// envelope opening, two group chunks with a separator, envelope closing
	require.Len(t, sink.chunks, 5)
	assert.Equal(t, `{"status":"success","data":{"resultType":"streams","result":[`,
		sink.chunks[0])
	assert.Equal(t, ",", sink.chunks[2])
	assert.Equal(t, "]}}", sink.chunks[4])
}
