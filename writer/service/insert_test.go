package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBatch struct {
	driver.Batch
	conn  *mockConn
	query string
	rows  [][]interface{}
}

func (b *mockBatch) Append(v ...interface{}) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *mockBatch) Send() error {
	b.conn.mtx.Lock()
	defer b.conn.mtx.Unlock()
	b.conn.sent = append(b.conn.sent, b)
	return nil
}

func (b *mockBatch) Abort() error { return nil }

type mockConn struct {
	mtx  sync.Mutex
	sent []*mockBatch
	err  error
}

func (c *mockConn) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return &mockBatch{conn: c, query: query}, nil
}

func (c *mockConn) sentBatches() []*mockBatch {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]*mockBatch{}, c.sent...)
}

func testRequest(fp uint64) *InsertRequest {
	return &InsertRequest{
		TimeSeries: []TimeSeriesRow{{
			Date:        time.Unix(1600000000, 0),
			Fingerprint: fp,
			Labels:      `{"job":"api"}`,
			Type:        1,
		}},
		Samples: []SampleRow{{
			Fingerprint: fp,
			TimestampNS: 1600000000000000000,
			Message:     "hello",
			Value:       0,
			Type:        1,
		}},
	}
}

func TestInsertFlushOnEnd(t *testing.T) {
	conn := &mockConn{}
	svc := NewInsertService(conn, InsertServiceOpts{
		TimeSeriesTable: "time_series",
		SamplesTable:    "samples_v3",
		MaxAgeMs:        60000,
	})
	defer svc.Stop()

	ack := svc.Push(testRequest(1))
	_, err := svc.End().Get()
	require.NoError(t, err)

	id, err := ack.Get()
	require.NoError(t, err)
	assert.NotZero(t, id)

	batches := conn.sentBatches()
	require.Len(t, batches, 2)
	assert.Contains(t, batches[0].query, "INSERT INTO time_series")
	assert.Len(t, batches[0].rows, 1)
	assert.Contains(t, batches[1].query, "INSERT INTO samples_v3")
	assert.Len(t, batches[1].rows, 1)
}

func TestInsertDeduplicatesLabels(t *testing.T) {
	conn := &mockConn{}
	svc := NewInsertService(conn, InsertServiceOpts{
		TimeSeriesTable: "time_series",
		SamplesTable:    "samples_v3",
		MaxAgeMs:        60000,
	})
	defer svc.Stop()

	first := svc.Push(testRequest(7))
	second := svc.Push(testRequest(7))
	svc.End()
	_, err := first.Get()
	require.NoError(t, err)
	_, err = second.Get()
	require.NoError(t, err)

	var tsRows int
	for _, b := range conn.sentBatches() {
		if b.query == "INSERT INTO time_series (date, fingerprint, labels, type)" {
			tsRows += len(b.rows)
		}
	}
	assert.Equal(t, 1, tsRows)
}

func TestInsertErrorRejectsPending(t *testing.T) {
	conn := &mockConn{err: errors.New("connection refused")}
	svc := NewInsertService(conn, InsertServiceOpts{
		TimeSeriesTable: "time_series",
		SamplesTable:    "samples_v3",
		MaxAgeMs:        60000,
	})
	defer svc.Stop()

	ack := svc.Push(testRequest(1))
	svc.End()

	_, err := ack.Get()
	require.Error(t, err)
	// the real cause stays in the logs
	assert.Equal(t, errPush, err)
}

func TestInsertFlushOnAge(t *testing.T) {
	conn := &mockConn{}
	svc := NewInsertService(conn, InsertServiceOpts{
		TimeSeriesTable: "time_series",
		SamplesTable:    "samples_v3",
		MaxAgeMs:        50,
	})
	defer svc.Stop()

	ack := svc.Push(testRequest(1))
	id, err := ack.Get()
	require.NoError(t, err)
	assert.NotZero(t, id)
}

func TestInsertCorrelationIdsDistinct(t *testing.T) {
	conn := &mockConn{}
	svc := NewInsertService(conn, InsertServiceOpts{
		TimeSeriesTable: "time_series",
		SamplesTable:    "samples_v3",
		MaxAgeMs:        60000,
	})
	defer svc.Stop()

	a := svc.Push(testRequest(1))
	b := svc.Push(testRequest(2))
	svc.End()

	idA, err := a.Get()
	require.NoError(t, err)
	idB, err := b.Get()
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)
}
