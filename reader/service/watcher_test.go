package service

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/metrico/loghouse/reader/logql/transpiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStreamDB struct {
	mtx     sync.Mutex
	queries []string
	bodies  []string
}

func (m *mockStreamDB) QueryStream(ctx context.Context,
	query string) (io.ReadCloser, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.queries = append(m.queries, query)
	body := ""
	if len(m.bodies) > 0 {
		body = m.bodies[0]
		m.bodies = m.bodies[1:]
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (m *mockStreamDB) queryCount() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return len(m.queries)
}

func TestWatcher(t *testing.T) {
	tail, err := transpiler.TranspileTail(`{job="api"}`, transpiler.Settings{})
	require.NoError(t, err)

	db := &mockStreamDB{bodies: []string{
		`{"timestamp_ns":1000000000,"fingerprint":1,"labels":{"job":"api"},"string":"hello","value":0}` + "\n",
	}}

	w := NewWatcher(context.Background(), db, tail)
	defer w.Close()

	select {
	case out := <-w.GetRes():
		require.NoError(t, out.Err)
		assert.Contains(t, out.Str, `"hello"`)
		assert.Contains(t, out.Str, `"resultType":"streams"`)
	case <-time.After(3 * time.Second):
		t.Fatal("no chunk within 3s")
	}

	// empty polls emit nothing but keep advancing
	deadline := time.Now().Add(3 * time.Second)
	for db.queryCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	require.GreaterOrEqual(t, db.queryCount(), 2)

	db.mtx.Lock()
	secondQuery := db.queries[1]
	db.mtx.Unlock()
	// the lower bound moved past the delivered row
	assert.Contains(t, secondQuery, "1000000001")

	w.Close()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("watcher did not close")
	}
}
