package service

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/metrico/loghouse/reader/utils/logger"
	"github.com/metrico/loghouse/writer/utils/numbercache"
	"github.com/metrico/loghouse/writer/utils/promise"
	"github.com/pkg/errors"
)

// errPush is what callers see on any flush failure. The real cause is logged,
// not leaked into responses.
var errPush = errors.New("database push error")

const maxRequestId = 1000000

// ChConn is the slice of the native connection the inserter needs.
type ChConn interface {
	PrepareBatch(ctx context.Context, query string) (driver.Batch, error)
}

type TimeSeriesRow struct {
	Date        time.Time
	Fingerprint uint64
	Labels      string
	Type        uint8
}

type SampleRow struct {
	Fingerprint uint64
	TimestampNS int64
	Message     string
	Value       float64
	Type        uint8
}

type InsertRequest struct {
	TimeSeries []TimeSeriesRow
	Samples    []SampleRow
}

type msgKind int

const (
	msgPush msgKind = iota
	msgEnd
)

type insertMsg struct {
	kind       msgKind
	timeSeries []TimeSeriesRow
	samples    []SampleRow
	ack        *promise.Promise[uint32]
	id         uint32
}

// InsertService coalesces pushes into bulk inserts, flushing on accumulated
// size or age. Every push gets a correlation id and a promise resolved when
// its bulk lands.
type InsertService struct {
	conn ChConn

	timeSeriesTable string
	samplesTable    string

	maxSizeBytes int64
	maxAge       time.Duration

	msgs   chan *insertMsg
	ctx    context.Context
	cancel context.CancelFunc

	labelsCache *numbercache.Cache[uint64]

	// worker-local state
	id         uint32
	pending    map[uint32]*promise.Promise[uint32]
	timeSeries []TimeSeriesRow
	samples    []SampleRow
	size       int64
	lastFlush  time.Time
}

type InsertServiceOpts struct {
	TimeSeriesTable string
	SamplesTable    string
	MaxSizeBytes    int64
	MaxAgeMs        int64
}

func NewInsertService(conn ChConn, opts InsertServiceOpts) *InsertService {
	if opts.MaxSizeBytes == 0 {
		opts.MaxSizeBytes = 10 * 1024 * 1024
	}
	if opts.MaxAgeMs == 0 {
		opts.MaxAgeMs = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())
	res := &InsertService{
		conn:            conn,
		timeSeriesTable: opts.TimeSeriesTable,
		samplesTable:    opts.SamplesTable,
		maxSizeBytes:    opts.MaxSizeBytes,
		maxAge:          time.Duration(opts.MaxAgeMs) * time.Millisecond,
		msgs:            make(chan *insertMsg, 1000),
		ctx:             ctx,
		cancel:          cancel,
		pending:         map[uint32]*promise.Promise[uint32]{},
		lastFlush:       time.Now(),
		labelsCache: numbercache.NewCache[uint64](time.Hour, func(k uint64) []byte {
			res := make([]byte, 8)
			binary.LittleEndian.PutUint64(res, k)
			return res
		}),
	}
	go res.run()
	return res
}

// Push enqueues one request. The returned promise resolves with the
// correlation id after the containing bulk is written.
func (s *InsertService) Push(req *InsertRequest) *promise.Promise[uint32] {
	ack := promise.New[uint32]()

	timeSeries := make([]TimeSeriesRow, 0, len(req.TimeSeries))
	for _, row := range req.TimeSeries {
		if s.labelsCache.CheckAndSet(row.Fingerprint) {
			continue
		}
		timeSeries = append(timeSeries, row)
	}

	select {
	case s.msgs <- &insertMsg{
		kind:       msgPush,
		timeSeries: timeSeries,
		samples:    req.Samples,
		ack:        ack,
	}:
	case <-s.ctx.Done():
		ack.Done(0, errPush)
	}
	return ack
}

// End flushes everything buffered and resolves once the flush lands.
func (s *InsertService) End() *promise.Promise[uint32] {
	ack := promise.New[uint32]()
	select {
	case s.msgs <- &insertMsg{kind: msgEnd, ack: ack}:
	case <-s.ctx.Done():
		ack.Done(0, errPush)
	}
	return ack
}

func (s *InsertService) Stop() {
	s.cancel()
	s.labelsCache.Stop()
}

func (s *InsertService) run() {
	ticker := time.NewTicker(s.maxAge)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.rejectAll(errPush)
			return
		case <-ticker.C:
			if s.size > 0 && time.Since(s.lastFlush) >= s.maxAge {
				s.flush()
			}
		case msg := <-s.msgs:
			if msg.kind == msgEnd {
				s.flush()
				msg.ack.Done(0, nil)
				continue
			}
			id, err := s.acquireId(msg.ack)
			if err != nil {
				msg.ack.Done(0, err)
				continue
			}
			msg.id = id
			s.append(msg)
			if s.size >= s.maxSizeBytes {
				s.flush()
			}
		}
	}
}

// acquireId hands out the next correlation id. A pending promise under the
// same id means a million unresolved pushes, refuse rather than overwrite.
func (s *InsertService) acquireId(ack *promise.Promise[uint32]) (uint32, error) {
	s.id = (s.id + 1) % maxRequestId
	if _, busy := s.pending[s.id]; busy {
		return 0, fmt.Errorf("too many pending requests")
	}
	s.pending[s.id] = ack
	return s.id, nil
}

func (s *InsertService) append(msg *insertMsg) {
	s.timeSeries = append(s.timeSeries, msg.timeSeries...)
	s.samples = append(s.samples, msg.samples...)
	for _, row := range msg.timeSeries {
		s.size += int64(len(row.Labels)) + 16
	}
	for _, row := range msg.samples {
		s.size += int64(len(row.Message)) + 32
	}
}

func (s *InsertService) flush() {
	err := s.insert()
	if err != nil {
		logger.Error("bulk insert failed: ", err)
	}

	for id, ack := range s.pending {
		if err != nil {
			ack.Done(0, errPush)
		} else {
			ack.Done(id, nil)
		}
	}

	s.pending = map[uint32]*promise.Promise[uint32]{}
	s.timeSeries = nil
	s.samples = nil
	s.size = 0
	s.lastFlush = time.Now()
}

func (s *InsertService) insert() error {
	if len(s.timeSeries) > 0 {
		batch, err := s.conn.PrepareBatch(s.ctx,
			"INSERT INTO "+s.timeSeriesTable+" (date, fingerprint, labels, type)")
		if err != nil {
			return err
		}
		for _, row := range s.timeSeries {
			if err := batch.Append(row.Date, row.Fingerprint, row.Labels, row.Type); err != nil {
				batch.Abort()
				return err
			}
		}
		if err := batch.Send(); err != nil {
			return err
		}
	}

	if len(s.samples) > 0 {
		batch, err := s.conn.PrepareBatch(s.ctx,
			"INSERT INTO "+s.samplesTable+" (fingerprint, timestamp_ns, string, value, type)")
		if err != nil {
			return err
		}
		for _, row := range s.samples {
			if err := batch.Append(row.Fingerprint, row.TimestampNS, row.Message,
				row.Value, row.Type); err != nil {
				batch.Abort()
				return err
			}
		}
		if err := batch.Send(); err != nil {
			return err
		}
	}
	return nil
}

func (s *InsertService) rejectAll(err error) {
	for _, ack := range s.pending {
		ack.Done(0, err)
	}
	s.pending = map[uint32]*promise.Promise[uint32]{}
}
