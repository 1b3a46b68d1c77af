package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/metrico/loghouse/reader/logql/transpiler"
	"github.com/metrico/loghouse/reader/model"
	"github.com/metrico/loghouse/reader/utils/logger"
)

const tailFlushPeriod = 500 * time.Millisecond
const tailIdleTimeout = 10 * time.Second

// Watcher polls a compiled tail request and emits streams chunks. It stops
// when closed, when the context ends, or when the receiver stops reading for
// tailIdleTimeout.
type Watcher struct {
	db   model.IStreamDB
	tail *transpiler.TailQuery

	res  chan model.QueryRangeOutput
	done chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	flushing  int32
	closeOnce sync.Once

	lastTsNs int64
}

func NewWatcher(ctx context.Context, db model.IStreamDB,
	tail *transpiler.TailQuery) *Watcher {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		db:     db,
		tail:   tail,
		res:    make(chan model.QueryRangeOutput),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go w.watch()
	return w
}

func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) GetRes() chan model.QueryRangeOutput {
	return w.res
}

func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		w.cancel()
		close(w.done)
	})
}

func (w *Watcher) watch() {
	ticker := time.NewTicker(tailFlushPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.Close()
			return
		case <-w.done:
			return
		case <-ticker.C:
			// a slow poll must not pile up behind the ticker
			if !atomic.CompareAndSwapInt32(&w.flushing, 0, 1) {
				continue
			}
			err := w.flush()
			atomic.StoreInt32(&w.flushing, 0)
			if err != nil {
				logger.Error("tail flush: ", err)
				w.send(model.QueryRangeOutput{Err: err})
				w.Close()
				return
			}
		}
	}
}

func (w *Watcher) flush() error {
	query, err := w.tail.Render(w.lastTsNs)
	if err != nil {
		return err
	}

	body, err := w.db.QueryStream(w.ctx, query+" FORMAT JSONEachRow")
	if err != nil {
		return err
	}
	defer body.Close()

	entries := DecodeRows(w.tail.Ctx, body)
	for _, proc := range w.tail.Processors {
		entries = proc(w.tail.Ctx, entries)
	}

	sink := &builderSink{}
	count := 0
	err = writeGroups(sink, "streams", entries, func(g *series) (string, error) {
		for _, e := range g.entries {
			count++
			if e.TimestampNS >= w.lastTsNs {
				w.lastTsNs = e.TimestampNS + 1
			}
		}
		return renderStreams(g)
	})
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	w.send(model.QueryRangeOutput{Str: sink.b.String()})
	return nil
}

// send gives the receiver tailIdleTimeout to pick the chunk up, then treats
// the client as gone.
func (w *Watcher) send(out model.QueryRangeOutput) {
	timer := time.NewTimer(tailIdleTimeout)
	defer timer.Stop()
	select {
	case w.res <- out:
	case <-w.done:
	case <-timer.C:
		w.Close()
	}
}

var _ model.IWatcher = &Watcher{}
