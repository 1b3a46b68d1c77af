package model

import (
	"context"
	"io"

	"github.com/jmoiron/sqlx"
)

// ISqlxDB is the minimal database facade the reader needs.
type ISqlxDB interface {
	GetName() string
	QueryCtx(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	ExecCtx(ctx context.Context, query string, args ...interface{}) error
}

// IStreamDB runs a request over the HTTP interface and exposes the response
// body as a stream, for row sets too large to buffer.
type IStreamDB interface {
	QueryStream(ctx context.Context, query string) (io.ReadCloser, error)
}

// IDataDB is the full database surface, both cursor and streaming access.
type IDataDB interface {
	ISqlxDB
	IStreamDB
}

// ISink accepts incremental response writes so a transport can start
// delivering bytes before the whole result is assembled.
type ISink interface {
	Write(chunk string) error
	End() error
}

type QueryRangeOutput struct {
	Str string
	Err error
}

// IWatcher is a live result feed. GetRes emits serialized chunks until the
// watcher is closed or done.
type IWatcher interface {
	Done() <-chan struct{}
	GetRes() chan QueryRangeOutput
	Close()
}
