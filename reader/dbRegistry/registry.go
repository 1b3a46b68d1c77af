package dbRegistry

import (
	"context"
	"fmt"
	"io"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	"github.com/metrico/loghouse/reader/config"
	"github.com/metrico/loghouse/reader/model"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

// DataDB serves both access paths to one ClickHouse database, a sqlx cursor
// connection for small result sets and the HTTP interface for streaming.
type DataDB struct {
	name    string
	db      *sqlx.DB
	httpUrl string
	client  *fasthttp.Client
}

func NewDataDB(cfg config.ClickHouseSettings) (*DataDB, error) {
	db, err := sqlx.Open("clickhouse", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open clickhouse connection")
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Minute * 10)

	return &DataDB{
		name:    cfg.Name,
		db:      db,
		httpUrl: cfg.HttpUrl,
		client: &fasthttp.Client{
			MaxResponseBodySize: 0,
			StreamResponseBody:  true,
			ReadTimeout:         time.Minute * 5,
			WriteTimeout:        time.Minute,
		},
	}, nil
}

func (d *DataDB) GetName() string {
	return d.name
}

func (d *DataDB) QueryCtx(ctx context.Context, query string,
	args ...interface{}) (*sqlx.Rows, error) {
	return d.db.QueryxContext(ctx, query, args...)
}

func (d *DataDB) ExecCtx(ctx context.Context, query string, args ...interface{}) error {
	_, err := d.db.ExecContext(ctx, query, args...)
	return err
}

// QueryStream posts the request to the HTTP interface and hands back the
// undecoded response body.
func (d *DataDB) QueryStream(ctx context.Context, query string) (io.ReadCloser, error) {
	req := fasthttp.AcquireRequest()
	req.SetRequestURI(d.httpUrl)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetBodyString(query)

	resp := fasthttp.AcquireResponse()
	resp.StreamBody = true

	deadline, ok := ctx.Deadline()
	var err error
	if ok {
		err = d.client.DoDeadline(req, resp, deadline)
	} else {
		err = d.client.Do(req, resp)
	}
	fasthttp.ReleaseRequest(req)
	if err != nil {
		fasthttp.ReleaseResponse(resp)
		return nil, errors.Wrap(err, "clickhouse http request failed")
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		body, _ := io.ReadAll(resp.BodyStream())
		fasthttp.ReleaseResponse(resp)
		return nil, fmt.Errorf("clickhouse error %d: %s", resp.StatusCode(), string(body))
	}

	return &streamBody{reader: resp.BodyStream(), resp: resp}, nil
}

type streamBody struct {
	reader io.Reader
	resp   *fasthttp.Response
}

func (s *streamBody) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

func (s *streamBody) Close() error {
	err := s.resp.CloseBodyStream()
	fasthttp.ReleaseResponse(s.resp)
	return err
}

var _ model.IDataDB = &DataDB{}
