package service

import (
	"context"
	"time"

	"github.com/metrico/loghouse/reader/config"
	"github.com/metrico/loghouse/reader/logql/transpiler"
	"github.com/metrico/loghouse/reader/model"
	"github.com/metrico/loghouse/reader/utils/dbVersion"
	"github.com/metrico/loghouse/reader/utils/logger"
)

const (
	FORMAT_JSON = "json"
	FORMAT_CSV  = "csv"
)

// QueryRangeService compiles, runs and assembles range and instant queries.
type QueryRangeService struct {
	DB              model.IDataDB
	VersionProvider *dbVersion.Provider
	Cfg             *config.Settings
}

type QueryRangeParams struct {
	Query   string
	From    time.Time
	To      time.Time
	Step    time.Duration
	Limit   int64
	Forward bool
	Instant bool
	Format  string
}

// QueryRange buffers the whole response body. Transports that can stream
// should use QueryRangeSink instead.
func (q *QueryRangeService) QueryRange(ctx context.Context,
	params QueryRangeParams) (string, error) {
	sink := &builderSink{}
	err := q.QueryRangeSink(ctx, params, sink)
	return sink.b.String(), err
}

// QueryRangeSink runs the query and assembles the response into the sink
// group by group, holding no more than the group under assembly.
func (q *QueryRangeService) QueryRangeSink(ctx context.Context,
	params QueryRangeParams, sink model.ISink) error {
	info, err := q.VersionProvider.GetVersionInfo(ctx)
	if err != nil {
		return err
	}

	cq, err := transpiler.Transpile(params.Query, transpiler.Settings{
		From:         params.From,
		To:           params.To,
		Limit:        params.Limit,
		Step:         params.Step,
		OrderASC:     params.Forward,
		DBName:       q.Cfg.ClickHouse.Database,
		IsCluster:    q.Cfg.ClickHouse.Cluster,
		VersionInfo:  info,
		Finalize:     true,
		SummaryLimit: int64(q.Cfg.AdvancedSummaryLimit),
	})
	if err != nil {
		return err
	}
	logger.Debug("query range sql: ", cq.Query)

	cq.Ctx.Ctx = ctx
	body, err := q.DB.QueryStream(ctx, cq.Query+" FORMAT JSONEachRow")
	if err != nil {
		return err
	}
	defer body.Close()

	entries := DecodeRows(cq.Ctx, body)
	for _, proc := range cq.Processors {
		entries = proc(cq.Ctx, entries)
	}

	switch {
	case params.Format == FORMAT_CSV:
		return WriteCSV(entries, cq.Matrix, cq.Duration.Milliseconds(),
			params.Step.Milliseconds(), sink)
	case cq.Matrix && params.Instant:
		return WriteVector(entries, sink)
	case cq.Matrix:
		return WriteMatrix(entries, cq.Duration.Milliseconds(),
			params.Step.Milliseconds(), sink)
	default:
		return WriteStreams(entries, sink)
	}
}
