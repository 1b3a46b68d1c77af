package clickhouse_planner

import (
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// SeriesPlanner returns the distinct label sets behind a fingerprint
// selection, for the series discovery endpoint.
type SeriesPlanner struct {
	Fingerprints shared.SQLRequestPlanner
}

func (s *SeriesPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	fpSel, err := s.Fingerprints.Process(ctx)
	if err != nil {
		return nil, err
	}

	withFpSel := sql.NewWith(fpSel, "fp_sel")
	res := sql.NewSelect().
		Distinct(true).
		With(withFpSel).
		Select(sql.NewSimpleCol("time_series.labels", "labels")).
		From(sql.NewRawObject(ctx.TimeSeriesDistTableName + " as time_series")).
		AndWhere(
			sql.NewIn(sql.NewRawObject("time_series.fingerprint"), sql.NewWithRef(withFpSel)),
			sql.Ge(sql.NewRawObject("time_series.date"), sql.NewStringVal(FormatFromDate(ctx.From))),
			GetTypes(ctx))
	if ctx.Limit > 0 {
		res.Limit(sql.NewIntVal(ctx.Limit))
	}
	return res, nil
}

// UnionPlanner joins several fingerprint requests with UNION ALL, one per
// selector of a multi-selector series request.
type UnionPlanner struct {
	Mains []shared.SQLRequestPlanner
}

func (u *UnionPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	head, err := u.Mains[0].Process(ctx)
	if err != nil {
		return nil, err
	}

	anothers := make([]sql.ISelect, len(u.Mains)-1)
	for i, m := range u.Mains[1:] {
		anothers[i], err = m.Process(ctx)
		if err != nil {
			return nil, err
		}
	}

	return &UnionAll{ISelect: head, Anothers: anothers}, nil
}
