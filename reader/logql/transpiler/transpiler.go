package transpiler

import (
	"fmt"
	"sync"
	"time"

	"github.com/metrico/loghouse/reader/logql/logql_parser"
	"github.com/metrico/loghouse/reader/logql/transpiler/clickhouse_planner"
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	"github.com/metrico/loghouse/reader/utils/dbVersion"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
	"github.com/metrico/loghouse/reader/utils/tables"
)

// Settings is everything a compilation needs besides the query text.
type Settings struct {
	From  time.Time
	To    time.Time
	Limit int64
	Step  time.Duration

	OrderASC bool

	DBName    string
	IsCluster bool

	VersionInfo dbVersion.VersionInfo

	// wrap stream requests in the canonical final projection
	Finalize bool

	// row cap for summary requests, 2000 when zero
	SummaryLimit int64
}

// CompiledQuery is a rendered request plus the in-process stages and the
// result shape the assembler needs.
type CompiledQuery struct {
	Query      string
	Matrix     bool
	Summary    bool
	Duration   time.Duration
	Step       time.Duration
	Processors []shared.StreamProcessor
	Ctx        *shared.PlannerContext
}

const maxMacroDepth = 10

var macroMtx sync.RWMutex
var macroRegistry = map[string]func(op *logql_parser.MacrosOp) (string, error){}

// RegisterMacro binds a macro name to its expansion. The expanded text is
// parsed and compiled like any other query, recursively up to a fixed depth.
func RegisterMacro(name string, expand func(op *logql_parser.MacrosOp) (string, error)) {
	macroMtx.Lock()
	defer macroMtx.Unlock()
	macroRegistry[name] = expand
}

func expandMacros(script *logql_parser.LogQLScript, depth int) (*logql_parser.LogQLScript, error) {
	if script.Macros == nil {
		return script, nil
	}
	if depth >= maxMacroDepth {
		return nil, fmt.Errorf("macro expansion exceeded %d levels", maxMacroDepth)
	}

	macroMtx.RLock()
	expand, ok := macroRegistry[script.Macros.Name]
	macroMtx.RUnlock()
	if !ok {
		return nil, &shared.NotSupportedError{
			Msg: fmt.Sprintf("unknown macro %s", script.Macros.Name)}
	}

	expanded, err := expand(script.Macros)
	if err != nil {
		return nil, err
	}
	res, err := logql_parser.Parse(expanded)
	if err != nil {
		return nil, err
	}
	return expandMacros(res, depth+1)
}

// Transpile compiles a log or metric query into a rendered SQL request.
func Transpile(query string, settings Settings) (*CompiledQuery, error) {
	script, err := logql_parser.Parse(query)
	if err != nil {
		return nil, err
	}
	script, err = expandMacros(script, 0)
	if err != nil {
		return nil, err
	}

	matrix := isMetricQuery(script)

	duration, err := shared.GetDuration(script)
	if err != nil {
		return nil, err
	}
	if matrix && duration == 0 {
		duration = time.Millisecond * 1000
	}

	from, to := settings.From, settings.To
	if matrix {
		from, to = alignWindow(from, to, duration)
	}

	ctx := plannerContext(from, to, settings)
	if findUnwrapValue(script) {
		ctx.Type = shared.SAMPLES_TYPE_METRICS
	}

	plan, processors, err := clickhouse_planner.Plan(script)
	if err != nil {
		return nil, err
	}

	req, err := plan.Process(ctx)
	if err != nil {
		return nil, err
	}

	sqlCtx := sql.NewCtx()
	bindTimeParams(sqlCtx, ctx)
	switch {
	case script.Summary != nil:
		limit := settings.SummaryLimit
		if limit == 0 {
			limit = 2000
		}
		sqlCtx.Params[shared.ParamLimit] = sql.NewIntVal(limit)
	case matrix:
		sqlCtx.Params[shared.ParamIsMatrix] = sql.NewRawObject("true")
	case settings.Limit > 0:
		sqlCtx.Params[shared.ParamLimit] = sql.NewIntVal(settings.Limit)
	}

	res, err := req.String(sqlCtx)
	if err != nil {
		return nil, err
	}

	return &CompiledQuery{
		Query:      res,
		Matrix:     matrix,
		Summary:    script.Summary != nil,
		Duration:   duration,
		Step:       ctx.Step,
		Processors: processors,
		Ctx:        ctx,
	}, nil
}

// TailQuery is a compiled live tail request. The lower time bound is bound
// per poll, the first one is evaluated by the database itself.
type TailQuery struct {
	Req        sql.ISelect
	Processors []shared.StreamProcessor
	Ctx        *shared.PlannerContext
}

// Render binds the poll window. fromNs zero renders the initial request
// starting five seconds before the database clock.
func (t *TailQuery) Render(fromNs int64) (string, error) {
	sqlCtx := sql.NewCtx()
	if fromNs == 0 {
		sqlCtx.Params[shared.ParamFrom] =
			sql.NewRawObject("(toUnixTimestamp(now()) - 5) * 1000000000")
	} else {
		sqlCtx.Params[shared.ParamFrom] = sql.NewIntVal(fromNs)
	}
	sqlCtx.Params[shared.ParamTo] =
		sql.NewRawObject("toUnixTimestamp(now()) * 1000000000")
	sqlCtx.Params[shared.ParamSamplesTable] = sql.NewRawObject(t.Ctx.SamplesTableName)
	return t.Req.String(sqlCtx)
}

// TranspileTail compiles a live tail request. Aggregations and macros cannot
// be tailed.
func TranspileTail(query string, settings Settings) (*TailQuery, error) {
	script, err := logql_parser.Parse(query)
	if err != nil {
		return nil, err
	}
	if script.StrSelector == nil {
		return nil, &shared.NotSupportedError{Msg: "only stream selection queries can be tailed"}
	}

	settings.OrderASC = true
	settings.Limit = 0
	ctx := plannerContext(time.Now().Add(-5*time.Second), time.Now(), settings)
	ctx.OrderASC = true

	plan, processors, err := clickhouse_planner.Plan(script)
	if err != nil {
		return nil, err
	}

	req, err := plan.Process(ctx)
	if err != nil {
		return nil, err
	}

	return &TailQuery{Req: req, Processors: processors, Ctx: ctx}, nil
}

// TranspileSeries compiles a series discovery request over one or more
// selectors into a single distinct labels query.
func TranspileSeries(requests []string, settings Settings) (string, error) {
	if len(requests) == 0 {
		return "", fmt.Errorf("at least one selector required")
	}

	planners := make([]shared.SQLRequestPlanner, len(requests))
	for i, request := range requests {
		script, err := logql_parser.ParseSeries(request)
		if err != nil {
			return "", err
		}
		sel := shared.GetStrSelector(script)
		if sel == nil {
			return "", fmt.Errorf("invalid series selector %s", request)
		}
		planners[i], err = clickhouse_planner.PlanFingerprints(sel)
		if err != nil {
			return "", err
		}
	}

	ctx := plannerContext(settings.From, settings.To, settings)
	plan := &clickhouse_planner.SeriesPlanner{
		Fingerprints: &clickhouse_planner.UnionPlanner{Mains: planners},
	}

	req, err := plan.Process(ctx)
	if err != nil {
		return "", err
	}

	sqlCtx := sql.NewCtx()
	bindTimeParams(sqlCtx, ctx)
	return req.String(sqlCtx)
}

func plannerContext(from time.Time, to time.Time, settings Settings) *shared.PlannerContext {
	samplesTable := tables.GetSamplesReadTable(settings.VersionInfo,
		from.UnixNano(), to.UnixNano())

	return &shared.PlannerContext{
		IsCluster:  settings.IsCluster,
		From:       from,
		To:         to,
		OrderASC:   settings.OrderASC,
		Limit:      settings.Limit,
		Step:       settings.Step,
		CHFinalize: settings.Finalize,

		SamplesTableName: tables.QualifyTableName(settings.DBName,
			samplesTable, settings.IsCluster),
		TimeSeriesTableName: tables.QualifyTableName(settings.DBName,
			tables.GetTableName("time_series"), false),
		TimeSeriesDistTableName: tables.QualifyTableName(settings.DBName,
			tables.GetTableName("time_series"), settings.IsCluster),
		TimeSeriesGinTableName: tables.QualifyTableName(settings.DBName,
			tables.GetTableName("time_series_gin"), settings.IsCluster),
		Metrics15sTableName: tables.QualifyTableName(settings.DBName,
			tables.GetTableName("metrics_15s"), settings.IsCluster),

		Type:        shared.SAMPLES_TYPE_BOTH,
		VersionInfo: settings.VersionInfo,
	}
}

func bindTimeParams(sqlCtx *sql.Ctx, ctx *shared.PlannerContext) {
	sqlCtx.Params[shared.ParamFrom] = sql.NewIntVal(ctx.From.UnixNano())
	sqlCtx.Params[shared.ParamTo] = sql.NewIntVal(ctx.To.UnixNano())
	sqlCtx.Params[shared.ParamSamplesTable] = sql.NewRawObject(ctx.SamplesTableName)
	sqlCtx.Params[shared.ParamTimeSeriesTable] = sql.NewRawObject(ctx.TimeSeriesDistTableName)
}

// alignWindow widens the range to whole windows so the first and last buckets
// are complete.
func alignWindow(from time.Time, to time.Time, duration time.Duration) (time.Time, time.Time) {
	durMs := duration.Milliseconds()
	fromMs := from.UnixMilli() / durMs * durMs
	toMs := (to.UnixMilli() + durMs - 1) / durMs * durMs
	return time.UnixMilli(fromMs), time.UnixMilli(toMs)
}

func isMetricQuery(script *logql_parser.LogQLScript) bool {
	return script.LRAOrUnwrap != nil || script.AggOperator != nil ||
		script.TopK != nil || script.QuantileOverTime != nil
}

func findUnwrapValue(script *logql_parser.LogQLScript) bool {
	u := logql_parser.FindFirst[logql_parser.Unwrap](script)
	return u != nil && u.Fn == "unwrap_value"
}
