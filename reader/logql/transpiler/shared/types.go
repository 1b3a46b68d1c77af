package shared

import (
	"context"
	"time"

	"github.com/metrico/loghouse/reader/utils/dbVersion"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

const SAMPLES_TYPE_BOTH = 0
const SAMPLES_TYPE_LOGS = 1
const SAMPLES_TYPE_METRICS = 2

// Late-bound plan parameter names. Planners reference these via sql.CtxParam;
// the transpiler binds the values on the sql.Ctx right before rendering.
const (
	ParamSamplesTable    = "samplesTable"
	ParamTimeSeriesTable = "timeSeriesTable"
	ParamFrom            = "from"
	ParamTo              = "to"
	ParamLimit           = "limit"
	ParamIsMatrix        = "isMatrix"
)

type PlannerContext struct {
	IsCluster bool
	From      time.Time
	To        time.Time
	OrderASC  bool
	Limit     int64

	TimeSeriesGinTableName  string
	SamplesTableName        string
	TimeSeriesTableName     string
	TimeSeriesDistTableName string
	Metrics15sTableName     string

	Ctx context.Context

	// render the canonical final projection around stream requests
	CHFinalize bool

	Step time.Duration

	Type uint8

	id int

	VersionInfo dbVersion.VersionInfo
}

func (p *PlannerContext) Id() int {
	p.id++
	return p.id
}

type SQLRequestPlanner interface {
	Process(ctx *PlannerContext) (sql.ISelect, error)
}

// LogEntry is one decoded result row. Stream rows carry nanosecond
// timestamps; matrix rows carry milliseconds because the plan's time getter
// already divides. EOF marks the flush terminator.
type LogEntry struct {
	TimestampNS int64
	Fingerprint uint64
	Labels      map[string]string
	Message     string
	Value       float64

	EOF bool
	Err error
}

// StreamProcessor is an in-process pipeline stage applied to the decoded row
// stream, for operations the SQL backend does not perform.
type StreamProcessor func(ctx *PlannerContext, in chan []LogEntry) chan []LogEntry
