package clickhouse_planner

import (
	"strconv"
	"time"

	"github.com/metrico/loghouse/reader/logql/logql_parser"
	"github.com/metrico/loghouse/reader/logql/transpiler/internal_planner"
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// Plan compiles a parsed script into a SQL planner chain plus the in-process
// stages to run over the decoded result stream, in order.
func Plan(script *logql_parser.LogQLScript) (shared.SQLRequestPlanner, []shared.StreamProcessor, error) {
	p := &planner{script: script}
	res, err := p.plan()
	if err != nil {
		return nil, nil, err
	}
	return res, p.processors, nil
}

// PlanFingerprints compiles just the fingerprint selection of one selector,
// with eligible label filters pushed down.
func PlanFingerprints(sel *logql_parser.StrSelector) (shared.SQLRequestPlanner, error) {
	return (&planner{}).planFingerprints(sel)
}

type planner struct {
	script *logql_parser.LogQLScript

	fpFilter     *FingerprintFilterPlanner
	labelsJoined bool
	streamSide   bool
	processors   []shared.StreamProcessor
}

func (p *planner) plan() (shared.SQLRequestPlanner, error) {
	switch {
	case p.script.Macros != nil:
		return nil, &shared.NotSupportedError{Msg: "macro must be expanded before planning"}
	case p.script.StrSelector != nil:
		return p.planRawSelection(p.script.StrSelector)
	case p.script.Summary != nil:
		return p.planSummary(p.script.Summary)
	case p.script.LRAOrUnwrap != nil:
		return p.planLRAOrUnwrap(p.script.LRAOrUnwrap)
	case p.script.AggOperator != nil:
		return p.planAggOp(p.script.AggOperator)
	case p.script.TopK != nil:
		return p.planTopK(p.script.TopK)
	case p.script.QuantileOverTime != nil:
		return p.planQuantile(p.script.QuantileOverTime)
	}
	return nil, &shared.NotSupportedError{Msg: "empty query"}
}

func (p *planner) planRawSelection(sel *logql_parser.StrSelector) (shared.SQLRequestPlanner, error) {
	main, err := p.planPipeline(sel, false)
	if err != nil {
		return nil, err
	}

	main = &WithConnectorPlanner{Main: main, With: "sel_a"}
	main = &MainOrderByPlanner{Cols: []string{"timestamp_ns"}, Main: main}
	main = &MainLimitPlanner{Main: main}
	if !p.labelsJoined {
		// labels are joined after the limit so the join touches only the
		// rows that survive
		main = p.joinLabels(main)
	} else {
		main = &MainRenewPlanner{Main: main, UseLabels: true}
	}
	// the assembler groups on label change, the final rows must arrive
	// series by series
	main = &MainOrderByPlanner{Cols: []string{"labels", "timestamp_ns"}, Main: main}
	return &MainFinalizerPlanner{Main: main}, nil
}

func (p *planner) planSummary(s *logql_parser.Summary) (shared.SQLRequestPlanner, error) {
	main, err := p.planPipeline(&s.StrSel, false)
	if err != nil {
		return nil, err
	}
	if p.streamSide {
		return nil, &shared.NotSupportedError{
			Msg: "summary over in-process pipeline stages is not supported"}
	}
	return &SummaryPlanner{Main: main}, nil
}

func (p *planner) planLRAOrUnwrap(l *logql_parser.LRAOrUnwrap) (shared.SQLRequestPlanner, error) {
	duration, err := time.ParseDuration(l.Time + l.TimeUnit)
	if err != nil {
		return nil, err
	}

	if unsupportedRangeFns[l.Fn] {
		return nil, &shared.NotSupportedError{Msg: l.Fn + " is not supported"}
	}

	full, err := p.planLRAFull(l, duration)
	if err != nil {
		return nil, err
	}

	if !metrics15Eligible(l) {
		return full, nil
	}
	shortcut, err := p.planMetrics15(l, duration)
	if err != nil {
		return nil, err
	}
	return &metrics15Decider{shortcut: shortcut, full: full}, nil
}

func (p *planner) planLRAFull(l *logql_parser.LRAOrUnwrap,
	duration time.Duration) (shared.SQLRequestPlanner, error) {
	unwrap := findUnwrap(&l.StrSel)
	_, isLRA := logRangeAggregationRegistry[l.Fn]
	_, isUnwrapFn := unwrapFunctionRegistry[l.Fn]

	if unwrap == nil && !isLRA {
		return nil, &shared.NotSupportedError{Msg: l.Fn + " requires an unwrap stage"}
	}
	if unwrap != nil && !isUnwrapFn {
		return nil, &shared.NotSupportedError{Msg: l.Fn + " over unwrapped values is not supported"}
	}

	main, err := p.planPipeline(&l.StrSel, true)
	if err != nil {
		return nil, err
	}

	if unwrap != nil {
		main = &UnwrapFunctionPlanner{
			Main: main, Func: l.Fn, Duration: duration, UseLabels: true}
	} else {
		main = &LRAPlanner{Main: main, Func: l.Fn, Duration: duration, UseLabels: true}
	}

	if byWithout := oneOf(l.ByOrWithoutPrefix, l.ByOrWithoutSuffix); byWithout != nil {
		main = &ByWithoutPlanner{
			Main:   main,
			By:     byWithout.Fn == "by",
			Labels: byWithout.LabelNames(),
		}
	}
	main = &StepFixPlanner{Main: main, Duration: duration}

	if l.Comparison != nil {
		main = &ComparisonPlanner{Main: main, Comparison: l.Comparison}
	}
	return main, nil
}

func metrics15Eligible(l *logql_parser.LRAOrUnwrap) bool {
	if l.Fn != "rate" && l.Fn != "count_over_time" {
		return false
	}
	if len(l.StrSel.Pipelines) > 0 {
		return false
	}
	duration, err := time.ParseDuration(l.Time + l.TimeUnit)
	if err != nil {
		return false
	}
	return duration >= 15*time.Second && duration%(15*time.Second) == 0
}

func (p *planner) planMetrics15(l *logql_parser.LRAOrUnwrap,
	duration time.Duration) (shared.SQLRequestPlanner, error) {
	fp, err := p.planFingerprints(&l.StrSel)
	if err != nil {
		return nil, err
	}

	var main shared.SQLRequestPlanner = &Metrics15ShortcutPlanner{
		Func:         l.Fn,
		Duration:     duration,
		Fingerprints: fp,
	}
	main = &StepFixPlanner{Main: main, Duration: duration}
	if l.Comparison != nil {
		main = &ComparisonPlanner{Main: main, Comparison: l.Comparison}
	}
	return main, nil
}

// metrics15Decider picks the pre-aggregated path only when the schema
// version watermark confirms the table covers the whole window.
type metrics15Decider struct {
	shortcut shared.SQLRequestPlanner
	full     shared.SQLRequestPlanner
}

func (m *metrics15Decider) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	if ctx.VersionInfo.IsVersionSupported("v5", ctx.From.UnixNano(), ctx.To.UnixNano()) {
		return m.shortcut.Process(ctx)
	}
	return m.full.Process(ctx)
}

func (p *planner) planAggOp(a *logql_parser.AggOperator) (shared.SQLRequestPlanner, error) {
	main, err := p.planLRAOrUnwrap(&a.LRAOrUnwrap)
	if err != nil {
		return nil, err
	}

	grouping := oneOf(a.ByOrWithoutPrefix, a.ByOrWithoutSuffix)
	if grouping != nil {
		main = &ByWithoutPlanner{
			Main:   main,
			By:     grouping.Fn == "by",
			Labels: grouping.LabelNames(),
		}
	}

	main = &AggOpPlanner{Main: main, Func: a.Fn, Grouped: grouping != nil}
	if a.Comparison != nil {
		main = &ComparisonPlanner{Main: main, Comparison: a.Comparison}
	}
	return main, nil
}

func (p *planner) planTopK(t *logql_parser.TopK) (shared.SQLRequestPlanner, error) {
	k, err := strconv.ParseInt(t.Param, 10, 64)
	if err != nil {
		return nil, err
	}

	var main shared.SQLRequestPlanner
	switch {
	case t.LRAOrUnwrap != nil:
		main, err = p.planLRAOrUnwrap(t.LRAOrUnwrap)
	case t.AggOperator != nil:
		main, err = p.planAggOp(t.AggOperator)
	case t.QuantileOverTime != nil:
		main, err = p.planQuantile(t.QuantileOverTime)
	}
	if err != nil {
		return nil, err
	}

	main = &TopKPlanner{Main: main, K: k, Desc: t.Fn == "topk"}
	if t.Comparison != nil {
		main = &ComparisonPlanner{Main: main, Comparison: t.Comparison}
	}
	return main, nil
}

func (p *planner) planQuantile(q *logql_parser.QuantileOverTime) (shared.SQLRequestPlanner, error) {
	duration, err := time.ParseDuration(q.Time + q.TimeUnit)
	if err != nil {
		return nil, err
	}
	param, err := strconv.ParseFloat(q.Param, 64)
	if err != nil {
		return nil, err
	}

	if findUnwrap(&q.StrSel) == nil {
		return nil, &shared.NotSupportedError{Msg: "quantile_over_time requires an unwrap stage"}
	}

	main, err := p.planPipeline(&q.StrSel, true)
	if err != nil {
		return nil, err
	}

	main = &UnwrapFunctionPlanner{
		Main:      main,
		Func:      "quantile_over_time",
		Duration:  duration,
		Param:     param,
		UseLabels: true,
	}

	if byWithout := oneOf(q.ByOrWithoutPrefix, q.ByOrWithoutSuffix); byWithout != nil {
		main = &ByWithoutPlanner{
			Main:   main,
			By:     byWithout.Fn == "by",
			Labels: byWithout.LabelNames(),
		}
	}
	main = &StepFixPlanner{Main: main, Duration: duration}
	if q.Comparison != nil {
		main = &ComparisonPlanner{Main: main, Comparison: q.Comparison}
	}
	return main, nil
}

// planPipeline lowers the selector and its stages. Stages after the first
// in-process stage stay in process, the SQL request no longer sees their
// effects.
func (p *planner) planPipeline(sel *logql_parser.StrSelector,
	needLabels bool) (shared.SQLRequestPlanner, error) {
	fp, err := p.planFingerprints(sel)
	if err != nil {
		return nil, err
	}

	p.fpFilter = &FingerprintFilterPlanner{
		FingerprintsSelectPlanner: fp,
		MainRequestPlanner:        &MainInitPlanner{},
	}
	var main shared.SQLRequestPlanner = p.fpFilter

	pushed := pushedDownFilters(sel)

	for i, stage := range sel.Pipelines {
		switch {
		case stage.LineFilter != nil:
			main, err = p.planLineFilter(stage.LineFilter, main)
		case stage.Parser != nil:
			main, err = p.planParser(stage.Parser, main)
		case stage.LabelFilter != nil:
			if pushed[i] {
				continue
			}
			main, err = p.planLabelFilter(stage.LabelFilter, main)
		case stage.LineFormat != nil:
			main, err = p.planLineFormat(stage.LineFormat, main)
		case stage.LabelFormat != nil:
			return nil, &shared.NotSupportedError{Msg: "label_format is not supported"}
		case stage.Unwrap != nil:
			main, err = p.planUnwrap(stage.Unwrap, main)
		}
		if err != nil {
			return nil, err
		}
	}

	if needLabels && !p.labelsJoined {
		main = p.joinLabels(main)
	}
	return main, nil
}

func (p *planner) planLineFilter(f *logql_parser.LineFilter,
	main shared.SQLRequestPlanner) (shared.SQLRequestPlanner, error) {
	val, err := f.Val.Unquote()
	if err != nil {
		return nil, err
	}
	if p.streamSide {
		proc, err := internal_planner.NewLineFilterProcessor(f.Fn, val)
		if err != nil {
			return nil, err
		}
		p.processors = append(p.processors, proc)
		return main, nil
	}
	return &LineFilterPlanner{Op: f.Fn, Val: val, Main: main}, nil
}

func (p *planner) planParser(parser *logql_parser.Parser,
	main shared.SQLRequestPlanner) (shared.SQLRequestPlanner, error) {
	if p.streamSide && (parser.Fn == "regexp" || len(parser.ParserParams) > 0) {
		return nil, &shared.NotSupportedError{
			Msg: "parser after an in-process stage is not supported"}
	}

	if !p.labelsJoined {
		main = p.joinLabels(main)
	}

	switch {
	case parser.Fn == "regexp" || (parser.Fn == "json" && len(parser.ParserParams) > 0):
		pp, err := NewParserPlanner(parser, main)
		if err != nil {
			return nil, err
		}
		return &MainRenewPlanner{Main: pp, UseLabels: true}, nil
	case parser.Fn == "json":
		p.streamSide = true
		p.processors = append(p.processors, internal_planner.NewJsonParserProcessor())
		return main, nil
	case parser.Fn == "logfmt":
		p.streamSide = true
		p.processors = append(p.processors, internal_planner.NewLogfmtParserProcessor())
		return main, nil
	}
	return nil, &shared.NotSupportedError{Msg: "parser " + parser.Fn + " is not supported"}
}

func (p *planner) planLabelFilter(f *logql_parser.LabelFilter,
	main shared.SQLRequestPlanner) (shared.SQLRequestPlanner, error) {
	if p.streamSide {
		proc, err := internal_planner.NewLabelFilterProcessor(f)
		if err != nil {
			return nil, err
		}
		p.processors = append(p.processors, proc)
		return main, nil
	}
	if !p.labelsJoined {
		main = p.joinLabels(main)
	}
	return &LabelFilterPlanner{Filter: f, Main: main}, nil
}

func (p *planner) planLineFormat(f *logql_parser.LineFormat,
	main shared.SQLRequestPlanner) (shared.SQLRequestPlanner, error) {
	tpl, err := f.Val.Unquote()
	if err != nil {
		return nil, err
	}

	lf := &LineFormatPlanner{Template: tpl, Main: main}
	if !p.streamSide && lf.IsSupported() {
		if !p.labelsJoined {
			lf.Main = p.joinLabels(main)
		}
		return lf, nil
	}

	if !p.labelsJoined {
		main = p.joinLabels(main)
	}
	proc, err := internal_planner.NewLineFormatProcessor(tpl)
	if err != nil {
		return nil, err
	}
	p.streamSide = true
	p.processors = append(p.processors, proc)
	return main, nil
}

func (p *planner) planUnwrap(u *logql_parser.Unwrap,
	main shared.SQLRequestPlanner) (shared.SQLRequestPlanner, error) {
	if p.streamSide {
		return nil, &shared.NotSupportedError{
			Msg: "unwrap after an in-process stage is not supported"}
	}
	if u.Fn != "unwrap_value" && u.Label.Name != "_entry" && !p.labelsJoined {
		main = p.joinLabels(main)
	}
	return &UnwrapPlanner{Main: main, Fn: u.Fn, Label: u.Label.Name}, nil
}

func (p *planner) joinLabels(main shared.SQLRequestPlanner) shared.SQLRequestPlanner {
	fpf := p.fpFilter
	p.labelsJoined = true
	return &LabelsJoinPlanner{
		Main:    main,
		FpCache: func() *sql.With { return fpf.FpCache },
	}
}

// planFingerprints builds the fingerprint request for a selector, pushing
// label filters that precede any parser stage down to the time series table.
func (p *planner) planFingerprints(sel *logql_parser.StrSelector) (shared.SQLRequestPlanner, error) {
	res, err := NewStreamSelectPlanner(sel)
	if err != nil {
		return nil, err
	}

	var main shared.SQLRequestPlanner = res
	pushed := pushedDownFilters(sel)
	for i := range sel.Pipelines {
		if pushed[i] {
			main = &SimpleLabelFilterPlanner{
				Filter: sel.Pipelines[i].LabelFilter,
				Main:   main,
			}
		}
	}
	return main, nil
}

// pushedDownFilters marks label filter stages that run before any stage able
// to add or rewrite labels, those can narrow the fingerprint set directly.
func pushedDownFilters(sel *logql_parser.StrSelector) map[int]bool {
	res := map[int]bool{}
	for i, stage := range sel.Pipelines {
		if stage.Parser != nil || stage.LineFormat != nil || stage.LabelFormat != nil {
			break
		}
		if stage.LabelFilter != nil {
			res[i] = true
		}
	}
	return res
}

func findUnwrap(sel *logql_parser.StrSelector) *logql_parser.Unwrap {
	for _, stage := range sel.Pipelines {
		if stage.Unwrap != nil {
			return stage.Unwrap
		}
	}
	return nil
}

func oneOf(prefix *logql_parser.ByOrWithout,
	suffix *logql_parser.ByOrWithout) *logql_parser.ByOrWithout {
	if prefix != nil {
		return prefix
	}
	return suffix
}
