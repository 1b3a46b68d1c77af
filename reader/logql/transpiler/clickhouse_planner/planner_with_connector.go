package clickhouse_planner

import (
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// WithConnectorPlanner moves the main request into a WITH and starts a fresh
// select over it, so later stages can re-project without nesting subqueries.
type WithConnectorPlanner struct {
	Main      shared.SQLRequestPlanner
	With      string
	WithCache *sql.With

	ProjectCols []sql.SQLObject
}

func (w *WithConnectorPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	main, err := w.Main.Process(ctx)
	if err != nil {
		return nil, err
	}

	w.WithCache = sql.NewWith(main, w.With)

	cols := w.ProjectCols
	if cols == nil {
		cols = []sql.SQLObject{sql.NewRawObject("*")}
	}

	return sql.NewSelect().
		With(w.WithCache).
		Select(cols...).
		From(sql.NewWithRef(w.WithCache)), nil
}
