package clickhouse_planner

import (
	"github.com/metrico/loghouse/reader/logql/transpiler/shared"
	sql "github.com/metrico/loghouse/reader/utils/sql_select"
)

// FingerprintFilterPlanner narrows the main request to the fingerprints the
// selector sub-request returns, shared through a WITH so the set is computed
// once.
type FingerprintFilterPlanner struct {
	FingerprintsSelectPlanner shared.SQLRequestPlanner
	MainRequestPlanner        shared.SQLRequestPlanner
	FingerprintsAlias         string

	// set during Process, reused by the labels join
	FpCache *sql.With
}

func (f *FingerprintFilterPlanner) Process(ctx *shared.PlannerContext) (sql.ISelect, error) {
	fpSel, err := f.FingerprintsSelectPlanner.Process(ctx)
	if err != nil {
		return nil, err
	}

	main, err := f.MainRequestPlanner.Process(ctx)
	if err != nil {
		return nil, err
	}

	alias := f.FingerprintsAlias
	if alias == "" {
		alias = "fp_sel"
	}

	withFpSel := sql.NewWith(fpSel, alias)
	f.FpCache = withFpSel
	return main.AddWith(withFpSel).
		AndWhere(sql.NewIn(sql.NewRawObject("samples.fingerprint"),
			sql.NewWithRef(withFpSel))), nil
}
