package shared

import (
	"time"

	"github.com/metrico/loghouse/reader/logql/logql_parser"
)

// GetDuration returns the range window of the script, zero if it has none.
func GetDuration(script *logql_parser.LogQLScript) (time.Duration, error) {
	if lra := logql_parser.FindFirst[logql_parser.LRAOrUnwrap](script); lra != nil {
		return time.ParseDuration(lra.Time + lra.TimeUnit)
	}
	if q := logql_parser.FindFirst[logql_parser.QuantileOverTime](script); q != nil {
		return time.ParseDuration(q.Time + q.TimeUnit)
	}
	return 0, nil
}

func GetStrSelector(script *logql_parser.LogQLScript) *logql_parser.StrSelector {
	return logql_parser.FindFirst[logql_parser.StrSelector](script)
}
