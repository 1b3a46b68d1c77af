package shared

import (
	"fmt"
	"runtime/debug"

	"github.com/metrico/loghouse/reader/utils/logger"
)

// NotSupportedError marks a syntactically valid construct the SQL backend
// cannot express.
type NotSupportedError struct {
	Msg string
}

func (n *NotSupportedError) Error() string {
	return n.Msg
}

func IsNotSupportedError(e error) bool {
	_, ok := e.(*NotSupportedError)
	return ok
}

func TamePanic(out chan []LogEntry) {
	if err := recover(); err != nil {
		logger.Error(err, " stack:", string(debug.Stack()))
		out <- []LogEntry{{Err: fmt.Errorf("panic: %v", err)}}
		recover()
	}
}
