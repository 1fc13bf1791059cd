// Package report implements error reporting for background workers.
package report

import (
	"sort"
	"strings"

	"github.com/book-expert/logger"
)

// LogReporter writes failures to the service log. It implements
// core.ErrorReporter.
type LogReporter struct {
	log *logger.Logger
}

// NewLogReporter creates a reporter backed by the given logger.
func NewLogReporter(log *logger.Logger) *LogReporter {
	return &LogReporter{log: log}
}

// Report records the failure with its context attached. It never fails
// the operation that reports.
func (r *LogReporter) Report(err error, context map[string]string) {
	if err == nil {
		return
	}

	if len(context) == 0 {
		r.log.Error("Reported failure: %v", err)

		return
	}

	keys := make([]string, 0, len(context))
	for key := range context {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+context[key])
	}

	r.log.Error("Reported failure: %v (%s)", err, strings.Join(pairs, " "))
}
