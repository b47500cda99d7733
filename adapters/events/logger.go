package events

import (
	"sort"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/layer-3/chainauth/internal/log"
)

var _ watermill.LoggerAdapter = (*watermillLogger)(nil)

type watermillLogger struct {
	lg log.Logger
}

// NewWatermillLogger routes watermill's logs to lg. Trace goes to debug.
func NewWatermillLogger(lg log.Logger) watermill.LoggerAdapter {
	if lg == nil {
		lg = log.NewNoopLogger()
	}
	return &watermillLogger{lg: lg.WithName("watermill")}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.lg.Error(msg, append(keyValues(fields), "error", err)...)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.lg.Info(msg, keyValues(fields)...)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.lg.Debug(msg, keyValues(fields)...)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.lg.Debug(msg, keyValues(fields)...)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	lg := l.lg
	for _, k := range sortedKeys(fields) {
		lg = lg.WithKV(k, fields[k])
	}
	return &watermillLogger{lg: lg}
}

func keyValues(fields watermill.LogFields) []any {
	kv := make([]any, 0, 2*len(fields))
	for _, k := range sortedKeys(fields) {
		kv = append(kv, k, fields[k])
	}
	return kv
}

func sortedKeys(fields watermill.LogFields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
