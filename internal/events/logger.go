package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/oggyb/wa-notifier/internal/logging"
	"github.com/rs/zerolog"
)

// zerologAdapter lets watermill write through the process logger.
type zerologAdapter struct {
	fields watermill.LogFields
}

// NewLogger returns a watermill.LoggerAdapter backed by zerolog.
func NewLogger() watermill.LoggerAdapter {
	return zerologAdapter{}
}

func (a zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.emit(logging.Error().Err(err), msg, fields)
}

func (a zerologAdapter) Info(msg string, fields watermill.LogFields) {
	a.emit(logging.Info(), msg, fields)
}

func (a zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	a.emit(logging.Debug(), msg, fields)
}

// Trace is folded into debug; zerolog's trace level is never enabled here.
func (a zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	a.emit(logging.Debug(), msg, fields)
}

func (a zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return zerologAdapter{fields: a.fields.Add(fields)}
}

func (a zerologAdapter) emit(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	ev.Fields(map[string]interface{}(a.fields.Add(fields))).Msg("[Events] " + msg)
}
