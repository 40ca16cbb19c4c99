package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"avatarmixer/server/logging"
)

// Zap is a structured production sink backed by go.uber.org/zap, used
// alongside the plain-text console sink (see SPEC_FULL.md §4.15).
type Zap struct {
	logger *zap.Logger
}

// NewZap constructs a sink from an already-configured zap logger.
func NewZap(logger *zap.Logger) *Zap {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Zap{logger: logger}
}

// Write satisfies logging.Sink.
func (s *Zap) Write(event logging.Event) error {
	fields := []zap.Field{
		zap.Uint64("tick", event.Tick),
		zap.String("actor", formatEntity(event.Actor)),
		zap.String("category", event.Category),
	}
	if len(event.Targets) > 0 {
		fields = append(fields, zap.String("targets", formatTargets(event.Targets)))
	}
	if event.Payload != nil {
		fields = append(fields, zap.Any("payload", event.Payload))
	}
	if ce := s.logger.Check(zapLevel(event.Severity), string(event.Type)); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

// Close flushes the underlying zap logger.
func (s *Zap) Close(context.Context) error {
	return s.logger.Sync()
}

func zapLevel(sev logging.Severity) zapcore.Level {
	switch sev {
	case logging.SeverityDebug:
		return zapcore.DebugLevel
	case logging.SeverityWarn:
		return zapcore.WarnLevel
	case logging.SeverityError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
