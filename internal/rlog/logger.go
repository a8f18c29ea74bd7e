// Package rlog provides the engine's structured-logging seam: a small
// Logger interface backed by go.uber.org/zap, with a no-op default for
// callers that don't configure one.
package rlog

import "go.uber.org/zap"

// Logger is the engine-wide logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// zapLogger adapts a *zap.SugaredLogger to Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZap wraps z as a Logger. Pass zap.NewProduction() or zap.NewDevelopment()
// depending on the host application's needs.
func NewZap(z *zap.Logger) Logger {
	return &zapLogger{s: z.Sugar()}
}

func (l *zapLogger) Debug(msg string, fields ...interface{}) { l.s.Debugw(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...interface{})  { l.s.Infow(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...interface{})  { l.s.Warnw(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...interface{}) { l.s.Errorw(msg, fields...) }

// noop discards everything; it is the engine's default Logger.
type noop struct{}

// NewNoOp returns a Logger that doesn't log anything.
func NewNoOp() Logger { return noop{} }

func (noop) Debug(string, ...interface{}) {}
func (noop) Info(string, ...interface{})  {}
func (noop) Warn(string, ...interface{})  {}
func (noop) Error(string, ...interface{}) {}
