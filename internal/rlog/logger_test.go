package rlog

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNoOpLoggerDoesNotPanic(t *testing.T) {
	l := NewNoOp()
	require.NotPanics(t, func() {
		l.Debug("debug", "k", 1)
		l.Info("info", "k", 2)
		l.Warn("warn", "k", 3)
		l.Error("error", "k", 4)
	})
}

func TestZapLoggerDoesNotPanic(t *testing.T) {
	z, err := zap.NewDevelopment()
	require.NoError(t, err)

	l := NewZap(z)
	require.NotPanics(t, func() {
		l.Info("hello", "node", uint64(42))
	})
}
