package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestInit_AppliesLevel(t *testing.T) {
	Init("warn", "hexashop-test")

	l := Logger()

	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestInit_UnknownLevelKeepsInfo(t *testing.T) {
	Init("verbose", "hexashop-test")

	assert.True(t, Logger().Core().Enabled(zapcore.InfoLevel))
	assert.False(t, Logger().Core().Enabled(zapcore.DebugLevel))
}
