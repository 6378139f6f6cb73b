package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("index", &buf, WARN)

	logger.Info("не должно попасть в вывод")
	logger.Warn("кэш переполнен: %d", 10)

	out := buf.String()
	assert.NotContains(t, out, "не должно попасть")
	assert.Contains(t, out, "[WARN] [index] кэш переполнен: 10")
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("backup", &buf, DEBUG).With("market")

	logger.Debug("колонка %s", "1,2")
	assert.Contains(t, buf.String(), "[DEBUG] [backup.market] колонка 1,2")
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, DEBUG, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, INFO, level)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() { logger.Info("ничего") })
	assert.NotNil(t, OrDefault(nil))
}

func TestLoggerManager(t *testing.T) {
	prev := LogDir
	LogDir = t.TempDir()
	t.Cleanup(func() { LogDir = prev })

	lm := newManager()
	lm.SetDefaultLevels(WARN, DEBUG)
	a, err := lm.GetLogger("api")
	require.NoError(t, err)
	b, err := lm.GetLogger("api")
	require.NoError(t, err)
	assert.Same(t, a, b, "повторный запрос возвращает тот же логгер")
	_, err = lm.GetLogger("backup")
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "backup"}, lm.ListComponents())
	assert.Equal(t, WARN, a.minConsoleLevel)

	require.NoError(t, lm.SetLogLevel("api", WARN, INFO))
	assert.Error(t, lm.SetLogLevel("scanner", WARN, INFO))

	require.NoError(t, lm.CloseAll())
	assert.Empty(t, lm.ListComponents())
}
