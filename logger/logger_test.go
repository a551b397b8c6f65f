package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(WARN, &buf)

	log.Debug("debug %d", 1)
	log.Info("info %d", 2)
	log.Warn("warn %d", 3)
	log.Error("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "warn 3")
	assert.Contains(t, out, "error 4")
}

func TestSetLevelWidensOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(ERROR, &buf)

	log.Info("hidden")
	log.SetLevel(DEBUG)
	log.Info("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestNamedLoggerPrefixesComponent(t *testing.T) {
	var buf bytes.Buffer
	old := GetDefault()
	defer SetDefault(old)
	SetDefault(NewLogger(DEBUG, &buf))

	Named("junction").Info("fan-out ready")

	line := buf.String()
	assert.Contains(t, line, "junction")
	assert.Contains(t, line, "fan-out ready")
}

func TestDiscardLoggerDropsEverything(t *testing.T) {
	log := NewDiscardLogger()
	log.Debug("a")
	log.Info("b")
	log.Warn("c")
	log.Error("d")
	log.SetLevel(DEBUG)
	// Nothing to assert beyond "does not panic"; the logger has no output.
}

func TestLevelStrings(t *testing.T) {
	for level, want := range map[Level]string{DEBUG: "DEBUG", INFO: "INFO", WARN: "WARN", ERROR: "ERROR"} {
		assert.Equal(t, want, level.String())
	}
	assert.Equal(t, "UNKNOWN", Level(99).String())
}
