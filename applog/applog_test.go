package applog

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, false)
	log.Debug("hidden")
	log.Info("stage done", "stage", "QueryComposer")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "stage done")
	assert.Contains(t, out, "stage=QueryComposer")
	assert.NotContains(t, out, "\x1b[", "no colour off a terminal")

	buf.Reset()
	New(&buf, true).Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewFileUnderHome(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	log, closeFn := NewFile(false)
	defer closeFn()
	log.Info("hello")
}
