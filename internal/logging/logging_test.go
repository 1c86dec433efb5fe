package logging

import (
	"errors"
	"testing"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLoggerRoutesHelpers(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	var lines []string
	SetLogger(funcr.New(func(prefix, args string) {
		lines = append(lines, prefix+" "+args)
	}, funcr.Options{Verbosity: 1}))

	WithName("impression").Info("flushed", "threads", 3)
	Debug("tick")
	Error(errors.New("boom"), "commit failed")

	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "impression")
	assert.Contains(t, lines[0], `"threads"=3`)
	assert.Contains(t, lines[2], "boom")
}

func TestInit(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	require.NoError(t, Init(true))
	assert.True(t, Logger().Enabled())
	Sync()
}
