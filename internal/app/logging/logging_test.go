package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferSink(t *testing.T) {
	ctx := Init()
	require.NoError(t, ctx.AttachSink(SinkBuffer, logrus.InfoLevel))
	require.NoError(t, ctx.Apply())
	defer ctx.Shutdown()

	ctx.Logger().Info("mock server started")
	ctx.Logger().Debug("suppressed at info level")

	out := ctx.BufferContents()
	assert.Contains(t, out, "mock server started")
	assert.NotContains(t, out, "suppressed at info level")
}

func TestMostVerboseLevelWins(t *testing.T) {
	ctx := Init()
	require.NoError(t, ctx.AttachSink(SinkBuffer, logrus.InfoLevel))
	require.NoError(t, ctx.AttachSink(SinkStderr, logrus.DebugLevel))
	require.NoError(t, ctx.Apply())
	defer ctx.Shutdown()

	ctx.Logger().Debug("visible once a debug sink is attached")
	assert.Contains(t, ctx.BufferContents(), "visible once a debug sink is attached")
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pactmock.log")

	ctx := Init()
	require.NoError(t, ctx.AttachSink("file "+path, logrus.InfoLevel))
	require.NoError(t, ctx.Apply())
	ctx.Logger().Info("written to file")
	require.NoError(t, ctx.Shutdown())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestUnknownSink(t *testing.T) {
	ctx := Init()
	assert.Error(t, ctx.AttachSink("syslog", logrus.InfoLevel))
}

func TestAttachAfterApply(t *testing.T) {
	ctx := Init()
	require.NoError(t, ctx.AttachSink(SinkBuffer, logrus.InfoLevel))
	require.NoError(t, ctx.Apply())
	defer ctx.Shutdown()

	assert.Error(t, ctx.AttachSink(SinkStdout, logrus.InfoLevel))
	assert.NoError(t, ctx.Apply(), "apply is idempotent")
}

func TestApplyWithoutSinks(t *testing.T) {
	ctx := Init()
	assert.Error(t, ctx.Apply())
}

func TestDiscardsUntilApplied(t *testing.T) {
	ctx := Init()
	require.NoError(t, ctx.AttachSink(SinkBuffer, logrus.InfoLevel))

	ctx.Logger().Info("before apply")
	assert.Empty(t, ctx.BufferContents())
}
