// Package logging provides an explicitly-initialized logging context with a
// defined lifecycle: Init, attach sinks, Apply, Shutdown. It replaces
// process-wide implicit logger configuration; each engine instance can own
// its own context.
package logging

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Sink specifications accepted by AttachSink: "stdout", "stderr", "buffer",
// or "file <path>".
const (
	SinkStdout = "stdout"
	SinkStderr = "stderr"
	SinkBuffer = "buffer"

	sinkFilePrefix = "file "
)

// Context owns a logger and the sinks it writes to.
type Context struct {
	mu      sync.Mutex
	logger  *logrus.Logger
	writers []io.Writer
	files   []*os.File
	buffer  *bytes.Buffer
	level   logrus.Level
	applied bool
}

// Init creates an isolated logging context. The logger discards output
// until Apply is called with at least one attached sink.
func Init() *Context {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Context{
		logger: logger,
		level:  logrus.InfoLevel,
	}
}

// InitStandard creates a context that configures the process-global logger,
// which engine components log through by default.
func InitStandard() *Context {
	logger := logrus.StandardLogger()
	logger.SetOutput(io.Discard)
	return &Context{
		logger: logger,
		level:  logrus.InfoLevel,
	}
}

// AttachSink registers an output sink. The most verbose attached level wins
// for the whole context. May be called multiple times before Apply.
func (c *Context) AttachSink(spec string, level logrus.Level) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applied {
		return errors.New("logging context already applied")
	}

	switch {
	case spec == SinkStdout:
		c.writers = append(c.writers, os.Stdout)
	case spec == SinkStderr:
		c.writers = append(c.writers, os.Stderr)
	case spec == SinkBuffer:
		if c.buffer == nil {
			c.buffer = &bytes.Buffer{}
		}
		c.writers = append(c.writers, c.buffer)
	case strings.HasPrefix(spec, sinkFilePrefix):
		path := strings.TrimSpace(strings.TrimPrefix(spec, sinkFilePrefix))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrapf(err, "unable to open log sink %q", path)
		}
		c.files = append(c.files, f)
		c.writers = append(c.writers, f)
	default:
		return errors.Errorf("unknown log sink %q", spec)
	}

	if level > c.level {
		c.level = level
	}
	return nil
}

// Apply activates the attached sinks. Idempotent; attaching further sinks
// after Apply is an error.
func (c *Context) Apply() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applied {
		return nil
	}
	if len(c.writers) == 0 {
		return errors.New("no log sinks attached")
	}
	c.logger.SetOutput(io.MultiWriter(c.writers...))
	c.logger.SetLevel(c.level)
	c.applied = true
	return nil
}

// Logger returns the context's logger.
func (c *Context) Logger() *logrus.Logger {
	return c.logger
}

// BufferContents returns everything written to the buffer sink, if one was
// attached.
func (c *Context) BufferContents() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buffer == nil {
		return ""
	}
	return c.buffer.String()
}

// Shutdown closes file sinks and silences the logger.
func (c *Context) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.SetOutput(io.Discard)
	var firstErr error
	for _, f := range c.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.files = nil
	c.writers = nil
	c.applied = false
	return firstErr
}
