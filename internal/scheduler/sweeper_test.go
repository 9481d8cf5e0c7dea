package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCloser struct {
	calls atomic.Int32
	err   error
}

func (c *countingCloser) CloseExpiredEntries(context.Context) (int, error) {
	c.calls.Add(1)
	return 1, c.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweeper_RunsOnStart(t *testing.T) {
	closer := &countingCloser{}
	sweeper, err := NewSweeper(closer, time.Hour, clockwork.NewRealClock(), testLogger())
	require.NoError(t, err)

	sweeper.Start()
	defer sweeper.Shutdown()

	assert.Eventually(t, func() bool { return closer.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSweeper_ErrorsAreLogged(t *testing.T) {
	closer := &countingCloser{err: errors.New("database is locked")}
	sweeper, err := NewSweeper(closer, time.Hour, clockwork.NewRealClock(), testLogger())
	require.NoError(t, err)

	assert.NotPanics(t, sweeper.sweep)
	assert.Equal(t, int32(1), closer.calls.Load())
}
