package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEmit struct {
	progress float64
	message  string
}

type emitRecorder struct {
	mu     sync.Mutex
	events []recordedEmit
}

func (r *emitRecorder) emit(progress float64, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEmit{progress, message})
}

func newTestStreamer() *PullStreamer {
	return NewPullStreamer(zerolog.Nop(), 0.35, 0.85)
}

func TestPullStreamer_SuccessEndsAtCeiling(t *testing.T) {
	p := newTestStreamer()
	rec := &emitRecorder{}

	err := p.Stream(context.Background(), sh(`
echo "Pulling plex"
echo "abc Downloading 1MB" >&2
echo "abc Extracting 1MB" >&2
echo "abc Pull complete" >&2
`), rec.emit)
	require.NoError(t, err)

	require.NotEmpty(t, rec.events)
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, 0.85, last.progress)
	assert.Equal(t, "Images pulled", last.message)

	prev := 0.0
	for _, ev := range rec.events {
		assert.GreaterOrEqual(t, ev.progress, prev)
		assert.GreaterOrEqual(t, ev.progress, 0.35)
		assert.LessOrEqual(t, ev.progress, 0.85)
		prev = ev.progress
	}
}

func TestPullStreamer_RateLimited(t *testing.T) {
	p := newTestStreamer()
	p.Interval = time.Hour
	rec := &emitRecorder{}

	err := p.Stream(context.Background(), sh(`for i in $(seq 1 200); do echo "layer$i Downloading" >&2; done`), rec.emit)
	require.NoError(t, err)

	// first matching line plus the final event
	require.Len(t, rec.events, 2)
	assert.Equal(t, "Downloading images", rec.events[0].message)
	assert.Equal(t, 0.85, rec.events[1].progress)
}

func TestPullStreamer_LineProgressStaysBelowCeiling(t *testing.T) {
	p := newTestStreamer()
	p.Interval = time.Nanosecond
	rec := &emitRecorder{}

	err := p.Stream(context.Background(), sh(`for i in $(seq 1 500); do echo "Pulling fs layer $i"; done; exit 1`), rec.emit)
	require.Error(t, err)

	require.NotEmpty(t, rec.events)
	for _, ev := range rec.events {
		assert.Less(t, ev.progress, 0.85)
	}
}

func TestPullStreamer_IgnoresUnrelatedStdout(t *testing.T) {
	p := newTestStreamer()
	rec := &emitRecorder{}

	err := p.Stream(context.Background(), sh(`echo "hello"; echo "world"`), rec.emit)
	require.NoError(t, err)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "Images pulled", rec.events[0].message)
}

func TestPullStreamer_ExitCode137(t *testing.T) {
	p := newTestStreamer()
	rec := &emitRecorder{}

	cmd := sh(`echo "Pulling plex" >&2; exit 137`)
	cmd.Label = "docker compose pull"
	err := p.Stream(context.Background(), cmd, rec.emit)
	require.Error(t, err)
	assert.Equal(t, "docker compose pull exited with code 137", err.Error())

	var perr *ProcessError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 137, perr.ExitCode)
	assert.Contains(t, perr.Stderr, "Pulling plex")
	for _, ev := range rec.events {
		assert.NotEqual(t, "Images pulled", ev.message)
	}
}

func TestPullStreamer_KilledBySignal(t *testing.T) {
	p := newTestStreamer()

	err := p.Stream(context.Background(), sh(`kill -9 $$`), func(float64, string) {})
	var perr *ProcessError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 137, perr.ExitCode)
}

func TestPullStreamer_SpawnFailure(t *testing.T) {
	p := newTestStreamer()
	called := false

	err := p.Stream(context.Background(), Command{Name: "/nonexistent/docker"}, func(float64, string) { called = true })
	require.Error(t, err)
	assert.False(t, called)

	var perr *ProcessError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, -1, perr.ExitCode)
}

func TestClassifyPullLine(t *testing.T) {
	msg, ok := classifyPullLine("abc extracting", false)
	assert.True(t, ok)
	assert.Equal(t, "Extracting images", msg)

	_, ok = classifyPullLine("unrelated", false)
	assert.False(t, ok)

	msg, ok = classifyPullLine("unrelated", true)
	assert.True(t, ok)
	assert.Equal(t, "Pulling images", msg)
}
