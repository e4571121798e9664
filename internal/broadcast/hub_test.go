package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/homedock/internal/model"
)

type fakePoller struct {
	mu      sync.Mutex
	calls   int
	results []pollResult
	// gate, when set, blocks the first poll until closed.
	gate    chan struct{}
	started chan struct{}
}

type pollResult struct {
	snap model.Snapshot
	err  error
}

func (p *fakePoller) Poll(ctx context.Context) (model.Snapshot, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	var res pollResult
	if len(p.results) > 0 {
		res = p.results[0]
		if len(p.results) > 1 {
			p.results = p.results[1:]
		}
	}
	p.mu.Unlock()

	if call == 1 && p.gate != nil {
		close(p.started)
		<-p.gate
	}
	return res.snap, res.err
}

func (p *fakePoller) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func startHub(t *testing.T, h *Hub) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, func() bool { return h.running.Load() }, time.Second, time.Millisecond)
	return cancel
}

func progress(appID string, p float64, status model.ProgressStatus) model.InstallProgress {
	return model.InstallProgress{AppID: appID, Progress: p, Status: status}
}

func TestHub_TriggerRefreshWhenStopped(t *testing.T) {
	h := NewHub(&fakePoller{}, time.Hour, time.Second, zerolog.Nop())
	assert.ErrorIs(t, h.TriggerRefresh(), ErrHubStopped)
}

func TestHub_RefreshesCoalesceDuringPoll(t *testing.T) {
	p := &fakePoller{gate: make(chan struct{}), started: make(chan struct{})}
	h := NewHub(p, time.Hour, time.Second, zerolog.Nop())
	startHub(t, h)

	<-p.started
	for range 5 {
		require.NoError(t, h.TriggerRefresh())
	}
	close(p.gate)

	require.Eventually(t, func() bool { return p.count() == 2 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, p.count())
}

func TestHub_PollFailureKeepsSnapshot(t *testing.T) {
	snap := model.Snapshot{RunningApps: []model.RunningApp{{AppID: "plex"}}}
	p := &fakePoller{results: []pollResult{{snap: snap}, {err: errors.New("docker unreachable")}}}
	h := NewHub(p, time.Hour, time.Second, zerolog.Nop())
	startHub(t, h)

	require.Eventually(t, func() bool { return h.State().Connected }, time.Second, time.Millisecond)

	require.NoError(t, h.TriggerRefresh())
	require.Eventually(t, func() bool { return !h.State().Connected }, time.Second, time.Millisecond)

	st := h.State()
	assert.Equal(t, "docker unreachable", st.LastError)
	assert.Equal(t, snap.RunningApps, st.RunningApps)
}

func TestHub_TerminalProgressExpires(t *testing.T) {
	h := NewHub(&fakePoller{}, time.Hour, 20*time.Millisecond, zerolog.Nop())

	h.PushProgress(progress("plex", 0.5, model.ProgressRunning))
	h.PushProgress(progress("plex", 1, model.ProgressCompleted))
	require.Len(t, h.State().InstallProgress, 1)

	require.Eventually(t, func() bool { return len(h.State().InstallProgress) == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_ImmediateExpiryAlwaysClears(t *testing.T) {
	h := NewHub(&fakePoller{}, time.Hour, time.Nanosecond, zerolog.Nop())

	for i := range 2000 {
		status := model.ProgressCompleted
		if i%2 == 1 {
			status = model.ProgressError
		}
		h.PushProgress(progress(fmt.Sprintf("app-%d", i%7), 1, status))
	}

	require.Eventually(t, func() bool { return len(h.State().InstallProgress) == 0 }, 2*time.Second, 5*time.Millisecond)
	h.mu.Lock()
	assert.Empty(t, h.timers)
	h.mu.Unlock()
}

func TestHub_NewerEventCancelsExpiry(t *testing.T) {
	h := NewHub(&fakePoller{}, time.Hour, 30*time.Millisecond, zerolog.Nop())

	h.PushProgress(progress("plex", 1, model.ProgressError))
	h.PushProgress(progress("plex", 0.05, model.ProgressStarting))

	time.Sleep(100 * time.Millisecond)
	st := h.State()
	require.Len(t, st.InstallProgress, 1)
	assert.Equal(t, model.ProgressStarting, st.InstallProgress[0].Status)
}

func TestHub_RunningProgressDoesNotExpire(t *testing.T) {
	h := NewHub(&fakePoller{}, time.Hour, 10*time.Millisecond, zerolog.Nop())

	h.PushProgress(progress("plex", 0.35, model.ProgressRunning))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.State().InstallProgress, 1)
}

func TestHub_ProgressSortedByApp(t *testing.T) {
	h := NewHub(&fakePoller{}, time.Hour, time.Second, zerolog.Nop())
	h.PushProgress(progress("sonarr", 0.2, model.ProgressRunning))
	h.PushProgress(progress("jellyfin", 0.5, model.ProgressRunning))

	st := h.State()
	require.Len(t, st.InstallProgress, 2)
	assert.Equal(t, "jellyfin", st.InstallProgress[0].AppID)
	assert.Equal(t, "sonarr", st.InstallProgress[1].AppID)
}

func TestHub_SkipsFanOutWhenUnchanged(t *testing.T) {
	h := NewHub(&fakePoller{}, time.Hour, time.Minute, zerolog.Nop())
	sub := h.Subscribe()
	defer sub.Close()

	ev := progress("plex", 0.2, model.ProgressRunning)
	h.PushProgress(ev)
	select {
	case st := <-sub.C():
		require.Len(t, st.InstallProgress, 1)
	case <-time.After(time.Second):
		t.Fatal("expected a state update")
	}

	h.PushProgress(ev)
	select {
	case <-sub.C():
		t.Fatal("unchanged state was fanned out")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SlowSubscriberGetsNewest(t *testing.T) {
	h := NewHub(&fakePoller{}, time.Hour, time.Minute, zerolog.Nop())
	sub := h.Subscribe()
	defer sub.Close()

	h.PushProgress(progress("plex", 0.2, model.ProgressRunning))
	h.PushProgress(progress("plex", 0.35, model.ProgressRunning))
	h.PushProgress(progress("plex", 0.85, model.ProgressRunning))

	st := <-sub.C()
	require.Len(t, st.InstallProgress, 1)
	assert.Equal(t, 0.85, st.InstallProgress[0].Progress)

	select {
	case <-sub.C():
		t.Fatal("intermediate state should have been dropped")
	default:
	}
}

func TestHub_SubscribeDeliversCurrentState(t *testing.T) {
	h := NewHub(&fakePoller{}, time.Hour, time.Minute, zerolog.Nop())
	h.PushProgress(progress("plex", 0.2, model.ProgressRunning))

	sub := h.Subscribe()
	defer sub.Close()
	select {
	case st := <-sub.C():
		assert.Len(t, st.InstallProgress, 1)
	default:
		t.Fatal("new subscriber did not get the current state")
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(&fakePoller{}, time.Hour, time.Minute, zerolog.Nop())
	sub := h.Subscribe()
	sub.Close()
	sub.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)

	// Publishing after unsubscribe must not panic on the closed channel.
	h.PushProgress(progress("plex", 0.2, model.ProgressRunning))
}

func TestHub_StopClosesSubscriptions(t *testing.T) {
	h := NewHub(&fakePoller{}, time.Hour, time.Minute, zerolog.Nop())
	cancel := startHub(t, h)
	sub := h.Subscribe()

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.C():
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return errors.Is(h.TriggerRefresh(), ErrHubStopped) }, time.Second, time.Millisecond)
}
