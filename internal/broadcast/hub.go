package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/homedock/internal/model"
)

// ErrHubStopped is returned by TriggerRefresh when Run is not active.
var ErrHubStopped = errors.New("state hub is not running")

const pollTimeout = 30 * time.Second

// Poller collects one snapshot of live host state.
type Poller interface {
	Poll(ctx context.Context) (model.Snapshot, error)
}

// Hub owns the shared live state. A single Run loop polls on an interval
// and on demand; deploys push install progress into it directly. Every
// change is fanned out to subscribers.
type Hub struct {
	poller   Poller
	interval time.Duration
	expiry   time.Duration
	logger   zerolog.Logger

	refresh chan struct{}
	running atomic.Bool

	mu       sync.Mutex
	state    model.State
	progress map[string]model.InstallProgress
	timers   map[string]expiryTimer
	timerGen uint64
	subs     map[*Subscription]struct{}
	lastSent []byte
}

// expiryTimer removes a terminal progress event. gen identifies the event
// it was armed for.
type expiryTimer struct {
	gen   uint64
	timer *time.Timer
}

func NewHub(poller Poller, interval, expiry time.Duration, logger zerolog.Logger) *Hub {
	return &Hub{
		poller:   poller,
		interval: interval,
		expiry:   expiry,
		logger:   logger.With().Str("component", "hub").Logger(),
		refresh:  make(chan struct{}, 1),
		progress: make(map[string]model.InstallProgress),
		timers:   make(map[string]expiryTimer),
		subs:     make(map[*Subscription]struct{}),
	}
}

// Run polls immediately, then on every tick and refresh request, until ctx
// is done. Polls run inline so they never overlap. Subscriptions are closed
// when Run returns.
func (h *Hub) Run(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return errors.New("state hub already running")
	}
	defer h.running.Store(false)

	h.logger.Info().Dur("interval", h.interval).Msg("starting state hub")
	h.poll(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			h.logger.Info().Msg("state hub stopped")
			return nil
		case <-ticker.C:
			h.poll(ctx)
		case <-h.refresh:
			h.poll(ctx)
		}
	}
}

// TriggerRefresh asks for a poll as soon as possible. Requests made while a
// poll is in flight collapse into a single follow-up poll.
func (h *Hub) TriggerRefresh() error {
	if !h.running.Load() {
		return ErrHubStopped
	}
	select {
	case h.refresh <- struct{}{}:
	default:
	}
	return nil
}

func (h *Hub) poll(ctx context.Context) {
	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, pollTimeout)
	snap, err := h.poller.Poll(pctx)
	cancel()
	pollDuration.Observe(time.Since(start).Seconds())

	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil {
		pollsTotal.WithLabelValues("failure").Inc()
		if ctx.Err() != nil {
			return
		}
		h.logger.Warn().Err(err).Msg("state poll failed")
		h.state.Connected = false
		h.state.LastError = err.Error()
	} else {
		pollsTotal.WithLabelValues("success").Inc()
		h.state.Snapshot = snap
		h.state.Connected = true
		h.state.LastError = ""
	}
	h.publishLocked()
}

// PushProgress records ev as the current progress of its app and publishes
// it without waiting for a poll. Terminal events expire after the hub's
// expiry unless a newer event for the same app replaces them first.
func (h *Hub) PushProgress(ev model.InstallProgress) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if et, ok := h.timers[ev.AppID]; ok {
		et.timer.Stop()
		delete(h.timers, ev.AppID)
	}
	h.progress[ev.AppID] = ev

	if ev.Status.Terminal() {
		h.timerGen++
		gen, appID := h.timerGen, ev.AppID
		h.timers[appID] = expiryTimer{
			gen:   gen,
			timer: time.AfterFunc(h.expiry, func() { h.expire(appID, gen) }),
		}
	}
	h.publishLocked()
}

func (h *Hub) expire(appID string, gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A newer event replaced the one this timer was armed for.
	if et, ok := h.timers[appID]; !ok || et.gen != gen {
		return
	}
	delete(h.timers, appID)
	delete(h.progress, appID)
	h.publishLocked()
}

// State returns the current shared state.
func (h *Hub) State() model.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentLocked()
}

func (h *Hub) currentLocked() model.State {
	st := h.state
	st.InstallProgress = make([]model.InstallProgress, 0, len(h.progress))
	for _, ev := range h.progress {
		st.InstallProgress = append(st.InstallProgress, ev)
	}
	sort.Slice(st.InstallProgress, func(i, j int) bool {
		return st.InstallProgress[i].AppID < st.InstallProgress[j].AppID
	})
	return st
}

// publishLocked fans the current state out when its encoding differs from
// the last one sent.
func (h *Hub) publishLocked() {
	st := h.currentLocked()
	data, err := json.Marshal(st)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode state")
		return
	}
	if bytes.Equal(data, h.lastSent) {
		return
	}
	h.lastSent = data
	fanoutsTotal.Inc()
	for sub := range h.subs {
		sub.offer(st)
	}
}

// Subscribe registers a new observer. The current state is delivered
// first when one has been published.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{hub: h, ch: make(chan model.State, 1)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastSent != nil {
		sub.ch <- h.currentLocked()
	}
	h.subs[sub] = struct{}{}
	subscribersGauge.Set(float64(len(h.subs)))
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is safe.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
	subscribersGauge.Set(float64(len(h.subs)))
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		close(sub.ch)
	}
	clear(h.subs)
	subscribersGauge.Set(0)
	for id, et := range h.timers {
		et.timer.Stop()
		delete(h.timers, id)
	}
}

// Subscription receives state updates. Its channel holds only the newest
// state: a slow reader skips intermediate states.
type Subscription struct {
	hub *Hub
	ch  chan model.State
}

// C is closed when the subscription ends.
func (s *Subscription) C() <-chan model.State {
	return s.ch
}

func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

// offer is only called with the hub lock held, so it is the only sender.
func (s *Subscription) offer(st model.State) {
	select {
	case s.ch <- st:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- st:
	default:
	}
}
