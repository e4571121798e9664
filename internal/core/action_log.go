package core

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// ActionLog records deploy pipeline events. Log never blocks: entries are
// written by a background goroutine and dropped when the buffer is full.
type ActionLog struct {
	db     DB
	logger zerolog.Logger
	ch     chan actionEntry
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

type actionEntry struct {
	Event string
	Level string
	Meta  map[string]any
}

func NewActionLog(db DB, logger zerolog.Logger) *ActionLog {
	l := &ActionLog{
		db:     db,
		logger: logger.With().Str("component", "action-log").Logger(),
		ch:     make(chan actionEntry, 1024),
		done:   make(chan struct{}),
	}
	go l.drain()
	return l
}

// Log queues an event. level is "info" or "error"; anything else is treated as info.
func (l *ActionLog) Log(event string, meta map[string]any, level string) {
	if level != "error" {
		level = "info"
	}

	ev := l.logger.Info()
	if level == "error" {
		ev = l.logger.Error()
	}
	ev.Fields(meta).Msg(event)

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.logger.Warn().Str("event", event).Msg("action log closed, dropping entry")
		return
	}
	select {
	case l.ch <- actionEntry{Event: event, Level: level, Meta: meta}:
	default:
		l.logger.Warn().Str("event", event).Msg("action log buffer full, dropping entry")
	}
}

func (l *ActionLog) drain() {
	defer close(l.done)
	for entry := range l.ch {
		meta, err := json.Marshal(entry.Meta)
		if err != nil {
			l.logger.Error().Err(err).Str("event", entry.Event).Msg("failed to encode action log meta")
			continue
		}
		_, err = l.db.Exec(
			// the caller has usually moved on; the entry outlives its request
			context.Background(),
			`INSERT INTO action_logs (event, level, meta, created_at) VALUES ($1, $2, $3, now())`,
			entry.Event, entry.Level, meta,
		)
		if err != nil {
			l.logger.Error().Err(err).Str("event", entry.Event).Msg("failed to write action log")
		}
	}
}

// Close stops accepting entries and waits for the queued ones to be
// written. Entries logged afterwards are dropped.
func (l *ActionLog) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
	l.mu.Unlock()
	<-l.done
}
