// Package watchdog tracks component heartbeats and emits restart/halt
// commands for an external process supervisor when a component goes quiet.
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CommandType is the supervisor action requested.
type CommandType string

const (
	CommandRestart CommandType = "RESTART"
	CommandHalt    CommandType = "HALT"
)

// Command is the message published to the supervisor topic.
type Command struct {
	Type      CommandType `json:"type"`
	Component string      `json:"component"`
	Reason    string      `json:"reason"`
	IssuedTs  int64       `json:"issued_ts"` // unix ms
}

// Publisher delivers commands to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// Options configures a Watchdog.
type Options struct {
	Topic         string
	RestartAfter  time.Duration // heartbeat staleness triggering RESTART
	HaltAfter     time.Duration // staleness triggering HALT; must exceed RestartAfter
	CheckInterval time.Duration // default 10s
	Publisher     Publisher
	Now           func() time.Time
	Logger        zerolog.Logger
}

type componentState struct {
	lastBeat  time.Time
	restarted bool
	halted    bool
}

// Watchdog emits exactly one RESTART and at most one HALT per stale interval;
// a fresh heartbeat rearms both.
type Watchdog struct {
	mu sync.Mutex

	topic         string
	restartAfter  time.Duration
	haltAfter     time.Duration
	checkInterval time.Duration
	publisher     Publisher
	now           func() time.Time
	logger        zerolog.Logger

	components map[string]*componentState
}

// New creates a watchdog.
func New(opts Options) *Watchdog {
	if opts.CheckInterval == 0 {
		opts.CheckInterval = 10 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Watchdog{
		topic:         opts.Topic,
		restartAfter:  opts.RestartAfter,
		haltAfter:     opts.HaltAfter,
		checkInterval: opts.CheckInterval,
		publisher:     opts.Publisher,
		now:           now,
		logger:        opts.Logger,
		components:    make(map[string]*componentState),
	}
}

// Heartbeat records liveness for a component and rearms its alerts.
func (w *Watchdog) Heartbeat(component string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, ok := w.components[component]
	if !ok {
		st = &componentState{}
		w.components[component] = st
	}
	st.lastBeat = w.now()
	st.restarted = false
	st.halted = false
}

// Run checks heartbeats on a ticker until the context ends.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check evaluates every registered component once.
func (w *Watchdog) Check(ctx context.Context) {
	w.mu.Lock()
	now := w.now()
	var commands []Command
	for name, st := range w.components {
		age := now.Sub(st.lastBeat)
		switch {
		case age >= w.haltAfter && !st.halted:
			st.halted = true
			commands = append(commands, Command{
				Type: CommandHalt, Component: name,
				Reason:   "heartbeat stale past halt threshold",
				IssuedTs: now.UnixMilli(),
			})
		case age >= w.restartAfter && !st.restarted:
			st.restarted = true
			commands = append(commands, Command{
				Type: CommandRestart, Component: name,
				Reason:   "heartbeat stale past restart threshold",
				IssuedTs: now.UnixMilli(),
			})
		}
	}
	w.mu.Unlock()

	for _, cmd := range commands {
		w.logger.Error().Str("component", cmd.Component).Str("command", string(cmd.Type)).Msg("watchdog command emitted")
		if err := w.publisher.Publish(ctx, w.topic, cmd.Component, cmd); err != nil {
			w.logger.Error().Err(err).Str("component", cmd.Component).Msg("watchdog publish failed")
		}
	}
}
