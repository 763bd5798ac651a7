// Package feed provides MetricSnapshot sources for the guard daemon.
package feed

import (
	"context"

	"ramp-guard/internal/domain"
)

// Source streams metric snapshots until the context ends. The snapshot
// channel is closed when the source shuts down; the error channel reports
// terminal failures.
type Source interface {
	Snapshots(ctx context.Context) (<-chan domain.MetricSnapshot, <-chan error)
}

// ChannelSource adapts an in-process channel to a Source. Used by tests and
// by the replay tooling.
type ChannelSource struct {
	ch <-chan domain.MetricSnapshot
}

// NewChannelSource wraps an existing channel.
func NewChannelSource(ch <-chan domain.MetricSnapshot) *ChannelSource {
	return &ChannelSource{ch: ch}
}

// Snapshots forwards the wrapped channel until the context ends.
func (s *ChannelSource) Snapshots(ctx context.Context) (<-chan domain.MetricSnapshot, <-chan error) {
	out := make(chan domain.MetricSnapshot)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-s.ch:
				if !ok {
					return
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, errs
}

var _ Source = (*ChannelSource)(nil)
