package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ramp-guard/internal/domain"
)

// WSOptions configures a WebSocket snapshot source.
type WSOptions struct {
	URL            string
	ReconnectDelay time.Duration // default 5s
	PingInterval   time.Duration // default 30s
	Buffer         int           // snapshot channel capacity, default 256
	Logger         zerolog.Logger
}

// WSSource consumes JSON MetricSnapshot frames over a WebSocket, reconnecting
// with a fixed delay after any read or dial failure. It never terminates on
// its own; cancel the context to stop it.
type WSSource struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	buffer         int
	logger         zerolog.Logger
}

// NewWSSource creates a WebSocket source.
func NewWSSource(opts WSOptions) *WSSource {
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.Buffer == 0 {
		opts.Buffer = 256
	}
	return &WSSource{
		url:            opts.URL,
		reconnectDelay: opts.ReconnectDelay,
		pingInterval:   opts.PingInterval,
		buffer:         opts.Buffer,
		logger:         opts.Logger,
	}
}

// Snapshots starts the connect/read/reconnect loop.
func (s *WSSource) Snapshots(ctx context.Context) (<-chan domain.MetricSnapshot, <-chan error) {
	out := make(chan domain.MetricSnapshot, s.buffer)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)
		for {
			if err := s.readUntilError(ctx, out); err != nil {
				s.logger.Warn().Err(err).Dur("retry_in", s.reconnectDelay).Msg("feed connection lost")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.reconnectDelay):
			}
		}
	}()
	return out, errs
}

// readUntilError dials once and forwards frames until the connection fails
// or the context ends.
func (s *WSSource) readUntilError(ctx context.Context, out chan<- domain.MetricSnapshot) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	s.logger.Info().Str("url", s.url).Msg("feed connected")

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()

	// Unblock ReadMessage on cancellation.
	go func() {
		<-pingCtx.Done()
		_ = conn.Close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		var snap domain.MetricSnapshot
		if err := json.Unmarshal(frame, &snap); err != nil {
			s.logger.Warn().Err(err).Msg("discarding malformed snapshot frame")
			continue
		}

		select {
		case out <- snap:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Consumer is behind; newest data wins over completeness.
			s.logger.Warn().Msg("snapshot buffer full, dropping frame")
		}
	}
}

var _ Source = (*WSSource)(nil)
