// Package feed owns the push-channel connection: one websocket, a reconnect
// loop with exponential backoff, and classification of inbound frames into
// typed messages. Transport failures are reported through the status callback,
// never thrown at the consumer; a single malformed frame is dropped without
// tearing the connection down.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// State is the connection lifecycle position.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

// Status is the externally visible connection health snapshot.
type Status struct {
	State             State      `json:"state"`
	ReconnectAttempts int        `json:"reconnectAttempts"`
	LastConnectedAt   *time.Time `json:"lastConnectedAt,omitempty"`
	LastError         string     `json:"lastError,omitempty"`
}

// Options parameterise a Monitor.
type Options struct {
	URL        string
	Backoff    Backoff
	BufferSize int
}

// Monitor maintains one push-channel connection and republishes classified
// messages on Messages(). Reconnection runs until Disconnect is called, which
// also cancels any pending backoff wait and is terminal until the next
// Connect.
type Monitor struct {
	opts   Options
	logger zerolog.Logger

	mu       sync.Mutex
	status   Status
	cbs      []func(Status)
	conn     *websocket.Conn
	cancel   context.CancelFunc
	runGen   uint64
	messages chan Message
}

// NewMonitor constructs a Monitor. Connect must be called to start it.
func NewMonitor(opts Options, logger zerolog.Logger) *Monitor {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	return &Monitor{
		opts:     opts,
		logger:   logger.With().Str("component", "feed_monitor").Logger(),
		status:   Status{State: StateDisconnected},
		messages: make(chan Message, opts.BufferSize),
	}
}

// Messages returns the channel of classified inbound messages. It stays valid
// across reconnects and is never closed.
func (m *Monitor) Messages() <-chan Message {
	return m.messages
}

// Status returns the current connection status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// OnStatusChange registers a callback invoked on every status transition.
func (m *Monitor) OnStatusChange(cb func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cbs = append(m.cbs, cb)
}

// Connect starts the connection loop. Calling Connect on an already running
// monitor is a no-op.
func (m *Monitor) Connect(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.runGen++
	gen := m.runGen
	m.mu.Unlock()

	m.setStatus(func(st *Status) {
		st.State = StateConnecting
		st.LastError = ""
	})
	go func() {
		m.run(runCtx)
		cancel()
		// The owner context may have ended the loop without an explicit
		// Disconnect; release the slot so Connect works again. A newer
		// Connect bumps the generation and keeps its own registration.
		m.mu.Lock()
		if m.runGen == gen {
			m.cancel = nil
		}
		m.mu.Unlock()
	}()
}

// Disconnect stops the loop and cancels any pending reconnect timer. The
// monitor stays disconnected until Connect is called again.
func (m *Monitor) Disconnect() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Send writes a frame on the current connection, best effort. While not
// connected it is a silent no-op.
func (m *Monitor) Send(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return nil
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		m.logger.Warn().Err(err).Msg("best-effort send failed")
		return err
	}
	return nil
}

func (m *Monitor) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			m.markDisconnected()
			return
		}

		conn, resp, err := websocket.Dial(ctx, m.opts.URL, nil) //nolint:bodyclose // library owns the response body
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				m.markDisconnected()
				return
			}
			attempt++
			delay := m.opts.Backoff.Delay(attempt - 1)
			m.logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("connect attempt failed")
			m.setStatus(func(st *Status) {
				st.State = StateReconnecting
				st.ReconnectAttempts = attempt
				st.LastError = err.Error()
			})
			if !m.sleep(ctx, delay) {
				m.markDisconnected()
				return
			}
			continue
		}

		attempt = 0
		m.attach(conn)
		m.logger.Info().Str("url", m.opts.URL).Msg("feed connected")

		readErr := m.readLoop(ctx, conn)
		m.detach(conn)

		if ctx.Err() != nil {
			m.markDisconnected()
			return
		}

		m.logger.Warn().Err(readErr).Msg("feed connection dropped")
		m.setStatus(func(st *Status) {
			st.State = StateError
			if readErr != nil {
				st.LastError = readErr.Error()
			}
		})
		m.setStatus(func(st *Status) {
			st.State = StateReconnecting
		})
	}
}

func (m *Monitor) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			if errors.Is(err, ErrUnknownType) {
				m.logger.Debug().Err(err).Msg("skipping unrecognised message type")
			} else {
				m.logger.Warn().Err(err).Msg("dropping malformed message")
			}
			continue
		}

		select {
		case m.messages <- msg:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// A stalled consumer must not block the websocket read.
			m.logger.Warn().Str("type", msg.Type).Msg("message buffer full, dropping")
		}
	}
}

func (m *Monitor) attach(conn *websocket.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	now := time.Now().UTC()
	m.setStatus(func(st *Status) {
		st.State = StateConnected
		st.ReconnectAttempts = 0
		st.LastConnectedAt = &now
		st.LastError = ""
	})
}

func (m *Monitor) detach(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	conn.Close(websocket.StatusNormalClosure, "")
}

func (m *Monitor) markDisconnected() {
	m.setStatus(func(st *Status) {
		st.State = StateDisconnected
	})
}

func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *Monitor) setStatus(mutate func(*Status)) {
	m.mu.Lock()
	mutate(&m.status)
	snapshot := m.status
	cbs := make([]func(Status), len(m.cbs))
	copy(cbs, m.cbs)
	m.mu.Unlock()
	for _, cb := range cbs {
		cb(snapshot)
	}
}
