// Package conn owns the single serial connection to the arm controller: its
// lifecycle, the shared handle, and the idle listener.
package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robertarm/robert/pkg/protocol"
	"github.com/robertarm/robert/pkg/transport"
)

var ErrNotConnected = errors.New("no serial connection available")

// ConnectionFailedError is returned when every connect attempt failed.
type ConnectionFailedError struct {
	Port     string
	Attempts int
	Err      error
}

func (e *ConnectionFailedError) Error() string {
	return fmt.Sprintf("failed to connect to port %s after %d attempts: %v", e.Port, e.Attempts, e.Err)
}

func (e *ConnectionFailedError) Unwrap() error {
	return e.Err
}

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config holds connection manager settings. Zero values use the defaults.
type Config struct {
	Opener           Opener
	Attempts         int
	RetryDelay       time.Duration
	HandshakeTimeout time.Duration
	// GracePeriod is waited after closing a port before it is considered free.
	GracePeriod time.Duration
}

// Manager holds at most one open connection at a time.
type Manager struct {
	open             Opener
	attempts         int
	retryDelay       time.Duration
	handshakeTimeout time.Duration
	gracePeriod      time.Duration

	// lifecycle serializes connect and disconnect.
	lifecycle sync.Mutex

	mu    sync.RWMutex
	state State
	port  string
	tr    *transport.Transport

	logCh chan string
}

// NewManager creates a disconnected manager.
func NewManager(cfg Config) *Manager {
	if cfg.Opener == nil {
		cfg.Opener = SerialOpener(DefaultReadPoll)
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = protocol.DefaultTimeout
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 200 * time.Millisecond
	}

	return &Manager{
		open:             cfg.Opener,
		attempts:         cfg.Attempts,
		retryDelay:       cfg.RetryDelay,
		handshakeTimeout: cfg.HandshakeTimeout,
		gracePeriod:      cfg.GracePeriod,
		logCh:            make(chan string, 10),
	}
}

// Logs returns a channel that receives log messages.
func (m *Manager) Logs() <-chan string {
	return m.logCh
}

func (m *Manager) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case m.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Status returns the lifecycle state and the connected port name.
func (m *Manager) Status() (State, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.port
}

// IsConnected reports whether a verified connection is held.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tr != nil
}

// Transport returns the active transport.
func (m *Manager) Transport() (*transport.Transport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tr == nil {
		return nil, ErrNotConnected
	}
	return m.tr, nil
}

// Exchange sends cmd on the active connection.
func (m *Manager) Exchange(ctx context.Context, cmd protocol.Command, timeout time.Duration) (protocol.Response, error) {
	tr, err := m.Transport()
	if err != nil {
		return protocol.Response{}, err
	}
	return tr.SendAndReceive(ctx, cmd, timeout)
}

// Connect opens port and verifies it answers CHECK with CONNECTED. Any
// existing connection is closed first, and again before every retry.
func (m *Manager) Connect(ctx context.Context, port string) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	var lastErr error
	made := 0
	for attempt := 1; attempt <= m.attempts; attempt++ {
		made = attempt
		m.mu.Lock()
		if m.tr != nil {
			m.log("Attempt %d/%d: closing existing connection to %s", attempt, m.attempts, m.port)
			m.tr.Close()
			m.tr = nil
			m.port = ""
		}
		m.state = Connecting
		m.mu.Unlock()

		m.log("Attempt %d/%d: connecting to %s", attempt, m.attempts, port)

		tr, err := m.handshake(ctx, port)
		if err == nil {
			m.mu.Lock()
			m.tr = tr
			m.port = port
			m.state = Connected
			m.mu.Unlock()
			m.log("Connected to %s", port)
			return nil
		}

		lastErr = err
		m.log("Attempt %d/%d: %v", attempt, m.attempts, err)

		if attempt < m.attempts {
			if err := sleep(ctx, m.retryDelay); err != nil {
				lastErr = err
				break
			}
		}
	}

	m.mu.Lock()
	m.state = Disconnected
	m.mu.Unlock()

	return &ConnectionFailedError{Port: port, Attempts: made, Err: lastErr}
}

func (m *Manager) handshake(ctx context.Context, port string) (*transport.Transport, error) {
	p, err := m.open(port)
	if err != nil {
		return nil, err
	}
	tr := transport.New(p)

	if err := tr.Resync(); err != nil {
		tr.Close()
		return nil, err
	}

	resp, err := tr.SendAndReceive(ctx, protocol.Check(), m.handshakeTimeout)
	if err != nil {
		tr.Close()
		return nil, fmt.Errorf("verify connection: %w", err)
	}
	if resp.Kind != protocol.KindConnected {
		tr.Close()
		return nil, fmt.Errorf("unexpected response: %q", resp.Body())
	}
	return tr, nil
}

// Disconnect closes the active connection and waits out the grace period.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.tr == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	port := m.port
	err := m.tr.Close()
	m.tr = nil
	m.port = ""
	m.state = Disconnected
	m.mu.Unlock()

	if err != nil {
		m.log("Closing %s: %v", port, err)
	}
	m.log("Disconnected from %s", port)

	return sleep(ctx, m.gracePeriod)
}

// Close releases the connection without the grace period, for process teardown.
func (m *Manager) Close() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tr == nil {
		return nil
	}
	err := m.tr.Close()
	m.tr = nil
	m.port = ""
	m.state = Disconnected
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
