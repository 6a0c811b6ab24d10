package conn

import (
	"context"
	"fmt"
	"time"
)

// DefaultListenInterval is how often the idle listener polls for
// unsolicited output.
const DefaultListenInterval = time.Second

// Listener drains unsolicited device output while no exchange is in flight
// and republishes it to observers.
type Listener struct {
	m        *Manager
	interval time.Duration

	wake  chan struct{}
	data  chan string
	logCh chan string
}

// NewListener creates an idle listener for the manager's connection.
func NewListener(m *Manager, interval time.Duration) *Listener {
	if interval <= 0 {
		interval = DefaultListenInterval
	}
	return &Listener{
		m:        m,
		interval: interval,
		wake:     make(chan struct{}, 1),
		data:     make(chan string, 16),
		logCh:    make(chan string, 10),
	}
}

// Unsolicited returns a channel that receives data the device sent outside
// of any exchange.
func (l *Listener) Unsolicited() <-chan string {
	return l.data
}

// Logs returns a channel that receives log messages.
func (l *Listener) Logs() <-chan string {
	return l.logCh
}

// Signal asks the listener to poll now instead of waiting for the next tick.
func (l *Listener) Signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Listener) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case l.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Run polls until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.poll()
		case <-l.wake:
			l.poll()
		}
	}
}

func (l *Listener) poll() {
	tr, err := l.m.Transport()
	if err != nil {
		return
	}

	data, ok, err := tr.TryReadIdle()
	if !ok {
		// An exchange owns the channel; its reply is not ours to take.
		return
	}
	if err != nil {
		l.log("Idle read: %v", err)
		return
	}
	if len(data) == 0 {
		return
	}

	select {
	case l.data <- string(data):
	default:
		l.log("Dropped unsolicited data: %q", data)
	}
}
