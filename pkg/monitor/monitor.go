// Package monitor provides a polling loop that samples joint angles from
// the arm and streams them to observers.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robertarm/robert/pkg/robot"
)

// DefaultHz is the default sampling rate. Each sample is a STEPS exchange,
// so this stays well below the serial link's capacity.
const DefaultHz = 2

// State is one angle sample.
type State struct {
	Angles    robot.Angles
	Timestamp time.Time
	Error     error
}

// AngleReader reads the current joint angles.
type AngleReader interface {
	StepperAngles(ctx context.Context) (robot.Angles, error)
}

// Config holds configuration for the monitor.
type Config struct {
	Hz int
	// Idle, if set, is called after each sample so an idle listener can
	// drain anything the device sent in between.
	Idle func()
}

// Monitor samples joint angles at a fixed rate.
type Monitor struct {
	arm  AngleReader
	hz   int
	idle func()

	mu      sync.Mutex
	running bool
	last    robot.Angles
	stateCh chan State
	logCh   chan string
}

// New creates a monitor reading from arm.
func New(arm AngleReader, cfg Config) *Monitor {
	if cfg.Hz <= 0 {
		cfg.Hz = DefaultHz
	}
	return &Monitor{
		arm:     arm,
		hz:      cfg.Hz,
		idle:    cfg.Idle,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}
}

// States returns a channel that receives angle samples.
func (m *Monitor) States() <-chan State {
	return m.stateCh
}

// Logs returns a channel that receives log messages.
func (m *Monitor) Logs() <-chan string {
	return m.logCh
}

// Hz returns the sampling rate.
func (m *Monitor) Hz() int {
	return m.hz
}

func (m *Monitor) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case m.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start runs the sampling loop until ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("already running")
	}
	m.running = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		m.log("Monitor stopped")
	}()

	m.log("Monitor started at %d Hz", m.hz)

	ticker := time.NewTicker(time.Second / time.Duration(m.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.step(ctx)
		}
	}
}

func (m *Monitor) step(ctx context.Context) {
	angles, err := m.arm.StepperAngles(ctx)
	if m.idle != nil {
		m.idle()
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.log("Read error: %v", err)
		m.sendState(State{Error: err, Timestamp: time.Now()})
		return
	}

	m.mu.Lock()
	changed := moved(m.last, angles)
	m.last = angles
	m.mu.Unlock()
	if changed {
		m.log("Angles: %s", angles)
	}

	m.sendState(State{
		Angles:    angles,
		Timestamp: time.Now(),
	})
}

// moved reports whether any joint angle differs between two samples.
func moved(prev, cur robot.Angles) bool {
	if prev == nil {
		return true
	}
	if len(prev) != len(cur) {
		return true
	}
	for id, a := range cur {
		if p, ok := prev[id]; !ok || p != a {
			return true
		}
	}
	return false
}

func (m *Monitor) sendState(s State) {
	select {
	case m.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-m.stateCh:
		default:
		}
		select {
		case m.stateCh <- s:
		default:
		}
	}
}
