// Package transporttest provides an in-memory serial port that scripts the
// arm controller's replies, for tests.
package transporttest

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robertarm/robert/pkg/protocol"
)

var ErrClosed = errors.New("port closed")

// Reply is what the fake device sends back for one command.
type Reply struct {
	Data  string
	Delay time.Duration
}

// Handler answers a command frame (without its terminator).
type Handler func(command string) Reply

// Port is a fake serial port. The zero value is not usable; use NewPort.
type Port struct {
	Handler Handler
	// PollInterval bounds how long Read blocks with no data, like a serial
	// read timeout.
	PollInterval time.Duration

	WriteErr error
	DrainErr error

	mu       sync.Mutex
	pending  []byte
	in       []byte
	commands []string
	resets   int
	closed   bool

	signal   chan struct{}
	closedCh chan struct{}
}

// NewPort returns a port answering with h.
func NewPort(h Handler) *Port {
	return &Port{
		Handler:      h,
		PollInterval: 5 * time.Millisecond,
		signal:       make(chan struct{}, 1),
		closedCh:     make(chan struct{}),
	}
}

// Static answers every command with the same reply.
func Static(data string) Handler {
	return func(string) Reply { return Reply{Data: data} }
}

// Write records complete frames and schedules the handler's reply.
func (p *Port) Write(b []byte) (int, error) {
	if p.WriteErr != nil {
		return 0, p.WriteErr
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	p.pending = append(p.pending, b...)
	var frames []string
	for {
		i := strings.IndexByte(string(p.pending), protocol.Terminator)
		if i < 0 {
			break
		}
		frames = append(frames, string(p.pending[:i]))
		p.pending = p.pending[i+1:]
	}
	p.commands = append(p.commands, frames...)
	p.mu.Unlock()

	for _, f := range frames {
		if p.Handler == nil {
			continue
		}
		r := p.Handler(f)
		if r.Data == "" {
			continue
		}
		if r.Delay > 0 {
			data := r.Data
			time.AfterFunc(r.Delay, func() { p.Push(data) })
		} else {
			p.Push(r.Data)
		}
	}
	return len(b), nil
}

// Push makes data available to readers, as if sent by the device.
func (p *Port) Push(data string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.in = append(p.in, data...)
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Read returns pending bytes, or (0, nil) after PollInterval.
func (p *Port) Read(b []byte) (int, error) {
	timer := time.NewTimer(p.PollInterval)
	defer timer.Stop()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return 0, ErrClosed
		}
		if len(p.in) > 0 {
			n := copy(b, p.in)
			p.in = p.in[n:]
			p.mu.Unlock()
			return n, nil
		}
		p.mu.Unlock()

		select {
		case <-p.signal:
		case <-p.closedCh:
			return 0, ErrClosed
		case <-timer.C:
			return 0, nil
		}
	}
}

func (p *Port) Drain() error {
	return p.DrainErr
}

func (p *Port) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in = nil
	p.resets++
	return nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.closedCh)
	return nil
}

// Commands returns every command frame written so far, without terminators.
func (p *Port) Commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.commands...)
}

// Resets returns how often the input buffer was reset.
func (p *Port) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

// Closed reports whether Close was called.
func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
