// Package transport exchanges framed commands with the arm controller over a
// single serial channel, one request and one terminated reply at a time.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/robertarm/robert/pkg/protocol"
)

var (
	ErrWrite           = errors.New("failed to write to serial port")
	ErrRead            = errors.New("error reading from serial port")
	ErrResponseTimeout = errors.New("timeout while waiting for response")
)

// readWindow is the size of each read from the port.
const readWindow = 1024

// Port is the serial channel used by the transport. Reads must return within
// the port's read timeout, with n == 0 when nothing arrived.
type Port interface {
	io.ReadWriteCloser
	// Drain blocks until all written bytes have been transmitted.
	Drain() error
	// ResetInputBuffer discards bytes received but not yet read.
	ResetInputBuffer() error
}

// Transport serializes exchanges on a Port.
type Transport struct {
	port Port

	// mu is held for the whole write+read of an exchange and by idle reads.
	mu sync.Mutex
	// stale is set after a timeout, when a late reply may still be in flight.
	stale bool
}

// New creates a transport over an open port.
func New(port Port) *Transport {
	return &Transport{port: port}
}

// Close closes the underlying port. An exchange blocked in a read fails
// with ErrRead.
func (t *Transport) Close() error {
	return t.port.Close()
}

// Resync discards any pending input.
func (t *Transport) Resync() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resync()
}

func (t *Transport) resync() error {
	t.stale = false
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("reset input buffer: %w", err)
	}
	return nil
}

// SendAndReceive writes cmd with its terminator and waits up to timeout for a
// reply ending in '\n' or '~'. A zero timeout uses protocol.DefaultTimeout.
// Replies starting with a device error code fail with *protocol.DeviceError.
func (t *Transport) SendAndReceive(ctx context.Context, cmd protocol.Command, timeout time.Duration) (protocol.Response, error) {
	if timeout <= 0 {
		timeout = protocol.DefaultTimeout
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stale {
		// Best effort: a failed reset only risks reading the late reply.
		_ = t.resync()
	}

	if _, err := t.port.Write(cmd.Frame()); err != nil {
		return protocol.Response{}, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := t.port.Drain(); err != nil {
		return protocol.Response{}, fmt.Errorf("%w: flush: %w", ErrWrite, err)
	}

	raw, err := t.readReply(ctx, time.Now().Add(timeout))
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.Classify(raw)
}

func (t *Transport) readReply(ctx context.Context, deadline time.Time) ([]byte, error) {
	var response []byte
	buf := make([]byte, readWindow)

	for {
		if err := ctx.Err(); err != nil {
			t.stale = true
			return nil, fmt.Errorf("%w: %w", ErrResponseTimeout, err)
		}
		if !time.Now().Before(deadline) {
			t.stale = true
			return nil, ErrResponseTimeout
		}

		n, err := t.port.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRead, err)
		}
		response = append(response, buf[:n]...)

		if bytes.HasSuffix(response, []byte{'\n'}) || bytes.HasSuffix(response, []byte{protocol.Terminator}) {
			return response, nil
		}
	}
}

// TryReadIdle reads whatever unsolicited bytes are pending, without waiting
// for an exchange in progress. ok is false when the channel was busy.
func (t *Transport) TryReadIdle() (data []byte, ok bool, err error) {
	if !t.mu.TryLock() {
		return nil, false, nil
	}
	defer t.mu.Unlock()

	buf := make([]byte, readWindow)
	n, err := t.port.Read(buf)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return buf[:n], true, nil
}
