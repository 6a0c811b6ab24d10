package conn

import (
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/robertarm/robert/pkg/transport"
)

// BaudRate is fixed by the controller firmware.
const BaudRate = 115200

// DefaultReadPoll is the serial read timeout. It bounds how long a single
// read blocks, so timeouts and idle reads stay responsive.
const DefaultReadPoll = 50 * time.Millisecond

// Opener opens a named port ready for a transport.
type Opener func(name string) (transport.Port, error)

// SerialOpener opens OS serial ports at 115200 8N1.
func SerialOpener(readPoll time.Duration) Opener {
	if readPoll <= 0 {
		readPoll = DefaultReadPoll
	}
	return func(name string) (transport.Port, error) {
		mode := &serial.Mode{
			BaudRate: BaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		port, err := serial.Open(name, mode)
		if err != nil {
			return nil, fmt.Errorf("open port %s: %w", name, err)
		}
		if err := port.SetReadTimeout(readPoll); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
		return port, nil
	}
}

// ListPorts returns the names of the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	return ports, nil
}

// PortDetails describes a serial port found on the system.
type PortDetails struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListPortDetails returns the serial ports with USB identification, when
// the platform provides it.
func ListPortDetails() ([]PortDetails, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	details := make([]PortDetails, 0, len(ports))
	for _, p := range ports {
		details = append(details, PortDetails{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return details, nil
}
