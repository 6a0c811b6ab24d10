// Package protocol implements the arm controller's ASCII command set.
//
// Every exchange is a single command, `<OPCODE><payload>~`, answered by a
// single reply terminated by `~` or a newline.
package protocol

import (
	"fmt"
	"strings"
	"time"
)

// Terminator is appended to every outbound command.
const Terminator = '~'

// Opcode is the command prefix, including the trailing '>'.
type Opcode string

const (
	OpMove      Opcode = "MOVE>"
	OpCheck     Opcode = "CHECK>"
	OpSetVel    Opcode = "SETVEL>"
	OpSetAcc    Opcode = "SETACC>"
	OpToggle    Opcode = "TOGGLE>"
	OpCalibrate Opcode = "CALIBRATE>"
	OpState     Opcode = "STATE>"
	OpSteps     Opcode = "STEPS>"
	OpParams    Opcode = "PARAMS>"
)

// ParametersMultiplier scales velocity and acceleration on the wire.
const ParametersMultiplier = 10

// Stepper state words accepted by TOGGLE and reported by STATE.
const (
	Enabled  = "ENABLED"
	Disabled = "DISABLED"
	Unknown  = "UNKNOWN"
)

// Response timeouts. Homing and long moves need far more than the default.
const (
	DefaultTimeout   = 3 * time.Second
	StepsTimeout     = 8 * time.Second
	MoveTimeout      = 20 * time.Second
	CalibrateTimeout = 35 * time.Second
)

// Command is one outbound request. The terminator is added by the transport.
type Command struct {
	Op      Opcode
	Payload string
}

func (c Command) String() string {
	return string(c.Op) + c.Payload
}

// Empty reports whether the command carries no payload.
func (c Command) Empty() bool {
	return c.Payload == ""
}

// Frame returns the bytes written to the wire.
func (c Command) Frame() []byte {
	b := make([]byte, 0, len(c.Op)+len(c.Payload)+1)
	b = append(b, c.Op...)
	b = append(b, c.Payload...)
	return append(b, Terminator)
}

// Timeout returns the default response timeout for the command's opcode.
func (c Command) Timeout() time.Duration {
	switch c.Op {
	case OpSteps:
		return StepsTimeout
	case OpMove:
		return MoveTimeout
	case OpCalibrate:
		return CalibrateTimeout
	default:
		return DefaultTimeout
	}
}

// StepClause is a `J<id>_<steps>;` clause of a MOVE command.
type StepClause struct {
	Joint int
	Steps int
}

func Check() Command  { return Command{Op: OpCheck} }
func State() Command  { return Command{Op: OpState} }
func Steps() Command  { return Command{Op: OpSteps} }
func Params() Command { return Command{Op: OpParams} }

// Move builds a relative step move. With no clauses the command is empty.
func Move(clauses ...StepClause) Command {
	var sb strings.Builder
	for _, c := range clauses {
		fmt.Fprintf(&sb, "J%d_%d;", c.Joint, c.Steps)
	}
	return Command{Op: OpMove, Payload: sb.String()}
}

// SetVelocity scales v by ParametersMultiplier.
func SetVelocity(v int8) Command {
	return Command{Op: OpSetVel, Payload: fmt.Sprint(int(v) * ParametersMultiplier)}
}

// SetAcceleration scales a by ParametersMultiplier.
func SetAcceleration(a int8) Command {
	return Command{Op: OpSetAcc, Payload: fmt.Sprint(int(a) * ParametersMultiplier)}
}

// Toggle enables or disables one stepper.
func Toggle(joint int, enabled bool) Command {
	state := Disabled
	if enabled {
		state = Enabled
	}
	return Command{Op: OpToggle, Payload: fmt.Sprintf("J%d_%s;", joint, state)}
}

// Calibrate homes the given joints in order.
func Calibrate(joints ...int) Command {
	var sb strings.Builder
	for _, j := range joints {
		fmt.Fprintf(&sb, "J%d;", j)
	}
	return Command{Op: OpCalibrate, Payload: sb.String()}
}
