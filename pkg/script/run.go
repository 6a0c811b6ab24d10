package script

import (
	"context"
	"fmt"
	"time"

	"github.com/robertarm/robert/pkg/arm"
	"github.com/robertarm/robert/pkg/robot"
)

// Arm is the subset of the arm controller a program drives.
type Arm interface {
	DriveToAngles(ctx context.Context, targets []robot.Target) (string, error)
	ToggleStepper(ctx context.Context, joint robot.JointID, enabled bool) (string, error)
	Calibrate(ctx context.Context, joints []robot.JointID) (string, error)
	SetVelocity(ctx context.Context, velocity int8) (string, error)
	SetAcceleration(ctx context.Context, acceleration int8) (string, error)
}

var _ Arm = (*arm.Controller)(nil)

// StepError reports the instruction a program stopped at.
type StepError struct {
	Index int
	Line  int
	Kind  Kind
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("instruction %d (line %d, %s): %v", e.Index+1, e.Line, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Runner executes programs one instruction at a time.
type Runner struct {
	arm   Arm
	logCh chan string
}

// NewRunner creates a runner driving a.
func NewRunner(a Arm) *Runner {
	return &Runner{arm: a, logCh: make(chan string, 10)}
}

// Logs returns a channel that receives log messages.
func (r *Runner) Logs() <-chan string {
	return r.logCh
}

func (r *Runner) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case r.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Run executes prog in order and stops at the first failing instruction.
func (r *Runner) Run(ctx context.Context, prog []Instruction) error {
	for i, ins := range prog {
		if err := ctx.Err(); err != nil {
			return &StepError{Index: i, Line: ins.Line, Kind: ins.Kind, Err: err}
		}

		msg, err := r.exec(ctx, ins)
		if err != nil {
			r.log("Line %d %s failed: %v", ins.Line, ins.Kind, err)
			return &StepError{Index: i, Line: ins.Line, Kind: ins.Kind, Err: err}
		}
		r.log("Line %d %s: %s", ins.Line, ins.Kind, msg)
	}
	return nil
}

func (r *Runner) exec(ctx context.Context, ins Instruction) (string, error) {
	switch ins.Kind {
	case KindMove:
		return r.arm.DriveToAngles(ctx, ins.Targets)
	case KindToggle:
		var last string
		for _, t := range ins.Toggles {
			msg, err := r.arm.ToggleStepper(ctx, t.Joint, t.Enabled)
			if err != nil {
				return "", err
			}
			last = msg
		}
		return last, nil
	case KindCalibrate:
		return r.arm.Calibrate(ctx, ins.Joints)
	case KindSetVelocity:
		return r.arm.SetVelocity(ctx, ins.Value)
	case KindSetAcceleration:
		return r.arm.SetAcceleration(ctx, ins.Value)
	default:
		return "", fmt.Errorf("unknown instruction kind %d", ins.Kind)
	}
}
