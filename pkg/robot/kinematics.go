package robot

import (
	"fmt"
	"math"
	"strings"

	"github.com/robertarm/robert/pkg/protocol"
)

// StepCounts holds signed step counts reported by the device, keyed by joint.
// Joints the device reports as UNKNOWN are absent.
type StepCounts map[JointID]int

// Angles holds calibrated joint angles in degrees. Joints without a known
// position are absent.
type Angles map[JointID]float64

// String renders the angles in joint order, e.g. "J1=28.80 J3=-5.00".
func (a Angles) String() string {
	var sb strings.Builder
	for _, id := range AllJoints() {
		v, ok := a[id]
		if !ok {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%s=%.2f", id, v)
	}
	return sb.String()
}

// Target is a requested absolute angle for one joint.
type Target struct {
	Joint JointID
	Angle float64
}

// StepsToAngle converts a device step count into a joint angle.
func StepsToAngle(id JointID, steps int) (float64, error) {
	j, err := Lookup(id)
	if err != nil {
		return 0, err
	}
	return j.StepsToAngle(steps), nil
}

// AngleToSteps returns the signed relative step count that moves the joint
// from current to target.
func AngleToSteps(id JointID, current, target float64) (int, error) {
	j, err := Lookup(id)
	if err != nil {
		return 0, err
	}
	return j.AngleToSteps(current, target), nil
}

// ValidateTarget checks a target angle against the joint's travel limits.
func ValidateTarget(id JointID, target float64) error {
	j, err := Lookup(id)
	if err != nil {
		return err
	}
	return j.ValidateTarget(target)
}

// StepsToAngle converts a device step count into a joint angle. Inverted
// joints report the negated angle.
func (j Joint) StepsToAngle(steps int) float64 {
	angle := float64(steps) / j.ReductionRatio * j.DegreesPerStep
	if j.DirectionInverted && angle != 0 {
		angle = -angle
	}
	return angle
}

// AngleToSteps returns the signed relative step count for a move from current
// to target, rounded half away from zero.
func (j Joint) AngleToSteps(current, target float64) int {
	raw := (target - current) / j.DegreesPerStep * j.ReductionRatio
	if j.DirectionInverted {
		raw = -raw
	}
	return int(math.Round(raw))
}

// ValidateTarget fails when target is outside [MinAngle, MaxAngle] or is
// NaN. Both bounds are inclusive.
func (j Joint) ValidateTarget(target float64) error {
	if !(target >= j.MinAngle && target <= j.MaxAngle) {
		return fmt.Errorf("%w for %s: %.2f not in [%.2f, %.2f]",
			ErrJointLimitExceeded, j.ID, target, j.MinAngle, j.MaxAngle)
	}
	return nil
}

// Angles converts every known step count into an angle.
func (s StepCounts) Angles() Angles {
	angles := make(Angles, len(s))
	for id, steps := range s {
		j, err := Lookup(id)
		if err != nil {
			continue
		}
		angles[id] = j.StepsToAngle(steps)
	}
	return angles
}

// ComposeMove builds a MOVE command that drives each target joint from its
// current angle to the requested angle. Clauses are emitted in input order.
// Any invalid target fails the whole batch.
func ComposeMove(current Angles, targets []Target) (protocol.Command, error) {
	clauses := make([]protocol.StepClause, 0, len(targets))
	for _, t := range targets {
		j, err := Lookup(t.Joint)
		if err != nil {
			return protocol.Command{}, err
		}
		cur, ok := current[t.Joint]
		if !ok {
			return protocol.Command{}, fmt.Errorf("%w for %s", ErrUnknownCurrentAngle, t.Joint)
		}
		if err := j.ValidateTarget(t.Angle); err != nil {
			return protocol.Command{}, err
		}
		clauses = append(clauses, protocol.StepClause{
			Joint: int(t.Joint),
			Steps: j.AngleToSteps(cur, t.Angle),
		})
	}
	return protocol.Move(clauses...), nil
}
