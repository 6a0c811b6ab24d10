// Package robot provides the joint registry and the kinematics that convert
// between stepper step counts and calibrated joint angles.
package robot

import "fmt"

// NumJoints is the number of joints on the arm (ids 1..NumJoints).
const NumJoints = 6

// JointID identifies a joint on the arm, starting at 1.
type JointID int

// Joint holds the mechanical constants for a single joint.
type Joint struct {
	ID JointID
	// ReductionRatio is motor revolutions per joint revolution.
	ReductionRatio float64
	// DegreesPerStep is the native angular resolution of the stepper.
	DegreesPerStep float64
	MinAngle       float64
	MaxAngle       float64
	// DirectionInverted is set when the home limit switch sits on the
	// positive side, so commanded steps must be negated.
	DirectionInverted bool
}

// joints is indexed by JointID-1.
var joints = [NumJoints]Joint{
	{ID: 1, ReductionRatio: 100.0 / 16.0, DegreesPerStep: 1.8, MaxAngle: 270},
	{ID: 2, ReductionRatio: 80.0 / 16.0, DegreesPerStep: 0.35, MaxAngle: 100},
	{ID: 3, ReductionRatio: 100.0 / 16.0, DegreesPerStep: 1.8, MaxAngle: 120, DirectionInverted: true},
	{ID: 4, ReductionRatio: 60.0 / 16.0, DegreesPerStep: 1.8, MaxAngle: 270, DirectionInverted: true},
	{ID: 5, ReductionRatio: 32.0 / 16.0, DegreesPerStep: 0.9, MaxAngle: 45},
	{ID: 6, ReductionRatio: 1, DegreesPerStep: 1.8, MaxAngle: 360},
}

// Valid reports whether id names a configured joint.
func (id JointID) Valid() bool {
	return id >= 1 && id <= NumJoints
}

// Index returns the zero-based array index for the joint.
func (id JointID) Index() int {
	return int(id) - 1
}

func (id JointID) String() string {
	return fmt.Sprintf("J%d", int(id))
}

// Lookup returns the constants for a joint.
func Lookup(id JointID) (Joint, error) {
	if !id.Valid() {
		return Joint{}, fmt.Errorf("%w: %d", ErrUnknownJoint, int(id))
	}
	return joints[id.Index()], nil
}

// AllJoints returns all joint ids in order.
func AllJoints() []JointID {
	ids := make([]JointID, NumJoints)
	for i := range ids {
		ids[i] = JointID(i + 1)
	}
	return ids
}
