package robot

import "errors"

var (
	ErrUnknownJoint        = errors.New("unknown joint")
	ErrJointLimitExceeded  = errors.New("target angle exceeds joint limits")
	ErrUnknownCurrentAngle = errors.New("current angle is unknown")
)
