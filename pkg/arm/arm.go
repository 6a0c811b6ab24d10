// Package arm is the caller-facing surface for driving the robot arm: it
// turns joint-level requests into protocol exchanges and keeps the angle
// snapshot used as the baseline for relative moves.
package arm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robertarm/robert/pkg/conn"
	"github.com/robertarm/robert/pkg/protocol"
	"github.com/robertarm/robert/pkg/robot"
)

var ErrNoJoints = errors.New("no joints given")

// Connection is the link to the arm controller.
type Connection interface {
	Connect(ctx context.Context, port string) error
	Disconnect(ctx context.Context) error
	Exchange(ctx context.Context, cmd protocol.Command, timeout time.Duration) (protocol.Response, error)
}

var _ Connection = (*conn.Manager)(nil)

// Timeouts overrides the per-opcode response timeouts. Zero values keep the
// protocol defaults.
type Timeouts struct {
	Default   time.Duration
	Steps     time.Duration
	Move      time.Duration
	Calibrate time.Duration
}

// Controller drives the arm over a Connection.
type Controller struct {
	conn     Connection
	timeouts Timeouts

	mu       sync.RWMutex
	snapshot robot.Angles
	fresh    bool

	anglesCh chan robot.Angles
	logCh    chan string
}

// NewController creates a controller using c for all exchanges.
func NewController(c Connection, timeouts Timeouts) *Controller {
	return &Controller{
		conn:     c,
		timeouts: timeouts,
		anglesCh: make(chan robot.Angles, 1),
		logCh:    make(chan string, 10),
	}
}

// Angles returns a channel that receives every refreshed angle snapshot.
// Only the latest snapshot is kept if the reader falls behind.
func (c *Controller) Angles() <-chan robot.Angles {
	return c.anglesCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Snapshot returns a copy of the cached angles and whether they were
// refreshed since the last connect.
func (c *Controller) Snapshot() (robot.Angles, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	angles := make(robot.Angles, len(c.snapshot))
	for id, a := range c.snapshot {
		angles[id] = a
	}
	return angles, c.fresh
}

func (c *Controller) setSnapshot(angles robot.Angles) {
	c.mu.Lock()
	c.snapshot = angles
	c.fresh = true
	c.mu.Unlock()
}

func (c *Controller) clearSnapshot() {
	c.mu.Lock()
	c.snapshot = nil
	c.fresh = false
	c.mu.Unlock()
}

func (c *Controller) publish(angles robot.Angles) {
	select {
	case c.anglesCh <- angles:
	default:
		// Drop old snapshot if channel full, replace with new
		select {
		case <-c.anglesCh:
		default:
		}
		select {
		case c.anglesCh <- angles:
		default:
		}
	}
}

func (c *Controller) timeout(cmd protocol.Command) time.Duration {
	var d time.Duration
	switch cmd.Op {
	case protocol.OpSteps:
		d = c.timeouts.Steps
	case protocol.OpMove:
		d = c.timeouts.Move
	case protocol.OpCalibrate:
		d = c.timeouts.Calibrate
	default:
		d = c.timeouts.Default
	}
	if d <= 0 {
		return cmd.Timeout()
	}
	return d
}

func (c *Controller) exchange(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	resp, err := c.conn.Exchange(ctx, cmd, c.timeout(cmd))
	if err != nil {
		c.log("%s failed: %v", cmd.Op, err)
		return protocol.Response{}, err
	}
	return resp, nil
}

// Connect opens port and verifies the controller answers.
func (c *Controller) Connect(ctx context.Context, port string) (string, error) {
	c.clearSnapshot()
	if err := c.conn.Connect(ctx, port); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully connected to port: %s.", port), nil
}

// Disconnect closes the active connection.
func (c *Controller) Disconnect(ctx context.Context) (string, error) {
	c.clearSnapshot()
	if err := c.conn.Disconnect(ctx); err != nil {
		return "", err
	}
	return "Disconnected from active connection.", nil
}

// SetVelocity sets the stepper velocity.
func (c *Controller) SetVelocity(ctx context.Context, velocity int8) (string, error) {
	resp, err := c.exchange(ctx, protocol.SetVelocity(velocity))
	if err != nil {
		return "", fmt.Errorf("set velocity: %w", err)
	}
	return "Velocity set. Response: " + resp.Body(), nil
}

// SetAcceleration sets the stepper acceleration.
func (c *Controller) SetAcceleration(ctx context.Context, acceleration int8) (string, error) {
	resp, err := c.exchange(ctx, protocol.SetAcceleration(acceleration))
	if err != nil {
		return "", fmt.Errorf("set acceleration: %w", err)
	}
	return "Acceleration set. Response: " + resp.Body(), nil
}

// MoveStep moves one joint by a raw, signed step count.
func (c *Controller) MoveStep(ctx context.Context, joint robot.JointID, steps int) (string, error) {
	if _, err := robot.Lookup(joint); err != nil {
		return "", err
	}
	resp, err := c.exchange(ctx, protocol.Move(protocol.StepClause{Joint: int(joint), Steps: steps}))
	if err != nil {
		return "", fmt.Errorf("move %s: %w", joint, err)
	}
	c.refreshAfterMove(ctx)
	return "Successfully sent move command. Response: " + resp.Body(), nil
}

// ToggleStepper enables or disables one stepper.
func (c *Controller) ToggleStepper(ctx context.Context, joint robot.JointID, enabled bool) (string, error) {
	if _, err := robot.Lookup(joint); err != nil {
		return "", err
	}
	resp, err := c.exchange(ctx, protocol.Toggle(int(joint), enabled))
	if err != nil {
		return "", fmt.Errorf("toggle %s: %w", joint, err)
	}
	return "Stepper toggled. Response: " + resp.Body(), nil
}

// Calibrate homes the given joints. All ids are checked before anything is sent.
func (c *Controller) Calibrate(ctx context.Context, joints []robot.JointID) (string, error) {
	if len(joints) == 0 {
		return "", fmt.Errorf("calibrate: %w", ErrNoJoints)
	}
	ids := make([]int, 0, len(joints))
	for _, j := range joints {
		if _, err := robot.Lookup(j); err != nil {
			return "", err
		}
		ids = append(ids, int(j))
	}

	resp, err := c.exchange(ctx, protocol.Calibrate(ids...))
	if err != nil {
		return "", fmt.Errorf("calibrate: %w", err)
	}
	c.refreshAfterMove(ctx)
	return "Calibration finished. Response: " + resp.Body(), nil
}

// StepperStates returns the enabled flag of every stepper, indexed by joint
// id minus one.
func (c *Controller) StepperStates(ctx context.Context) ([robot.NumJoints]bool, error) {
	resp, err := c.exchange(ctx, protocol.State())
	if err != nil {
		return [robot.NumJoints]bool{}, fmt.Errorf("get stepper states: %w", err)
	}
	return protocol.ParseState(resp), nil
}

// StepperAngles reads the step counts, converts them to angles, refreshes the
// snapshot and publishes it. Joints the device cannot locate are absent.
func (c *Controller) StepperAngles(ctx context.Context) (robot.Angles, error) {
	resp, err := c.exchange(ctx, protocol.Steps())
	if err != nil {
		return nil, fmt.Errorf("get stepper steps: %w", err)
	}

	counts := make(robot.StepCounts)
	for id, steps := range protocol.ParseSteps(resp) {
		counts[robot.JointID(id)] = steps
	}
	angles := counts.Angles()

	c.setSnapshot(angles)
	c.publish(angles)
	return angles, nil
}

// Parameters returns the current velocity and acceleration.
func (c *Controller) Parameters(ctx context.Context) (protocol.Parameters, error) {
	resp, err := c.exchange(ctx, protocol.Params())
	if err != nil {
		return protocol.Parameters{}, fmt.Errorf("get parameters: %w", err)
	}
	return protocol.ParseParams(resp)
}

// DriveToAngles moves joints to absolute angles. Current angles are read
// first; the whole batch is rejected before sending if any target is invalid.
// An empty batch sends nothing.
func (c *Controller) DriveToAngles(ctx context.Context, targets []robot.Target) (string, error) {
	if len(targets) == 0 {
		return "No joints to move.", nil
	}

	current, err := c.StepperAngles(ctx)
	if err != nil {
		return "", err
	}

	cmd, err := robot.ComposeMove(current, targets)
	if err != nil {
		return "", err
	}

	resp, err := c.exchange(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("move: %w", err)
	}

	if _, err := c.StepperAngles(ctx); err != nil {
		return "", fmt.Errorf("retrieve stepper angles: %w", err)
	}
	return "Successfully sent move command. Response: " + resp.Body(), nil
}

// refreshAfterMove republishes angles once a move finished. Failure only
// leaves the snapshot stale, so it is logged rather than returned.
func (c *Controller) refreshAfterMove(ctx context.Context) {
	if _, err := c.StepperAngles(ctx); err != nil {
		c.log("Refresh angles: %v", err)
	}
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	return conn.ListPorts()
}

// ListPortDetails returns the serial ports with USB identification.
func ListPortDetails() ([]conn.PortDetails, error) {
	return conn.ListPortDetails()
}
