package arm

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robertarm/robert/pkg/conn"
	"github.com/robertarm/robert/pkg/protocol"
	"github.com/robertarm/robert/pkg/robot"
	"github.com/robertarm/robert/pkg/transport"
	"github.com/robertarm/robert/pkg/transport/transporttest"
)

type testRig struct {
	ctrl   *Controller
	device *fakeDevice

	mu   sync.Mutex
	port *transporttest.Port
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	rig := &testRig{device: newFakeDevice()}
	m := conn.NewManager(conn.Config{
		Opener: func(string) (transport.Port, error) {
			p := transporttest.NewPort(rig.device.handler())
			rig.mu.Lock()
			rig.port = p
			rig.mu.Unlock()
			return p, nil
		},
		RetryDelay:  time.Millisecond,
		GracePeriod: time.Millisecond,
	})
	t.Cleanup(func() { m.Close() })
	rig.ctrl = NewController(m, Timeouts{})
	return rig
}

func (r *testRig) connect(t *testing.T) {
	t.Helper()
	if _, err := r.ctrl.Connect(context.Background(), "/dev/ttyACM0"); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
}

// commands returns the commands written after the handshake.
func (r *testRig) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmds := r.port.Commands()
	if len(cmds) > 0 && cmds[0] == "CHECK>" {
		cmds = cmds[1:]
	}
	return cmds
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 0.001
}

func TestController_Connect(t *testing.T) {
	rig := newTestRig(t)
	msg, err := rig.ctrl.Connect(context.Background(), "/dev/ttyACM0")
	if err != nil {
		t.Fatal(err)
	}
	if msg != "Successfully connected to port: /dev/ttyACM0." {
		t.Errorf("message = %q", msg)
	}
	if _, fresh := rig.ctrl.Snapshot(); fresh {
		t.Error("snapshot should not be fresh right after connect")
	}
}

func TestController_NotConnected(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if _, err := rig.ctrl.StepperAngles(ctx); !errors.Is(err, conn.ErrNotConnected) {
		t.Errorf("StepperAngles() error = %v, want ErrNotConnected", err)
	}
	if _, err := rig.ctrl.Disconnect(ctx); !errors.Is(err, conn.ErrNotConnected) {
		t.Errorf("Disconnect() error = %v, want ErrNotConnected", err)
	}
}

func TestController_StepperAngles(t *testing.T) {
	rig := newTestRig(t)
	rig.device.override = func(cmd string) (string, bool) {
		if cmd == "STEPS>" {
			return "[STEPS];J1_200;J2_UNKNOWN;~", true
		}
		return "", false
	}
	rig.connect(t)

	angles, err := rig.ctrl.StepperAngles(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want, _ := robot.StepsToAngle(1, 200)
	if got, ok := angles[1]; !ok || !approx(got, want) {
		t.Errorf("J1 = %v (known %v), want %f", got, ok, want)
	}
	for _, id := range robot.AllJoints()[1:] {
		if _, ok := angles[id]; ok {
			t.Errorf("%s should be unknown", id)
		}
	}

	select {
	case published := <-rig.ctrl.Angles():
		if !approx(published[1], want) {
			t.Errorf("published J1 = %f", published[1])
		}
	default:
		t.Error("angles were not published")
	}

	snap, fresh := rig.ctrl.Snapshot()
	if !fresh || !approx(snap[1], want) {
		t.Errorf("Snapshot() = %v, %v", snap, fresh)
	}
}

func TestController_DriveToAngles(t *testing.T) {
	rig := newTestRig(t)
	rig.device.steps = map[int]int{1: 0, 2: 0, 3: 0}
	rig.connect(t)

	msg, err := rig.ctrl.DriveToAngles(context.Background(), []robot.Target{
		{Joint: 1, Angle: 57.6},
		{Joint: 2, Angle: 7},
		{Joint: 3, Angle: 28.8},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(msg, "Successfully sent move command.") {
		t.Errorf("message = %q", msg)
	}

	want := []string{"STEPS>", "MOVE>J1_200;J2_100;J3_-100;", "STEPS>"}
	got := rig.commands()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("commands = %v, want %v", got, want)
	}

	snap, _ := rig.ctrl.Snapshot()
	if !approx(snap[1], 57.6) || !approx(snap[2], 7) || !approx(snap[3], 28.8) {
		t.Errorf("snapshot after move = %v", snap)
	}
}

func TestController_DriveToAngles_Empty(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)

	if _, err := rig.ctrl.DriveToAngles(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if cmds := rig.commands(); len(cmds) != 0 {
		t.Errorf("empty drive should send nothing, sent %v", cmds)
	}
}

func TestController_DriveToAngles_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		targets []robot.Target
		want    error
	}{
		{"unknown current angle", []robot.Target{{Joint: 1, Angle: 10}, {Joint: 4, Angle: 10}}, robot.ErrUnknownCurrentAngle},
		{"unknown joint", []robot.Target{{Joint: 7, Angle: 10}}, robot.ErrUnknownJoint},
		{"limit exceeded", []robot.Target{{Joint: 5, Angle: 46}}, robot.ErrJointLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newTestRig(t)
			rig.device.steps = map[int]int{1: 0, 5: 0}
			rig.connect(t)

			_, err := rig.ctrl.DriveToAngles(context.Background(), tt.targets)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			for _, cmd := range rig.commands() {
				if strings.HasPrefix(cmd, "MOVE>") {
					t.Errorf("rejected batch must not be sent, got %q", cmd)
				}
			}
		})
	}
}

func TestController_DriveToAngles_DeviceError(t *testing.T) {
	rig := newTestRig(t)
	rig.device.steps = map[int]int{1: 100}
	rig.device.override = func(cmd string) (string, bool) {
		if strings.HasPrefix(cmd, "MOVE>") {
			return "I001\r\n", true
		}
		return "", false
	}
	rig.connect(t)

	_, err := rig.ctrl.DriveToAngles(context.Background(), []robot.Target{{Joint: 1, Angle: 90}})
	var devErr *protocol.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected DeviceError, got %v", err)
	}
	if devErr.Code != "I001" || devErr.Message != "Invalid stepper" {
		t.Errorf("device error = %+v", devErr)
	}

	snap, _ := rig.ctrl.Snapshot()
	if !approx(snap[1], 28.8) || len(snap) != 1 {
		t.Errorf("snapshot changed after failed move: %v", snap)
	}
	if cmds := rig.commands(); len(cmds) != 2 {
		t.Errorf("no refresh expected after a failed move, commands = %v", cmds)
	}
}

func TestController_MoveStep(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)
	ctx := context.Background()

	if _, err := rig.ctrl.MoveStep(ctx, 3, -50); err != nil {
		t.Fatal(err)
	}
	if rig.device.steps[3] != -50 {
		t.Errorf("device J3 steps = %d, want -50", rig.device.steps[3])
	}
	if cmds := rig.commands(); len(cmds) == 0 || cmds[0] != "MOVE>J3_-50;" {
		t.Errorf("commands = %v", cmds)
	}

	before := len(rig.commands())
	if _, err := rig.ctrl.MoveStep(ctx, 0, 10); !errors.Is(err, robot.ErrUnknownJoint) {
		t.Errorf("MoveStep(0) error = %v, want ErrUnknownJoint", err)
	}
	if len(rig.commands()) != before {
		t.Error("invalid joint must not reach the device")
	}
}

func TestController_ToggleAndStates(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)
	ctx := context.Background()

	if _, err := rig.ctrl.ToggleStepper(ctx, 2, true); err != nil {
		t.Fatal(err)
	}
	if _, err := rig.ctrl.ToggleStepper(ctx, 5, true); err != nil {
		t.Fatal(err)
	}
	if _, err := rig.ctrl.ToggleStepper(ctx, 5, false); err != nil {
		t.Fatal(err)
	}

	states, err := rig.ctrl.StepperStates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	expected := [robot.NumJoints]bool{false, true, false, false, false, false}
	if states != expected {
		t.Errorf("StepperStates() = %v, want %v", states, expected)
	}
}

func TestController_Calibrate(t *testing.T) {
	rig := newTestRig(t)
	rig.device.steps = map[int]int{1: 500, 2: 40}
	rig.connect(t)
	ctx := context.Background()

	if _, err := rig.ctrl.Calibrate(ctx, nil); !errors.Is(err, ErrNoJoints) {
		t.Errorf("Calibrate(nil) error = %v, want ErrNoJoints", err)
	}
	if _, err := rig.ctrl.Calibrate(ctx, []robot.JointID{1, 9}); !errors.Is(err, robot.ErrUnknownJoint) {
		t.Errorf("Calibrate with J9 error = %v, want ErrUnknownJoint", err)
	}

	if _, err := rig.ctrl.Calibrate(ctx, []robot.JointID{1, 2}); err != nil {
		t.Fatal(err)
	}
	cmds := rig.commands()
	if len(cmds) == 0 || cmds[0] != "CALIBRATE>J1;J2;" {
		t.Errorf("commands = %v", cmds)
	}
	snap, _ := rig.ctrl.Snapshot()
	if snap[1] != 0 || snap[2] != 0 {
		t.Errorf("snapshot after calibration = %v", snap)
	}
}

func TestController_Parameters(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)
	ctx := context.Background()

	if _, err := rig.ctrl.SetVelocity(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := rig.ctrl.SetAcceleration(ctx, 12); err != nil {
		t.Fatal(err)
	}

	params, err := rig.ctrl.Parameters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(params.Velocity, 5) || !approx(params.Acceleration, 12) {
		t.Errorf("Parameters() = %+v", params)
	}
	if cmds := rig.commands(); cmds[0] != "SETVEL>50" || cmds[1] != "SETACC>120" {
		t.Errorf("commands = %v", cmds)
	}
}

func TestController_Disconnect(t *testing.T) {
	rig := newTestRig(t)
	rig.device.steps = map[int]int{1: 0}
	rig.connect(t)
	ctx := context.Background()

	if _, err := rig.ctrl.StepperAngles(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := rig.ctrl.Disconnect(ctx); err != nil {
		t.Fatal(err)
	}
	if snap, fresh := rig.ctrl.Snapshot(); fresh || len(snap) != 0 {
		t.Errorf("snapshot should be cleared on disconnect: %v %v", snap, fresh)
	}
}

func TestController_ConcurrentCallers(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := rig.ctrl.SetVelocity(ctx, int8(i))
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := rig.ctrl.StepperStates(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	for _, cmd := range rig.commands() {
		if cmd != "STATE>" && !strings.HasPrefix(cmd, "SETVEL>") {
			t.Errorf("interleaved command on the wire: %q", cmd)
		}
	}
}
