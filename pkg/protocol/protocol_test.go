package protocol

import (
	"errors"
	"math"
	"testing"
)

func TestCommand_Frame(t *testing.T) {
	tests := []struct {
		cmd      Command
		expected string
	}{
		{Check(), "CHECK>~"},
		{State(), "STATE>~"},
		{Steps(), "STEPS>~"},
		{Params(), "PARAMS>~"},
		{Move(StepClause{1, 200}, StepClause{3, -45}), "MOVE>J1_200;J3_-45;~"},
		{Move(), "MOVE>~"},
		{SetVelocity(5), "SETVEL>50~"},
		{SetAcceleration(-3), "SETACC>-30~"},
		{Toggle(2, true), "TOGGLE>J2_ENABLED;~"},
		{Toggle(6, false), "TOGGLE>J6_DISABLED;~"},
		{Calibrate(1, 4), "CALIBRATE>J1;J4;~"},
	}

	for _, tt := range tests {
		if got := string(tt.cmd.Frame()); got != tt.expected {
			t.Errorf("Frame() = %q, want %q", got, tt.expected)
		}
	}
}

func TestCommand_Empty(t *testing.T) {
	if !Move().Empty() {
		t.Error("Move() without clauses should be empty")
	}
	if Move(StepClause{1, 1}).Empty() {
		t.Error("Move() with a clause should not be empty")
	}
}

func TestCommand_Timeout(t *testing.T) {
	tests := []struct {
		cmd      Command
		expected string
	}{
		{Check(), DefaultTimeout.String()},
		{Steps(), StepsTimeout.String()},
		{Move(StepClause{1, 1}), MoveTimeout.String()},
		{Calibrate(1), CalibrateTimeout.String()},
	}
	for _, tt := range tests {
		if got := tt.cmd.Timeout().String(); got != tt.expected {
			t.Errorf("%s Timeout() = %s, want %s", tt.cmd.Op, got, tt.expected)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		raw  string
		kind Kind
	}{
		{"CONNECTED\r\n", KindConnected},
		{"CONNECTED~", KindConnected},
		{"[CALIBRATION];J1;~", KindCalibration},
		{"[STATE];J1_ENABLED;~", KindState},
		{"[STEPS];J1_200;~", KindSteps},
		{"[PARAMS];VEL_50;ACC_30;~", KindParams},
		{"Moving stepper: J1 200 steps\r\n", KindRaw},
	}

	for _, tt := range tests {
		r, err := Classify([]byte(tt.raw))
		if err != nil {
			t.Fatalf("Classify(%q) error: %v", tt.raw, err)
		}
		if r.Kind != tt.kind {
			t.Errorf("Classify(%q) kind = %s, want %s", tt.raw, r.Kind, tt.kind)
		}
		if r.Text != tt.raw {
			t.Errorf("Classify(%q) text = %q", tt.raw, r.Text)
		}
	}
}

func TestClassify_DeviceError(t *testing.T) {
	_, err := Classify([]byte("I001\r\n"))
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected DeviceError, got %v", err)
	}
	if devErr.Code != "I001" || devErr.Message != "Invalid stepper" {
		t.Errorf("unexpected device error: %+v", devErr)
	}

	// Codes are matched case-sensitively at the start only.
	for _, raw := range []string{"i001\n", "ok I001\n"} {
		if _, err := Classify([]byte(raw)); err != nil {
			t.Errorf("Classify(%q) should not fail: %v", raw, err)
		}
	}
}

func TestClassify_InvalidUTF8(t *testing.T) {
	r, err := Classify([]byte{'o', 'k', 0xff, '~'})
	if err != nil {
		t.Fatal(err)
	}
	if r.Text != "ok�~" {
		t.Errorf("Text = %q", r.Text)
	}
}

func TestParseState(t *testing.T) {
	r, _ := Classify([]byte("[STATE];J1_ENABLED;J2_UNKNOWN;J4_ENABLED;J9_ENABLED;~"))
	got := ParseState(r)
	expected := [6]bool{true, false, false, true, false, false}
	if got != expected {
		t.Errorf("ParseState() = %v, want %v", got, expected)
	}
}

func TestParseSteps(t *testing.T) {
	r, _ := Classify([]byte("[STEPS];J1_200;J2_UNKNOWN;J3_-75;J5_junk;~"))
	got := ParseSteps(r)

	if len(got) != 2 {
		t.Fatalf("ParseSteps() returned %d joints, want 2: %v", len(got), got)
	}
	if got[1] != 200 {
		t.Errorf("J1 = %d, want 200", got[1])
	}
	if got[3] != -75 {
		t.Errorf("J3 = %d, want -75", got[3])
	}
	if _, ok := got[2]; ok {
		t.Error("J2 should be unknown")
	}
}

func TestParseParams(t *testing.T) {
	r, _ := Classify([]byte("[PARAMS];VEL_50;ACC_35;~"))
	p, err := ParseParams(r)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(p.Velocity-5) > 0.001 || math.Abs(p.Acceleration-3.5) > 0.001 {
		t.Errorf("ParseParams() = %+v", p)
	}

	r, _ = Classify([]byte("[PARAMS];VEL_50;~"))
	if _, err := ParseParams(r); err == nil {
		t.Error("expected error for missing ACC")
	}
}

func TestErrorMessage(t *testing.T) {
	for _, code := range []string{"C001", "C002", "I001", "I002", "I003"} {
		if _, ok := ErrorMessage(code); !ok {
			t.Errorf("ErrorMessage(%s) missing", code)
		}
	}
	if _, ok := ErrorMessage("X999"); ok {
		t.Error("ErrorMessage(X999) should be unknown")
	}
}
