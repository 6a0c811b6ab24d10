// Package script parses and runs motion programs: text files with one
// command per line, in the controller's command syntax, where MOVE takes
// absolute joint angles instead of step counts.
//
//	// wave
//	TOGGLE>J1_ENABLED;J2_ENABLED;
//	SETVEL>5
//	MOVE>J1_90;J2_45;
//	CALIBRATE>J1;J2;
package script

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/robertarm/robert/pkg/protocol"
	"github.com/robertarm/robert/pkg/robot"
)

// Kind is the type of a program instruction.
type Kind int

const (
	KindMove Kind = iota
	KindToggle
	KindCalibrate
	KindSetVelocity
	KindSetAcceleration
)

func (k Kind) String() string {
	switch k {
	case KindMove:
		return "MOVE"
	case KindToggle:
		return "TOGGLE"
	case KindCalibrate:
		return "CALIBRATE"
	case KindSetVelocity:
		return "SETVEL"
	case KindSetAcceleration:
		return "SETACC"
	default:
		return "UNKNOWN"
	}
}

// Toggle is one stepper state change.
type Toggle struct {
	Joint   robot.JointID
	Enabled bool
}

// Instruction is one parsed program line. Only the fields for its Kind are set.
type Instruction struct {
	Line int
	Kind Kind

	Targets []robot.Target
	Toggles []Toggle
	Joints  []robot.JointID
	Value   int8
}

// ParseError reports the first invalid program line.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse reads a program. Blank lines and lines starting with // are skipped.
func Parse(r io.Reader) ([]Instruction, error) {
	var prog []Instruction
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "//") {
			continue
		}

		ins, err := parseLine(text)
		if err != nil {
			return nil, &ParseError{Line: line, Text: text, Err: err}
		}
		ins.Line = line
		prog = append(prog, ins)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}
	return prog, nil
}

func parseLine(text string) (Instruction, error) {
	opEnd := strings.IndexByte(text, '>')
	if opEnd < 0 {
		return Instruction{}, fmt.Errorf("missing '>' after command")
	}
	op, args := protocol.Opcode(text[:opEnd+1]), strings.TrimSpace(text[opEnd+1:])

	switch op {
	case protocol.OpMove:
		targets, err := parseTargets(args)
		return Instruction{Kind: KindMove, Targets: targets}, err
	case protocol.OpToggle:
		toggles, err := parseToggles(args)
		return Instruction{Kind: KindToggle, Toggles: toggles}, err
	case protocol.OpCalibrate:
		joints, err := parseJoints(args)
		return Instruction{Kind: KindCalibrate, Joints: joints}, err
	case protocol.OpSetVel:
		v, err := parseValue(args)
		return Instruction{Kind: KindSetVelocity, Value: v}, err
	case protocol.OpSetAcc:
		v, err := parseValue(args)
		return Instruction{Kind: KindSetAcceleration, Value: v}, err
	default:
		return Instruction{}, fmt.Errorf("unknown command %s", op)
	}
}

// clauses splits `a;b;c;` into trimmed, non-empty parts.
func clauses(args string) []string {
	var out []string
	for part := range strings.SplitSeq(args, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseJoint(s string) (robot.JointID, error) {
	rest, ok := strings.CutPrefix(s, "J")
	if !ok {
		return 0, fmt.Errorf("joint %q must start with J", s)
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("joint %q: %w", s, err)
	}
	id := robot.JointID(n)
	if _, err := robot.Lookup(id); err != nil {
		return 0, err
	}
	return id, nil
}

func parseTargets(args string) ([]robot.Target, error) {
	var targets []robot.Target
	for _, c := range clauses(args) {
		joint, value, ok := strings.Cut(c, "_")
		if !ok {
			return nil, fmt.Errorf("expected J<id>_<angle>, got %q", c)
		}
		id, err := parseJoint(joint)
		if err != nil {
			return nil, err
		}
		angle, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("angle for %s: %w", id, err)
		}
		if math.IsNaN(angle) || math.IsInf(angle, 0) {
			return nil, fmt.Errorf("angle for %s: %w: %s", id, robot.ErrJointLimitExceeded, value)
		}
		targets = append(targets, robot.Target{Joint: id, Angle: angle})
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no joints given")
	}
	return targets, nil
}

func parseToggles(args string) ([]Toggle, error) {
	var toggles []Toggle
	for _, c := range clauses(args) {
		joint, state, ok := strings.Cut(c, "_")
		if !ok {
			return nil, fmt.Errorf("expected J<id>_<state>, got %q", c)
		}
		id, err := parseJoint(joint)
		if err != nil {
			return nil, err
		}
		var enabled bool
		switch strings.ToUpper(state) {
		case protocol.Enabled, "ON":
			enabled = true
		case protocol.Disabled, "OFF":
			enabled = false
		default:
			return nil, fmt.Errorf("invalid state %q for %s", state, id)
		}
		toggles = append(toggles, Toggle{Joint: id, Enabled: enabled})
	}
	if len(toggles) == 0 {
		return nil, fmt.Errorf("no joints given")
	}
	return toggles, nil
}

func parseJoints(args string) ([]robot.JointID, error) {
	var joints []robot.JointID
	for _, c := range clauses(args) {
		id, err := parseJoint(c)
		if err != nil {
			return nil, err
		}
		joints = append(joints, id)
	}
	if len(joints) == 0 {
		return nil, fmt.Errorf("no joints given")
	}
	return joints, nil
}

func parseValue(args string) (int8, error) {
	n, err := strconv.ParseInt(strings.TrimSuffix(args, ";"), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("value %q: %w", args, err)
	}
	return int8(n), nil
}
