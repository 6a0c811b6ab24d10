package arm

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/robertarm/robert/pkg/transport/transporttest"
)

// fakeDevice simulates the controller firmware well enough for the tests.
type fakeDevice struct {
	mu       sync.Mutex
	steps    map[int]int
	enabled  [6]bool
	velocity int
	accel    int
	// override, when set, answers a command before the simulation does.
	override func(cmd string) (string, bool)
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{steps: map[int]int{}}
}

func (d *fakeDevice) handler() transporttest.Handler {
	return func(cmd string) transporttest.Reply {
		return transporttest.Reply{Data: d.answer(cmd)}
	}
}

func (d *fakeDevice) answer(cmd string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.override != nil {
		if reply, ok := d.override(cmd); ok {
			return reply
		}
	}

	op, payload, ok := strings.Cut(cmd, ">")
	if !ok {
		return "C001\r\n"
	}

	switch op {
	case "CHECK":
		return "CONNECTED\r\n"
	case "STEPS":
		var sb strings.Builder
		sb.WriteString("[STEPS];")
		for id := 1; id <= 6; id++ {
			if s, ok := d.steps[id]; ok {
				fmt.Fprintf(&sb, "J%d_%d;", id, s)
			} else {
				fmt.Fprintf(&sb, "J%d_UNKNOWN;", id)
			}
		}
		return sb.String() + "~"
	case "STATE":
		var sb strings.Builder
		sb.WriteString("[STATE];")
		for id := 1; id <= 6; id++ {
			state := "UNKNOWN"
			if d.enabled[id-1] {
				state = "ENABLED"
			}
			fmt.Fprintf(&sb, "J%d_%s;", id, state)
		}
		return sb.String() + "~"
	case "MOVE":
		for _, clause := range clauses(payload) {
			joint, value, _ := strings.Cut(clause, "_")
			id, _ := strconv.Atoi(strings.TrimPrefix(joint, "J"))
			n, _ := strconv.Atoi(value)
			if id < 1 || id > 6 {
				return "I001\r\n"
			}
			d.steps[id] += n
		}
		return "Moving steppers\r\n"
	case "TOGGLE":
		for _, clause := range clauses(payload) {
			joint, state, _ := strings.Cut(clause, "_")
			id, _ := strconv.Atoi(strings.TrimPrefix(joint, "J"))
			switch state {
			case "ENABLED":
				d.enabled[id-1] = true
			case "DISABLED":
				d.enabled[id-1] = false
			default:
				return "I002\r\n"
			}
		}
		return "Stepper toggled\r\n"
	case "CALIBRATE":
		var homed []string
		for _, clause := range clauses(payload) {
			id, _ := strconv.Atoi(strings.TrimPrefix(clause, "J"))
			d.steps[id] = 0
			homed = append(homed, clause)
		}
		return "[CALIBRATION];" + strings.Join(homed, ";") + ";~"
	case "SETVEL":
		d.velocity, _ = strconv.Atoi(payload)
		return "Velocity Set to: " + payload + "\r\n"
	case "SETACC":
		d.accel, _ = strconv.Atoi(payload)
		return "Acceleration Set to: " + payload + "\r\n"
	case "PARAMS":
		return fmt.Sprintf("[PARAMS];VEL_%d;ACC_%d;~", d.velocity, d.accel)
	}
	return "C002\r\n"
}

func clauses(payload string) []string {
	var out []string
	for c := range strings.SplitSeq(payload, ";") {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
