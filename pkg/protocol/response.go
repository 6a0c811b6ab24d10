package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Reply prefixes.
const (
	ConnectedResponse   = "CONNECTED"
	CalibrationResponse = "[CALIBRATION];"
	StateResponse       = "[STATE];"
	StepsResponse       = "[STEPS];"
	ParamsResponse      = "[PARAMS];"
)

// Kind classifies a successful reply.
type Kind int

const (
	KindRaw Kind = iota
	KindConnected
	KindCalibration
	KindState
	KindSteps
	KindParams
)

func (k Kind) String() string {
	switch k {
	case KindConnected:
		return "Connected"
	case KindCalibration:
		return "Calibration"
	case KindState:
		return "State"
	case KindSteps:
		return "Steps"
	case KindParams:
		return "Params"
	default:
		return "Raw"
	}
}

// Response is a terminated reply from the device.
type Response struct {
	Kind Kind
	Text string
}

// Body returns the reply without its terminator and surrounding whitespace.
func (r Response) Body() string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(r.Text), string(Terminator)))
}

// errorCodes maps device error codes to messages.
var errorCodes = map[string]string{
	"C001": "Command was not properly formatted",
	"C002": "Command not defined",
	"I001": "Invalid stepper",
	"I002": "Invalid stepper state",
	"I003": "Invalid limit switch conversion",
}

// ErrorMessage looks up the message for a device error code.
func ErrorMessage(code string) (string, bool) {
	msg, ok := errorCodes[code]
	return msg, ok
}

// DeviceError is an error code reported by the device.
type DeviceError struct {
	Code    string
	Message string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error %s: %s", e.Code, e.Message)
}

// Classify decodes a raw reply. Replies that start with a known error code
// become a *DeviceError; invalid UTF-8 is replaced rather than rejected.
func Classify(raw []byte) (Response, error) {
	text := string(raw)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, string(utf8.RuneError))
	}
	for code, msg := range errorCodes {
		if strings.HasPrefix(text, code) {
			return Response{}, &DeviceError{Code: code, Message: msg}
		}
	}

	r := Response{Kind: KindRaw, Text: text}
	switch body := r.Body(); {
	case body == ConnectedResponse:
		r.Kind = KindConnected
	case strings.HasPrefix(body, CalibrationResponse):
		r.Kind = KindCalibration
	case strings.HasPrefix(body, StateResponse):
		r.Kind = KindState
	case strings.HasPrefix(body, StepsResponse):
		r.Kind = KindSteps
	case strings.HasPrefix(body, ParamsResponse):
		r.Kind = KindParams
	}
	return r, nil
}

// fields splits a reply body into its trimmed `;`-separated parts.
func fields(body, prefix string) []string {
	body = strings.TrimPrefix(body, prefix)
	var out []string
	for part := range strings.SplitSeq(body, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// jointField splits `J<id>_<value>` into its id and value.
func jointField(part string) (int, string, bool) {
	rest, ok := strings.CutPrefix(part, "J")
	if !ok {
		return 0, "", false
	}
	idStr, value, _ := strings.Cut(rest, "_")
	id, err := strconv.Atoi(idStr)
	if err != nil || id < 1 || id > 6 {
		return 0, "", false
	}
	return id, value, true
}

// ParseState parses a STATE reply into per-joint enabled flags, indexed by
// joint id minus one. Joints missing from the reply are reported disabled.
func ParseState(r Response) [6]bool {
	var states [6]bool
	for _, part := range fields(r.Body(), StateResponse) {
		id, value, ok := jointField(part)
		if !ok {
			continue
		}
		states[id-1] = value == Enabled
	}
	return states
}

// ParseSteps parses a STEPS reply into step counts keyed by joint id.
// Joints reported as UNKNOWN, or with an unparsable count, are absent.
func ParseSteps(r Response) map[int]int {
	steps := make(map[int]int)
	for _, part := range fields(r.Body(), StepsResponse) {
		id, value, ok := jointField(part)
		if !ok || value == Unknown {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			f, ferr := strconv.ParseFloat(value, 64)
			if ferr != nil {
				continue
			}
			n = int(f)
		}
		steps[id] = n
	}
	return steps
}

// Parameters are the device's current motion parameters, descaled.
type Parameters struct {
	Velocity     float64
	Acceleration float64
}

// ParseParams parses a `VEL_<n>;ACC_<n>;` reply.
func ParseParams(r Response) (Parameters, error) {
	var p Parameters
	var seenVel, seenAcc bool
	for _, part := range fields(r.Body(), ParamsResponse) {
		name, value, ok := strings.Cut(part, "_")
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Parameters{}, fmt.Errorf("parse %s: %w", name, err)
		}
		switch name {
		case "VEL":
			p.Velocity, seenVel = n/ParametersMultiplier, true
		case "ACC":
			p.Acceleration, seenAcc = n/ParametersMultiplier, true
		}
	}
	if !seenVel || !seenAcc {
		return Parameters{}, fmt.Errorf("incomplete parameters reply: %q", r.Body())
	}
	return p, nil
}
