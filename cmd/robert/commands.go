package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/robertarm/robert/pkg/robot"
	"github.com/robertarm/robert/pkg/script"
)

// withSession connects, runs fn and disconnects. Ctrl+C cancels fn.
func withSession(fn func(ctx context.Context, s *session) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func printResult(msg string) {
	fmt.Println(successStyle.Render(msg))
}

func renderTable(headers []string, rows [][]string) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			if col == 0 {
				return subHeaderStyle.Padding(0, 1)
			}
			return cellStyle
		}).
		Render()
}

// parseJointID accepts "J3" or "3".
func parseJointID(s string) (robot.JointID, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(s), "J"))
	if err != nil {
		return 0, fmt.Errorf("invalid joint %q", s)
	}
	id := robot.JointID(n)
	if _, err := robot.Lookup(id); err != nil {
		return 0, err
	}
	return id, nil
}

type CheckCommand struct{}

func (c *CheckCommand) Execute(args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		printResult(fmt.Sprintf("Successfully connected to port: %s.", s.port))
		return nil
	})
}

type StateCommand struct{}

func (c *StateCommand) Execute(args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		states, err := s.arm.StepperStates(ctx)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, robot.NumJoints)
		for _, id := range robot.AllJoints() {
			state := errorStyle.Render("disabled")
			if states[id.Index()] {
				state = successStyle.Render("enabled")
			}
			rows = append(rows, []string{id.String(), state})
		}
		fmt.Println(renderTable([]string{"Joint", "Stepper"}, rows))
		return nil
	})
}

type AnglesCommand struct{}

func (c *AnglesCommand) Execute(args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		angles, err := s.arm.StepperAngles(ctx)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, robot.NumJoints)
		for _, id := range robot.AllJoints() {
			j, _ := robot.Lookup(id)
			angle := dimStyle.Render("unknown")
			if a, ok := angles[id]; ok {
				angle = fmt.Sprintf("%.2f", a)
			}
			rows = append(rows, []string{
				id.String(),
				angle,
				fmt.Sprintf("%.0f", j.MinAngle),
				fmt.Sprintf("%.0f", j.MaxAngle),
			})
		}
		fmt.Println(renderTable([]string{"Joint", "Angle", "Min", "Max"}, rows))
		return nil
	})
}

type ParamsCommand struct{}

func (c *ParamsCommand) Execute(args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		p, err := s.arm.Parameters(ctx)
		if err != nil {
			return err
		}
		fmt.Println(renderTable([]string{"Parameter", "Value"}, [][]string{
			{"Velocity", fmt.Sprintf("%g", p.Velocity)},
			{"Acceleration", fmt.Sprintf("%g", p.Acceleration)},
		}))
		return nil
	})
}

type VelocityCommand struct {
	Args struct {
		Value int8 `positional-arg-name:"velocity"`
	} `positional-args:"yes" required:"yes"`
}

func (c *VelocityCommand) Execute(args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		msg, err := s.arm.SetVelocity(ctx, c.Args.Value)
		if err != nil {
			return err
		}
		printResult(msg)
		return nil
	})
}

type AccelerationCommand struct {
	Args struct {
		Value int8 `positional-arg-name:"acceleration"`
	} `positional-args:"yes" required:"yes"`
}

func (c *AccelerationCommand) Execute(args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		msg, err := s.arm.SetAcceleration(ctx, c.Args.Value)
		if err != nil {
			return err
		}
		printResult(msg)
		return nil
	})
}

type StepCommand struct {
	Args struct {
		Joint string `positional-arg-name:"joint"`
		Steps int    `positional-arg-name:"steps"`
	} `positional-args:"yes" required:"yes"`
}

func (c *StepCommand) Execute(args []string) error {
	id, err := parseJointID(c.Args.Joint)
	if err != nil {
		return err
	}
	return withSession(func(ctx context.Context, s *session) error {
		msg, err := s.arm.MoveStep(ctx, id, c.Args.Steps)
		if err != nil {
			return err
		}
		printResult(msg)
		return nil
	})
}

type ToggleCommand struct {
	Args struct {
		Joint string `positional-arg-name:"joint"`
		State string `positional-arg-name:"on|off"`
	} `positional-args:"yes" required:"yes"`
}

func (c *ToggleCommand) Execute(args []string) error {
	id, err := parseJointID(c.Args.Joint)
	if err != nil {
		return err
	}
	var enabled bool
	switch strings.ToLower(c.Args.State) {
	case "on", "enabled", "enable":
		enabled = true
	case "off", "disabled", "disable":
		enabled = false
	default:
		return fmt.Errorf("invalid state %q, want on or off", c.Args.State)
	}
	return withSession(func(ctx context.Context, s *session) error {
		msg, err := s.arm.ToggleStepper(ctx, id, enabled)
		if err != nil {
			return err
		}
		printResult(msg)
		return nil
	})
}

type CalibrateCommand struct {
	Args struct {
		Joints []string `positional-arg-name:"joint" required:"1"`
	} `positional-args:"yes"`
}

func (c *CalibrateCommand) Execute(args []string) error {
	ids := make([]robot.JointID, 0, len(c.Args.Joints))
	for _, j := range c.Args.Joints {
		id, err := parseJointID(j)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	return withSession(func(ctx context.Context, s *session) error {
		fmt.Println(dimStyle.Render("Homing, this can take up to half a minute..."))
		msg, err := s.arm.Calibrate(ctx, ids)
		if err != nil {
			return err
		}
		printResult(msg)
		return nil
	})
}

type DriveCommand struct {
	Args struct {
		Targets []string `positional-arg-name:"J<id>=<angle>" required:"1"`
	} `positional-args:"yes"`
}

// parseTarget parses "J1=90".
func parseTarget(s string) (robot.Target, error) {
	joint, angle, ok := strings.Cut(s, "=")
	if !ok {
		return robot.Target{}, fmt.Errorf("invalid target %q, want J<id>=<angle>", s)
	}
	id, err := parseJointID(joint)
	if err != nil {
		return robot.Target{}, err
	}
	a, err := strconv.ParseFloat(angle, 64)
	if err != nil {
		return robot.Target{}, fmt.Errorf("invalid angle in %q: %w", s, err)
	}
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return robot.Target{}, fmt.Errorf("invalid angle in %q: %w", s, robot.ErrJointLimitExceeded)
	}
	return robot.Target{Joint: id, Angle: a}, nil
}

func (c *DriveCommand) Execute(args []string) error {
	targets := make([]robot.Target, 0, len(c.Args.Targets))
	for _, t := range c.Args.Targets {
		target, err := parseTarget(t)
		if err != nil {
			return err
		}
		targets = append(targets, target)
	}
	return withSession(func(ctx context.Context, s *session) error {
		msg, err := s.arm.DriveToAngles(ctx, targets)
		if err != nil {
			return err
		}
		printResult(msg)
		if angles, fresh := s.arm.Snapshot(); fresh {
			fmt.Println(dimStyle.Render("Angles: " + angles.String()))
		}
		return nil
	})
}

type RunCommand struct {
	Args struct {
		File string `positional-arg-name:"file"`
	} `positional-args:"yes" required:"yes"`
}

func (c *RunCommand) Execute(args []string) error {
	f, err := os.Open(c.Args.File)
	if err != nil {
		return fmt.Errorf("open program: %w", err)
	}
	prog, err := script.Parse(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("parse %s: %w", c.Args.File, err)
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("Running %s", c.Args.File)) +
		dimStyle.Render(fmt.Sprintf(" (%d instructions)", len(prog))))

	return withSession(func(ctx context.Context, s *session) error {
		runner := script.NewRunner(s.arm)
		stop := printLogs(runner.Logs())
		err := runner.Run(ctx, prog)
		stop()
		if err != nil {
			return err
		}
		printResult("Program finished.")
		return nil
	})
}
