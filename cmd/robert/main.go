package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Port    string `short:"p" long:"port" description:"Serial port (overrides the configured port)"`
	Verbose bool   `short:"v" long:"verbose" description:"Print connection and controller log messages"`

	Ports        PortsCommand        `command:"ports" description:"List available serial ports"`
	Setup        SetupCommand        `command:"setup" description:"Choose the arm's serial port and save it"`
	Check        CheckCommand        `command:"check" description:"Connect and verify the controller responds"`
	State        StateCommand        `command:"state" description:"Show which steppers are enabled"`
	Angles       AnglesCommand       `command:"angles" description:"Show the current joint angles"`
	Params       ParamsCommand       `command:"params" description:"Show velocity and acceleration"`
	Velocity     VelocityCommand     `command:"velocity" alias:"vel" description:"Set stepper velocity"`
	Acceleration AccelerationCommand `command:"acceleration" alias:"acc" description:"Set stepper acceleration"`
	Step         StepCommand         `command:"step" description:"Move one joint by a relative number of steps"`
	Toggle       ToggleCommand       `command:"toggle" description:"Enable or disable a stepper"`
	Calibrate    CalibrateCommand    `command:"calibrate" alias:"home" description:"Home joints against their limit switches"`
	Drive        DriveCommand        `command:"drive" description:"Drive joints to absolute angles, e.g. J1=90 J2=45"`
	Run          RunCommand          `command:"run" description:"Run a motion program file"`
	Monitor      MonitorCommand      `command:"monitor" description:"Live joint angle chart"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "Robert - serial control CLI for the 6-joint stepper arm"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
