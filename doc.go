// Package robert provides serial control for a 6-joint stepper robot arm.
//
// The arm's microcontroller speaks a small ASCII protocol over USB serial.
// This module converts joint angles to step counts, frames commands, and
// keeps one connection to the controller at a time.
//
// # Installation
//
//	go install github.com/robertarm/robert/cmd/robert@latest
//
// # Usage
//
// First, pick the serial port the arm is connected to:
//
//	robert setup
//
// Then home the joints and drive them:
//
//	robert calibrate J1 J2 J3
//	robert drive J1=90 J2=45
//
// Or watch the joint angles live:
//
//	robert monitor
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/robert: CLI with setup, motion, query and monitor commands
//   - pkg/robot: Joint registry, angle/step conversion and configuration
//   - pkg/protocol: Command builders and reply parsing
//   - pkg/transport: Serialized request/response exchanges over a port
//   - pkg/conn: Connection manager, serial ports and idle listener
//   - pkg/arm: Caller-facing arm controller
//   - pkg/script: Motion program parser and runner
//   - pkg/monitor: Angle sampling loop
package robert
