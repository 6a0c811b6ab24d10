package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/robertarm/robert/pkg/arm"
	"github.com/robertarm/robert/pkg/conn"
	"github.com/robertarm/robert/pkg/robot"
)

type PortsCommand struct{}

func (c *PortsCommand) Execute(args []string) error {
	ports, err := findPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}

	rows := make([][]string, 0, len(ports))
	for _, p := range ports {
		usb := ""
		if p.IsUSB {
			usb = p.VID + ":" + p.PID
		}
		rows = append(rows, []string{p.Name, usb, p.SerialNumber, p.Product})
	}
	fmt.Println(renderTable([]string{"Port", "USB", "Serial", "Product"}, rows))
	return nil
}

// findPorts lists serial ports, falling back to plain names when the
// platform cannot enumerate USB details. Bluetooth ports are skipped.
func findPorts() ([]conn.PortDetails, error) {
	details, err := arm.ListPortDetails()
	if err != nil {
		names, err := arm.ListPorts()
		if err != nil {
			return nil, err
		}
		details = make([]conn.PortDetails, 0, len(names))
		for _, n := range names {
			details = append(details, conn.PortDetails{Name: n})
		}
	}

	ports := details[:0]
	for _, p := range details {
		if strings.Contains(p.Name, "Bluetooth") {
			continue
		}
		ports = append(ports, p)
	}
	return ports, nil
}

type SetupCommand struct{}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Robert Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ports, err := findPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		fmt.Println("Make sure the arm controller is connected and powered on.")
		os.Exit(1)
	}

	options := make([]huh.Option[string], 0, len(ports))
	for _, p := range ports {
		label := p.Name
		if p.Product != "" {
			label += " (" + p.Product + ")"
		}
		options = append(options, huh.NewOption(label, p.Name))
	}

	port := cfg.Port
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port is the arm on?").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	fmt.Printf("Checking %s...\n", port)
	opts.Port = port
	err = withSession(func(ctx context.Context, s *session) error {
		fmt.Println(successStyle.Render("Controller responded."))
		return nil
	})
	if err != nil {
		fmt.Println(errorStyle.Render(fmt.Sprintf("Check failed: %v", err)))

		save := false
		confirm := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Save this port anyway?").
					Value(&save),
			),
		)
		if err := confirm.Run(); err != nil || !save {
			fmt.Println()
			os.Exit(1)
		}
	}

	cfg.Port = port
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", robot.DefaultConfigFile)
	fmt.Println()
	fmt.Println("Watch the arm with: " + headerStyle.Render("robert monitor"))
	return nil
}
