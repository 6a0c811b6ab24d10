package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/robertarm/robert/pkg/arm"
	"github.com/robertarm/robert/pkg/conn"
	"github.com/robertarm/robert/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// session is one connected manager and controller.
type session struct {
	cfg  *robot.Config
	port string
	mgr  *conn.Manager
	arm  *arm.Controller
	stop func()
}

// loadConfig returns the saved config, or an empty one if none exists.
func loadConfig() (*robot.Config, error) {
	cfg, err := robot.LoadConfig()
	if errors.Is(err, fs.ErrNotExist) {
		return &robot.Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func timeouts(cfg *robot.Config) arm.Timeouts {
	return arm.Timeouts{
		Default:   robot.Duration(cfg.Timeouts.DefaultMs, 0),
		Steps:     robot.Duration(cfg.Timeouts.StepsMs, 0),
		Move:      robot.Duration(cfg.Timeouts.MoveMs, 0),
		Calibrate: robot.Duration(cfg.Timeouts.CalibrateMs, 0),
	}
}

// openSession connects to the port from --port or the config file.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	port := opts.Port
	if port == "" {
		if !cfg.IsConfigured() {
			return nil, fmt.Errorf("no port configured, run 'robert setup' or pass --port")
		}
		port = cfg.Port
	}

	mgr := conn.NewManager(conn.Config{
		HandshakeTimeout: robot.Duration(cfg.Timeouts.DefaultMs, 0),
	})
	ctrl := arm.NewController(mgr, timeouts(cfg))

	s := &session{cfg: cfg, port: port, mgr: mgr, arm: ctrl, stop: func() {}}
	if opts.Verbose {
		s.stop = printLogs(mgr.Logs(), ctrl.Logs())
	}

	msg, err := ctrl.Connect(ctx, port)
	if err != nil {
		s.stop()
		return nil, err
	}
	if opts.Verbose {
		fmt.Println(dimStyle.Render(msg))
	}
	return s, nil
}

func (s *session) Close() {
	if _, err := s.arm.Disconnect(context.Background()); err != nil && !errors.Is(err, conn.ErrNotConnected) {
		fmt.Println(errorStyle.Render(fmt.Sprintf("Disconnect: %v", err)))
	}
	s.stop()
}

// printLogs prints log messages from chans until the returned stop func is
// called. stop prints whatever is still buffered before returning.
func printLogs(chans ...<-chan string) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, ch := range chans {
		wg.Go(func() {
			for {
				select {
				case msg := <-ch:
					fmt.Println(dimStyle.Render(msg))
				case <-done:
					for {
						select {
						case msg := <-ch:
							fmt.Println(dimStyle.Render(msg))
						default:
							return
						}
					}
				}
			}
		})
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}
