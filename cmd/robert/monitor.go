package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/robertarm/robert/pkg/conn"
	"github.com/robertarm/robert/pkg/monitor"
	"github.com/robertarm/robert/pkg/robot"
)

type MonitorCommand struct {
	Hz       int           `long:"hz" default:"2" description:"Angle sampling frequency"`
	Interval time.Duration `long:"listen-interval" default:"1s" description:"How often to check for unsolicited device output"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 8 // log box + help line
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

var jointColors = map[robot.JointID]string{
	1: "196", // red
	2: "208", // orange
	3: "226", // yellow
	4: "46",  // green
	5: "51",  // cyan
	6: "201", // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type keyMap struct {
	Pause key.Binding
	Quit  key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Pause: key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p", "pause chart")),
	Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type monitorModel struct {
	mon      *monitor.Monitor
	logs     <-chan string
	port     string
	chart    *streamlinechart.Model
	width    int
	height   int
	lines    []string
	last     robot.Angles
	err      error
	paused   bool
	help     help.Model
	quitting bool
}

func (m *monitorModel) addLog(msg string) {
	m.lines = append(m.lines, msg)
	if len(m.lines) > maxLogs {
		m.lines = m.lines[len(m.lines)-maxLogs:]
	}
}

type stateMsg monitor.State
type logMsg string

func waitForState(mon *monitor.Monitor) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-mon.States())
	}
}

func waitForLog(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ch)
	}
}

func (m *monitorModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func initialMonitorModel(mon *monitor.Monitor, logs <-chan string, port string) monitorModel {
	var top float64
	for _, id := range robot.AllJoints() {
		j, _ := robot.Lookup(id)
		top = max(top, j.MaxAngle)
	}
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(0, top),
	)
	for _, id := range robot.AllJoints() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[id]))
		chart.SetDataSetStyles(id.String(), runes.ThinLineStyle, style)
	}

	return monitorModel{
		mon:   mon,
		logs:  logs,
		port:  port,
		chart: &chart,
		help:  help.New(),
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.mon),
		waitForLog(m.logs),
	)
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Pause):
			m.paused = !m.paused
			return m, nil
		}

	case stateMsg:
		m.err = msg.Error
		if msg.Error == nil && !m.paused {
			// Joints the device cannot locate keep their last value.
			for id, a := range msg.Angles {
				m.chart.PushDataSet(id.String(), a)
			}
			m.chart.DrawAll()
			m.last = msg.Angles
		}
		return m, waitForState(m.mon)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.logs)
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Monitor stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Robert Monitor"))
	sb.WriteString(fmt.Sprintf(" - %s @ %d Hz", m.port, m.mon.Hz()))
	if m.paused {
		sb.WriteString(statusStyle.Render("  [paused]"))
	}
	if m.err != nil {
		sb.WriteString(errorStyle.Render("  " + m.err.Error()))
	} else if m.last != nil {
		sb.WriteString(statusStyle.Render("  " + m.last.String()))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	var logLines string
	if len(m.lines) == 0 {
		logLines = statusStyle.Render("Waiting for samples...")
	} else {
		logLines = strings.Join(m.lines, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")
	sb.WriteString(m.help.View(keys))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, id := range robot.AllJoints() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[id])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+id.String())
	}
	return strings.Join(items, "  ")
}

// mergeLogs fans several log channels into one until ctx is done.
func mergeLogs(ctx context.Context, chans ...<-chan string) <-chan string {
	out := make(chan string, 10)
	for _, ch := range chans {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-ch:
					select {
					case out <- msg:
					default:
						// Drop if channel full
					}
				}
			}
		}()
	}
	return out
}

// tagged prefixes unsolicited device output so it reads as a log line.
func tagged(ctx context.Context, in <-chan string) <-chan string {
	out := make(chan string, 10)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-in:
				msg := fmt.Sprintf("[%s] Device: %s", time.Now().Format("15:04:05"), strings.TrimSpace(data))
				select {
				case out <- msg:
				default:
				}
			}
		}
	}()
	return out
}

func (c *MonitorCommand) Execute(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Log lines go to the TUI log box instead of stdout.
	opts.Verbose = false
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	listener := conn.NewListener(s.mgr, c.Interval)
	mon := monitor.New(s.arm, monitor.Config{Hz: c.Hz, Idle: listener.Signal})

	logs := mergeLogs(ctx,
		s.mgr.Logs(),
		s.arm.Logs(),
		listener.Logs(),
		mon.Logs(),
		tagged(ctx, listener.Unsolicited()),
	)

	go func() {
		if err := listener.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("Listener error: %v", err)
		}
	}()
	go func() {
		if err := mon.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Monitor error: %v", err)
		}
	}()

	p := tea.NewProgram(initialMonitorModel(mon, logs, s.port), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}
	cancel()
	return nil
}
