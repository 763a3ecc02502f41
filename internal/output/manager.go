package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/rangedl/internal/orchestrator"
	"github.com/tanq16/rangedl/internal/utils"
)

type ErrorReport struct {
	Segment int
	Error   error
	Time    time.Time
}

// Manager renders orchestrator events as a live status block.
type Manager struct {
	out         io.Writer
	mutex       sync.RWMutex
	interactive bool
	width       int
	numLines    int
	maxStreams  int

	fileName    string
	state       orchestrator.State
	ready       int64
	total       int64
	streamLines []string
	errors      []ErrorReport
	startTime   time.Time
	lastUpdated time.Time

	displayTick time.Duration
	doneCh      chan struct{}
	displayWg   sync.WaitGroup
}

func NewManager(out io.Writer) *Manager {
	return &Manager{
		out:         out,
		interactive: isTerminal(out),
		width:       terminalWidth(out),
		maxStreams:  5,
		state:       orchestrator.Stopped,
		startTime:   time.Now(),
		lastUpdated: time.Now(),
		displayTick: 200 * time.Millisecond,
		doneCh:      make(chan struct{}),
	}
}

// Handle folds one event into the displayed status.
func (m *Manager) Handle(ev orchestrator.Event) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.lastUpdated = time.Now()
	switch ev.Kind {
	case orchestrator.EventStateChanged:
		if ev.State == orchestrator.Downloading && m.state == orchestrator.Waiting {
			m.startTime = time.Now()
		}
		m.state = ev.State
	case orchestrator.EventFileInfo:
		m.fileName = ev.FileName
		m.total = ev.Total
	case orchestrator.EventProgress:
		m.ready = ev.Ready
		m.total = ev.Total
	case orchestrator.EventFinished:
		m.ready = ev.Total
		m.total = ev.Total
		m.state = orchestrator.Finished
	case orchestrator.EventSegmentError:
		m.errors = append(m.errors, ErrorReport{Segment: ev.Index, Error: ev.Err, Time: time.Now()})
		m.addStreamLineLocked(fmt.Sprintf("segment %d paused: %s", ev.Index, ev.Message))
	case orchestrator.EventDiagnostic:
		m.addStreamLineLocked(ev.Message)
	}
}

func (m *Manager) addStreamLineLocked(line string) {
	m.streamLines = append(m.streamLines, truncate(line, m.width-8))
	if len(m.streamLines) > m.maxStreams {
		m.streamLines = m.streamLines[len(m.streamLines)-m.maxStreams:]
	}
}

func (m *Manager) statusIndicator() string {
	switch m.state {
	case orchestrator.Finished:
		return successStyle.Render(StyleSymbols["pass"])
	case orchestrator.Paused:
		return warningStyle.Render(StyleSymbols["pause"])
	case orchestrator.Downloading:
		if len(m.errors) > 0 {
			return warningStyle.Render(StyleSymbols["warning"])
		}
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

// Render returns the current status block, one entry per line.
func (m *Manager) Render() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	name := m.fileName
	if name == "" {
		name = "resolving size"
	}
	elapsed := m.lastUpdated.Sub(m.startTime).Round(time.Second)
	if m.state == orchestrator.Downloading {
		elapsed = time.Since(m.startTime).Round(time.Second)
	}
	lines := []string{fmt.Sprintf("%s%s %s %s %s", strings.Repeat(" ", 2), m.statusIndicator(),
		debugStyle.Render(elapsed.String()), pendingStyle.Render(name), debugStyle.Render(m.state.String()))}

	if m.total > 0 || m.state == orchestrator.Finished {
		progress := fmt.Sprintf("%s / %s", utils.FormatBytes(m.ready), utils.FormatBytes(m.total))
		speed := utils.FormatSpeed(m.ready, elapsed.Seconds())
		lines = append(lines, fmt.Sprintf("%s%s%s %s %s", strings.Repeat(" ", 2+4), PrintProgressBar(m.ready, m.total, 30),
			debugStyle.Render(progress), StyleSymbols["bullet"], debugStyle.Render(speed)))
	}
	for _, line := range m.streamLines {
		lines = append(lines, strings.Repeat(" ", 2+4)+streamStyle.Render(line))
	}
	return lines
}

func (m *Manager) updateDisplay() {
	lines := m.Render()
	var b strings.Builder
	if m.numLines > 0 {
		fmt.Fprintf(&b, "\033[%dA\033[J", m.numLines)
	}
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	io.WriteString(m.out, b.String())
	m.numLines = len(lines)
}

// StartDisplay redraws the status block on a ticker when writing to a
// terminal. Otherwise only the final block is printed by StopDisplay.
func (m *Manager) StartDisplay() {
	if !m.interactive {
		return
	}
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
	m.updateDisplay()
	m.ShowSummary()
}

func (m *Manager) ShowSummary() {
	io.WriteString(m.out, m.Summary())
}

func (m *Manager) Summary() string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var b strings.Builder
	b.WriteString("\n")
	switch m.state {
	case orchestrator.Finished:
		b.WriteString(strings.Repeat(" ", 2) + success2Style.Render(fmt.Sprintf("Completed %s (%s)", m.fileName, utils.FormatBytes(m.total))) + "\n")
	case orchestrator.Paused:
		b.WriteString(strings.Repeat(" ", 2) + warningStyle.Render(fmt.Sprintf("Paused %s at %s of %s, run again to resume", m.fileName, utils.FormatBytes(m.ready), utils.FormatBytes(m.total))) + "\n")
	default:
		b.WriteString(strings.Repeat(" ", 2) + errorStyle.Render(fmt.Sprintf("Stopped %s (%s)", m.fileName, m.state)) + "\n")
	}
	if len(m.errors) > 0 {
		b.WriteString("\n" + strings.Repeat(" ", 2) + errorStyle.Bold(true).Render("Errors:") + "\n")
		for i, report := range m.errors {
			fmt.Fprintf(&b, "%s%s %s %s\n",
				strings.Repeat(" ", 2+2),
				errorStyle.Render(fmt.Sprintf("%d.", i+1)),
				debugStyle.Render(fmt.Sprintf("[%s]", report.Time.Format("15:04:05"))),
				errorStyle.Render(fmt.Sprintf("Segment %d: %v", report.Segment, report.Error)))
		}
	}
	b.WriteString("\n")
	return b.String()
}
