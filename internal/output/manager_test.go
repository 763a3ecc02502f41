package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/rangedl/internal/orchestrator"
)

func TestManagerFoldsEvents(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(&buf)
	assert.False(t, m.interactive)

	m.Handle(orchestrator.Event{Kind: orchestrator.EventStateChanged, State: orchestrator.Waiting})
	m.Handle(orchestrator.Event{Kind: orchestrator.EventFileInfo, FileName: "data.bin", Total: 2048})
	m.Handle(orchestrator.Event{Kind: orchestrator.EventStateChanged, State: orchestrator.Downloading})
	m.Handle(orchestrator.Event{Kind: orchestrator.EventProgress, Ready: 1024, Total: 2048})
	m.Handle(orchestrator.Event{Kind: orchestrator.EventSegmentError, Index: 3, Err: errors.New("reset"), Message: "reset"})

	lines := m.Render()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "data.bin")
	assert.Contains(t, lines[0], "downloading")
	assert.Contains(t, lines[1], "50.0%")
	assert.Contains(t, lines[1], "1.0 KiB / 2.0 KiB")
	assert.Contains(t, lines[2], "segment 3 paused: reset")

	m.Handle(orchestrator.Event{Kind: orchestrator.EventFinished, FileName: "data.bin", Ready: 2048, Total: 2048})
	assert.Contains(t, m.Render()[1], "100.0%")
	summary := m.Summary()
	assert.Contains(t, summary, "Completed data.bin")
	assert.Contains(t, summary, "Segment 3: reset")
}

func TestManagerStreamLinesAreBounded(t *testing.T) {
	m := NewManager(&bytes.Buffer{})
	for i := range 12 {
		m.Handle(orchestrator.Event{Kind: orchestrator.EventDiagnostic, Message: strings.Repeat("x", i+1)})
	}
	assert.Len(t, m.Render(), 1+m.maxStreams)
}

func TestStopDisplayWritesFinalBlock(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(&buf)
	m.StartDisplay()
	m.Handle(orchestrator.Event{Kind: orchestrator.EventFileInfo, FileName: "movie.mkv", Total: 10})
	m.Handle(orchestrator.Event{Kind: orchestrator.EventStateChanged, State: orchestrator.Paused})
	m.StopDisplay()

	out := buf.String()
	assert.Contains(t, out, "movie.mkv")
	assert.Contains(t, out, "run again to resume")
	assert.NotContains(t, out, "\033[", "no cursor movement outside a terminal")
}

func TestPrintProgressBar(t *testing.T) {
	assert.Contains(t, PrintProgressBar(5, 10, 10), "50.0%")
	assert.Contains(t, PrintProgressBar(50, 10, 10), "100.0%")
	assert.Contains(t, PrintProgressBar(0, 0, 10), "100.0%")
	assert.Contains(t, PrintProgressBar(-1, 10, 10), "0.0%")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
}
