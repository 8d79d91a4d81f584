// Package output renders live per-job download status to the terminal.
package output

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

type jobOutput struct {
	id          string
	name        string
	status      string // pending, running, complete, error
	message     string
	streamLines []string
	downloaded  int64
	total       int64
	startTime   time.Time
	err         error
}

// Manager multiplexes status lines for concurrently running jobs onto
// one terminal region, redrawn on a fixed tick. On non-TTY output it
// stays silent and leaves reporting to the logger.
type Manager struct {
	mu         sync.RWMutex
	jobs       map[string]*jobOutput
	order      []string
	maxStreams int
	isTTY      bool

	doneCh    chan struct{}
	displayWg sync.WaitGroup
	numLines  int
}

func NewManager() *Manager {
	return &Manager{
		jobs:       make(map[string]*jobOutput),
		maxStreams: 3,
		isTTY:      term.IsTerminal(int(os.Stdout.Fd())),
		doneCh:     make(chan struct{}),
	}
}

func (m *Manager) Register(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id] = &jobOutput{
		id:        id,
		name:      name,
		status:    "pending",
		startTime: time.Now(),
	}
	m.order = append(m.order, id)
}

func (m *Manager) SetStatus(id, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.status = status
	}
}

func (m *Manager) SetMessage(id, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.message = message
	}
}

func (m *Manager) SetProgress(id string, downloaded, total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.downloaded = downloaded
		j.total = total
	}
}

func (m *Manager) AddStreamLine(id, line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.streamLines = append(j.streamLines, line)
		if len(j.streamLines) > m.maxStreams {
			j.streamLines = j.streamLines[len(j.streamLines)-m.maxStreams:]
		}
	}
}

func (m *Manager) Complete(id, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.status = "complete"
		j.message = message
	}
}

func (m *Manager) ReportError(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.status = "error"
		j.err = err
	}
}

// HasErrors reports whether any registered job ended in error.
func (m *Manager) HasErrors() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, j := range m.jobs {
		if j.status == "error" {
			return true
		}
	}
	return false
}

func (m *Manager) StartDisplay() {
	if !m.isTTY {
		return
	}
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(300 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-m.doneCh:
				m.render()
				return
			case <-ticker.C:
				m.render()
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	if !m.isTTY {
		m.printSummary()
		return
	}
	close(m.doneCh)
	m.displayWg.Wait()
	m.printSummary()
}

func (m *Manager) render() {
	m.mu.RLock()
	lines := m.renderLines()
	m.mu.RUnlock()

	var b strings.Builder
	if m.numLines > 0 {
		fmt.Fprintf(&b, "\033[%dA\033[J", m.numLines)
	}
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	fmt.Print(b.String())
	m.numLines = len(lines)
}

func (m *Manager) renderLines() []string {
	var lines []string
	for _, id := range m.order {
		j := m.jobs[id]
		symbol, style := statusDecor(j.status)
		head := fmt.Sprintf("%s %s", symbol, j.name)
		switch j.status {
		case "running":
			if j.total > 0 {
				elapsed := time.Since(j.startTime).Seconds()
				speed := float64(j.downloaded) / max(elapsed, 0.1)
				head = fmt.Sprintf("%s %s %s [%s / %s, %s/s]",
					symbol, j.name, progressBar(j.downloaded, j.total),
					humanize.Bytes(uint64(j.downloaded)), humanize.Bytes(uint64(j.total)),
					humanize.Bytes(uint64(speed)))
			} else if j.downloaded > 0 {
				head = fmt.Sprintf("%s %s [%s]", symbol, j.name, humanize.Bytes(uint64(j.downloaded)))
			}
		case "error":
			head = fmt.Sprintf("%s %s: %v", symbol, j.name, j.err)
		default:
			if j.message != "" {
				head = fmt.Sprintf("%s %s %s %s", symbol, j.name, styleSymbols["arrow"], j.message)
			}
		}
		lines = append(lines, style.Render(head))
		for _, sl := range j.streamLines {
			lines = append(lines, streamStyle.Render("    "+sl))
		}
	}
	return lines
}

func (m *Manager) printSummary() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		j := m.jobs[id]
		switch j.status {
		case "complete":
			PrintSuccess(fmt.Sprintf("%s %s %s", styleSymbols["pass"], j.name, j.message))
		case "error":
			PrintError(fmt.Sprintf("%s %s: %v", styleSymbols["fail"], j.name, j.err))
		}
	}
}

func statusDecor(status string) (string, interface{ Render(...string) string }) {
	switch status {
	case "complete":
		return styleSymbols["pass"], successStyle
	case "error":
		return styleSymbols["fail"], errorStyle
	case "running":
		return styleSymbols["pending"], infoStyle
	}
	return styleSymbols["bullet"], pendingStyle
}

func progressBar(downloaded, total int64) string {
	const width = 20
	filled := int(float64(width) * float64(downloaded) / float64(total))
	if filled > width {
		filled = width
	}
	return detailStyle.Render("[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]")
}
