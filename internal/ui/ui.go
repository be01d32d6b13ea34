package ui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/k-kuroguro/smiview/internal/config"
	"github.com/k-kuroguro/smiview/internal/model"
	"github.com/k-kuroguro/smiview/internal/monitor"
	"github.com/k-kuroguro/smiview/internal/supervisor"
)

// Controller starts and stops cluster-smi. *supervisor.Supervisor implements it.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	Restart(ctx context.Context) error
}

// Model renders the latest cluster snapshot as a tree.
type Model struct {
	cfg    config.Config
	filter *regexp.Regexp
	ctrl   Controller
	ctx    context.Context
	stream <-chan monitor.Update

	snap        *model.Snapshot
	status      monitor.Status
	outputEmpty bool
	stats       *supervisor.Stats
	lastErr     error
	notice      string

	exp    *expansion
	rows   []row
	cursor int
	offset int

	width  int
	height int
}

func New(ctx context.Context, cfg config.Config, ctrl Controller, stream <-chan monitor.Update) *Model {
	filter, _ := cfg.NodeFilterRegexp()
	return &Model{
		cfg:    cfg,
		filter: filter,
		ctrl:   ctrl,
		ctx:    ctx,
		stream: stream,
		exp:    newExpansion(),
		width:  120,
		height: 40,
	}
}

// Messages
type (
	tickMsg   struct{}
	updateMsg monitor.Update
	// ReconfigureMsg replaces the configuration of a running Model.
	ReconfigureMsg struct{ Config config.Config }
	ctrlDoneMsg    struct {
		action string
		err    error
	}
)

func tickCmd() tea.Cmd { return tea.Tick(time.Second/5, func(time.Time) tea.Msg { return tickMsg{} }) }

func (m *Model) Init() tea.Cmd { return tickCmd() }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.scroll()
	case tea.KeyMsg:
		return m.key(msg)
	case tickMsg:
		m.drain()
		return m, tickCmd()
	case updateMsg:
		m.apply(monitor.Update(msg))
	case ReconfigureMsg:
		m.reconfigure(msg.Config)
	case ctrlDoneMsg:
		switch {
		case errors.Is(msg.err, supervisor.ErrAlreadyRunning):
			m.notice = "cluster-smi is already running."
		case msg.err != nil:
			m.notice = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		default:
			m.notice = ""
		}
	}
	return m, nil
}

// drain applies every update waiting on the stream.
func (m *Model) drain() {
	for {
		select {
		case u, ok := <-m.stream:
			if !ok {
				m.stream = nil
				return
			}
			m.apply(u)
		default:
			return
		}
	}
}

func (m *Model) apply(u monitor.Update) {
	m.status = u.Status
	switch u.Kind {
	case monitor.KindStatus:
		m.outputEmpty = false
		m.lastErr = nil
		m.exp.pruned = false
	case monitor.KindSnapshot:
		m.snap = u.Snapshot
		m.outputEmpty = false
		if m.snap != nil {
			m.exp.pruneOnce(*m.snap)
		}
	case monitor.KindEmpty:
		m.snap = nil
		m.outputEmpty = true
	case monitor.KindParseError:
		m.lastErr = u.Err
	case monitor.KindExited:
		m.snap = nil
		m.stats = nil
		m.outputEmpty = false
		if u.Err != nil {
			m.lastErr = u.Err
		}
	case monitor.KindStats:
		m.stats = u.Stats
	}
	m.rebuild()
}

func (m *Model) reconfigure(cfg config.Config) {
	filter, err := cfg.NodeFilterRegexp()
	if err != nil {
		m.notice = err.Error()
		return
	}
	m.cfg.NodeFilter = cfg.NodeFilter
	m.cfg.DeviceInfoFields = cfg.DeviceInfoFields
	m.cfg.ProcessInfoFields = cfg.ProcessInfoFields
	m.filter = filter
	m.notice = "configuration reloaded"
	m.rebuild()
}

// visible returns the snapshot with the node filter applied.
func (m *Model) visible() *model.Snapshot {
	if m.snap == nil || m.filter == nil {
		return m.snap
	}
	s := m.snap.FilterNodes(m.filter)
	return &s
}

func (m *Model) rebuild() {
	selected := ""
	if m.cursor < len(m.rows) {
		selected = m.rows[m.cursor].id
	}
	m.rows = buildRows(m.visible(), m.cfg.DeviceInfoFields, m.cfg.ProcessInfoFields, m.exp)
	m.cursor = min(m.cursor, max(len(m.rows)-1, 0))
	for i, r := range m.rows {
		if r.id == selected {
			m.cursor = i
			break
		}
	}
	m.scroll()
}

func (m *Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = max(len(m.rows)-1, 0)
	case "enter", " ", "space":
		if r, ok := m.current(); ok && r.expandable() {
			m.exp.toggle(r.key)
			m.rebuild()
		}
	case "right", "l":
		if r, ok := m.current(); ok && r.expandable() {
			m.exp.set(r.key, true)
			m.rebuild()
		}
	case "left", "h":
		if r, ok := m.current(); ok {
			if r.expandable() && m.exp.isExpanded(r.key) {
				m.exp.set(r.key, false)
			} else if r.parent >= 0 {
				m.cursor = r.parent
			}
			m.rebuild()
		}
	case "E":
		for _, k := range expandableKeys(m.visible(), m.cfg.DeviceInfoFields) {
			m.exp.set(k, true)
		}
		m.rebuild()
	case "C":
		m.exp.expanded = make(map[string]bool)
		m.rebuild()
	case "s":
		return m, m.control("start", func() error { return m.ctrl.Start(m.ctx) })
	case "x":
		return m, m.control("stop", func() error { m.ctrl.Stop(); return nil })
	case "r":
		return m, m.control("restart", func() error { return m.ctrl.Restart(m.ctx) })
	}
	m.scroll()
	return m, nil
}

// control runs fn outside the update loop; Stop waits for the monitor to
// drain the process events, which needs the loop running.
func (m *Model) control(action string, fn func() error) tea.Cmd {
	if m.ctrl == nil {
		return nil
	}
	return func() tea.Msg { return ctrlDoneMsg{action: action, err: fn()} }
}

func (m *Model) current() (row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return row{}, false
	}
	return m.rows[m.cursor], true
}

// treeHeight is the number of tree lines that fit between header and footer.
func (m *Model) treeHeight() int {
	return max(m.height-4, 1)
}

func (m *Model) scroll() {
	h := m.treeHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
	m.offset = max(min(m.offset, len(m.rows)-h), 0)
}

// Styles
var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	availableStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badgeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	cursorStyle    = lipgloss.NewStyle().Reverse(true)
	statusStyles   = map[monitor.Status]lipgloss.Style{
		monitor.StatusIdle:               subtleStyle,
		monitor.StatusRunning:            lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		monitor.StatusExitedSuccessfully: subtleStyle,
		monitor.StatusExitedWithError:    errorStyle,
	}
)

func (m *Model) View() string {
	lines := []string{m.header()}
	if m.stats != nil {
		lines = append(lines, subtleStyle.Render(fmt.Sprintf("pid %d  cpu %.1f%%  rss %.1f MiB  threads %d",
			m.stats.PID, m.stats.CPUPercent, bytesToMiB(m.stats.RSSBytes), m.stats.Threads)))
	} else {
		lines = append(lines, "")
	}

	if len(m.rows) == 0 {
		lines = append(lines, m.placeholder()...)
	} else {
		end := min(m.offset+m.treeHeight(), len(m.rows))
		for i := m.offset; i < end; i++ {
			lines = append(lines, m.renderRow(i))
		}
	}

	lines = append(lines, m.footer())
	for i, l := range lines {
		lines[i] = ansi.Truncate(l, m.width, "…")
	}
	return strings.Join(lines, "\n")
}

func (m *Model) header() string {
	h := titleStyle.Render("cluster-smi") + "  " + statusStyles[m.status].Render("● "+m.status.String())
	if m.snap != nil {
		nodes, devices, procs := m.snap.Counts()
		h += "  " + subtleStyle.Render(fmt.Sprintf("%d nodes  %d devices  %d processes", nodes, devices, procs))
	}
	if m.filter != nil {
		h += "  " + subtleStyle.Render("filter: "+m.filter.String())
	}
	return h
}

// placeholder describes why there is no tree to show.
func (m *Model) placeholder() []string {
	var msg string
	switch {
	case m.status == monitor.StatusExitedWithError:
		msg = "cluster-smi exited with an error. Check the log for details. Press s to start it again."
	case m.status == monitor.StatusExitedSuccessfully:
		msg = "cluster-smi exited. Press s to start it again."
	case m.outputEmpty:
		msg = "cluster-smi reported no nodes."
	case m.status == monitor.StatusRunning:
		msg = "Waiting for cluster-smi output..."
	default:
		msg = "cluster-smi is not running. Press s to start it."
	}
	lines := []string{subtleStyle.Render(msg)}
	if m.lastErr != nil {
		lines = append(lines, errorStyle.Render(m.lastErr.Error()))
	}
	return lines
}

func (m *Model) renderRow(i int) string {
	r := m.rows[i]
	marker := "  "
	if r.expandable() {
		marker = "▸ "
		if m.exp.isExpanded(r.key) {
			marker = "▾ "
		}
	}

	label := r.label
	switch {
	case r.available:
		label = availableStyle.Render(label)
	case r.kind == rowNode || r.kind == rowTimestamp:
		label = labelStyle.Render(label)
	}
	line := strings.Repeat("  ", r.depth) + marker + label
	if r.desc != "" {
		line += "  " + subtleStyle.Render(r.desc)
	}
	if r.available {
		line += " " + badgeStyle.Render("A")
	}
	if i == m.cursor {
		line = cursorStyle.Render(line)
	}
	return line
}

func (m *Model) footer() string {
	if m.notice != "" {
		return labelStyle.Render(m.notice)
	}
	if m.lastErr != nil && len(m.rows) > 0 {
		return errorStyle.Render(m.lastErr.Error())
	}
	return subtleStyle.Render("↑/↓ move  enter toggle  E/C expand/collapse all  s start  x stop  r restart  q quit")
}

// RunTUI starts the Bubble Tea program. Reconfigurations sent on reconf
// are applied while it runs.
func RunTUI(ctx context.Context, cfg config.Config, ctrl Controller, stream <-chan monitor.Update, reconf <-chan config.Config) error {
	prog := tea.NewProgram(New(ctx, cfg, ctrl, stream), tea.WithAltScreen(), tea.WithContext(ctx))
	go func() {
		for {
			select {
			case c := <-reconf:
				prog.Send(ReconfigureMsg{Config: c})
			case <-ctx.Done():
				return
			}
		}
	}()
	_, err := prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
