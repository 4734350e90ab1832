// Package ui provides a Bubble Tea-based TUI for fluxgen.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gstredny/flux-image-generator/internal/flux"
	"github.com/gstredny/flux-image-generator/internal/generate"
	"github.com/gstredny/flux-image-generator/internal/history"
	"github.com/gstredny/flux-image-generator/internal/monitor"
	"github.com/gstredny/flux-image-generator/internal/prefs"
)

// Focus identifies the pane receiving keyboard input.
type Focus int

const (
	FocusPrompt Focus = iota
	FocusHistory
	FocusEndpoint
)

// Options configures the UI.
type Options struct {
	Context   context.Context
	Client    *flux.Client
	Generator *generate.Generator
	Monitor   *monitor.Monitor
	History   *history.Store
	Prefs     prefs.Prefs
	PrefsPath string
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx       context.Context
	client    *flux.Client
	gen       *generate.Generator
	mon       *monitor.Monitor
	hist      *history.Store
	prefs     prefs.Prefs
	prefsPath string

	// UI state
	theme  Theme
	styles Styles
	keys   keyMap
	width  int
	height int
	ready  bool
	focus  Focus

	// Components
	prompt   textarea.Model
	endpoint textinput.Model
	spin     spinner.Model

	// Data state
	conn       monitor.Snapshot
	generating bool
	startedAt  time.Time
	lastResult *generate.Result
	lastErr    string
	records    []history.Record
	cursor     int

	// Help overlay
	showHelp bool
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	p := opts.Prefs
	if p.Theme == "" {
		p.Theme = themes[0].Name
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	theme := themeByName(p.Theme)
	styles := theme.Styles()

	prompt := textarea.New()
	prompt.Placeholder = "Describe the image you want..."
	prompt.CharLimit = generate.MaxPromptLen
	prompt.SetHeight(4)
	prompt.ShowLineNumbers = false
	prompt.Focus()

	endpoint := textinput.New()
	endpoint.Placeholder = "https://example.ngrok.app"

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = styles.Accent

	m := Model{
		ctx:       ctx,
		client:    opts.Client,
		gen:       opts.Generator,
		mon:       opts.Monitor,
		hist:      opts.History,
		prefs:     p,
		prefsPath: prefsPath,
		theme:     theme,
		styles:    styles,
		keys:      defaultKeyMap(),
		focus:     FocusPrompt,
		prompt:    prompt,
		endpoint:  endpoint,
		spin:      spin,
	}
	if opts.Monitor != nil {
		m.conn = opts.Monitor.Snapshot()
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tea.EnterAltScreen, textarea.Blink}
	if m.hist != nil {
		cmds = append(cmds, fetchHistoryCmd(m.hist))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.prompt.SetWidth(maxInt(20, msg.Width-6))
		m.endpoint.Width = maxInt(20, msg.Width-10)
		m.ready = true
		return m, nil

	case connMsg:
		m.conn = monitor.Snapshot(msg)
		return m, nil

	case generatedMsg:
		m.generating = false
		if msg.err != nil {
			m.lastErr = flux.UserMessage(msg.err)
			return m, nil
		}
		m.lastErr = ""
		m.lastResult = msg.result
		if m.hist != nil {
			return m, fetchHistoryCmd(m.hist)
		}
		return m, nil

	case historyMsg:
		m.records = []history.Record(msg)
		if m.cursor >= len(m.records) {
			m.cursor = maxInt(0, len(m.records)-1)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.generating {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	// Global keys
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = nextTheme(m.theme.Name)
		m.styles = m.theme.Styles()
		m.spin.Style = m.styles.Accent
		m.prefs.Theme = m.theme.Name
		if m.prefsPath != "" {
			_ = prefs.Save(m.prefsPath, m.prefs)
		}
		return m, nil

	case key.Matches(msg, m.keys.EditEndpoint):
		m.focus = FocusEndpoint
		m.prompt.Blur()
		if m.client != nil {
			m.endpoint.SetValue(m.client.Endpoint())
		}
		m.endpoint.CursorEnd()
		return m, m.endpoint.Focus()

	case key.Matches(msg, m.keys.Generate):
		if m.prefs.ShortcutsEnabled {
			return m.startGeneration()
		}
		return m, nil

	case key.Matches(msg, m.keys.Tab):
		if m.focus == FocusPrompt {
			m.focus = FocusHistory
			m.prompt.Blur()
		} else {
			m.focus = FocusPrompt
			m.endpoint.Blur()
			return m, m.prompt.Focus()
		}
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		m.focus = FocusPrompt
		m.endpoint.Blur()
		return m, m.prompt.Focus()
	}

	// Pane-specific keys
	switch m.focus {
	case FocusEndpoint:
		return m.handleEndpointKey(msg)
	case FocusHistory:
		return m.handleHistoryKey(msg)
	default:
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}
}

// handleEndpointKey processes input while the endpoint editor is focused.
func (m Model) handleEndpointKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Confirm) {
		if m.client != nil {
			if err := m.client.SetEndpoint(m.endpoint.Value()); err != nil {
				m.lastErr = flux.UserMessage(err)
				return m, nil
			}
			m.lastErr = ""
			if m.mon != nil {
				m.mon.ForceCheck()
			}
		}
		m.focus = FocusPrompt
		m.endpoint.Blur()
		return m, m.prompt.Focus()
	}
	var cmd tea.Cmd
	m.endpoint, cmd = m.endpoint.Update(msg)
	return m, cmd
}

// handleHistoryKey processes input while the history list is focused.
func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.records)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Confirm):
		if m.cursor < len(m.records) {
			m.prompt.SetValue(m.records[m.cursor].Prompt)
			m.focus = FocusPrompt
			return m, m.prompt.Focus()
		}
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if m.hist != nil && m.cursor < len(m.records) {
			id := m.records[m.cursor].ID
			return m, deleteHistoryCmd(m.hist, id)
		}
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		if m.hist != nil {
			return m, clearHistoryCmd(m.hist)
		}
		return m, nil
	}
	return m, nil
}

// startGeneration kicks off a generation for the current prompt.
func (m Model) startGeneration() (tea.Model, tea.Cmd) {
	if m.generating || m.gen == nil {
		return m, nil
	}
	text := strings.TrimSpace(m.prompt.Value())
	if text == "" {
		m.lastErr = "enter a prompt first"
		return m, nil
	}

	params := m.prefs.Params()
	params.Prompt = text

	m.generating = true
	m.startedAt = time.Now()
	m.lastErr = ""
	return m, tea.Batch(m.spin.Tick, generateCmd(m.ctx, m.gen, params))
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderPrompt())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.renderHistory())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	title := m.styles.Accent.Render("FLUX Image Generator")

	var badge string
	switch m.conn.Status {
	case monitor.StatusConnected:
		badge = m.styles.Success.Render("● connected")
	case monitor.StatusDisconnected:
		badge = m.styles.Danger.Render("● disconnected")
	default:
		badge = m.styles.Warning.Render("● checking...")
	}

	line := title + "  " + badge
	if m.conn.Notice != "" {
		line += "  " + m.styles.Warning.Render(m.conn.Notice)
	}
	return line
}

func (m Model) renderPrompt() string {
	panel := m.styles.Panel
	if m.focus == FocusPrompt {
		panel = m.styles.PanelFocus
	}

	if m.focus == FocusEndpoint {
		label := m.styles.Muted.Render("Endpoint:")
		return m.styles.PanelFocus.Render(label + " " + m.endpoint.View())
	}

	p := m.prefs.Params()
	params := m.styles.Muted.Render(fmt.Sprintf(
		"steps %d · guidance %.1f · %dx%d · seed %s",
		p.Steps, p.CFGScale, p.Width, p.Height, seedLabel(p.Seed)))
	return panel.Render(m.prompt.View() + "\n" + params)
}

func (m Model) renderStatus() string {
	switch {
	case m.generating:
		elapsed := time.Since(m.startedAt).Round(time.Second)
		return m.spin.View() + m.styles.Muted.Render(fmt.Sprintf(" generating... %s", elapsed))
	case m.lastErr != "":
		return m.styles.Danger.Render(m.lastErr)
	case m.lastResult != nil:
		return m.styles.Success.Render(fmt.Sprintf(
			"done in %.1fs · seed %d · %s",
			m.lastResult.Duration, m.lastResult.Params.Seed, m.lastResult.ID))
	default:
		return m.styles.Muted.Render("ctrl+s to generate")
	}
}

func (m Model) renderHistory() string {
	panel := m.styles.Panel
	if m.focus == FocusHistory {
		panel = m.styles.PanelFocus
	}

	if len(m.records) == 0 {
		return panel.Render(m.styles.Muted.Render("No generations yet."))
	}

	shown := len(m.records)
	if shown > 8 {
		shown = 8
	}
	lines := make([]string, 0, shown)
	for i := 0; i < shown; i++ {
		r := m.records[i]
		line := fmt.Sprintf("%s  %s", r.CreatedAt.Format("Jan 02 15:04"), truncate(r.Prompt, 60))
		if i == m.cursor && m.focus == FocusHistory {
			line = m.styles.Selected.Render(line)
		} else {
			line = m.styles.Text.Render(line)
		}
		lines = append(lines, line)
	}
	return panel.Render(strings.Join(lines, "\n"))
}

func (m Model) renderFooter() string {
	hints := []string{
		m.keys.Generate.Help().Key + " generate",
		m.keys.Tab.Help().Key + " focus",
		m.keys.EditEndpoint.Help().Key + " endpoint",
		m.keys.Help.Help().Key + " help",
		m.keys.Quit.Help().Key + " quit",
	}
	return m.styles.Muted.Render(strings.Join(hints, " · "))
}

func (m Model) renderHelp() string {
	bindings := []key.Binding{
		m.keys.Generate, m.keys.EditEndpoint, m.keys.Tab, m.keys.Escape,
		m.keys.Up, m.keys.Down, m.keys.Confirm, m.keys.Delete, m.keys.Clear,
		m.keys.CycleTheme, m.keys.Help, m.keys.Quit,
	}
	var b strings.Builder
	b.WriteString(m.styles.Accent.Render("Keyboard Shortcuts") + "\n\n")
	for _, kb := range bindings {
		h := kb.Help()
		b.WriteString(fmt.Sprintf("  %-12s %s\n", h.Key, h.Desc))
	}
	b.WriteString("\n" + m.styles.Muted.Render("Press any key to close."))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		m.styles.Panel.Render(b.String()))
}

func seedLabel(seed int64) string {
	if seed == -1 {
		return "random"
	}
	return fmt.Sprintf("%d", seed)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Messages

type connMsg monitor.Snapshot

type generatedMsg struct {
	result *generate.Result
	err    error
}

type historyMsg []history.Record

// Commands

func generateCmd(ctx context.Context, gen *generate.Generator, params generate.Params) tea.Cmd {
	return func() tea.Msg {
		res, err := gen.GenerateImage(ctx, params)
		return generatedMsg{result: res, err: err}
	}
}

func fetchHistoryCmd(store *history.Store) tea.Cmd {
	return func() tea.Msg {
		records, err := store.List(0)
		if err != nil {
			return historyMsg(nil)
		}
		return historyMsg(records)
	}
}

func deleteHistoryCmd(store *history.Store, id string) tea.Cmd {
	return func() tea.Msg {
		_ = store.Delete(id)
		records, _ := store.List(0)
		return historyMsg(records)
	}
}

func clearHistoryCmd(store *history.Store) tea.Cmd {
	return func() tea.Msg {
		_ = store.Clear()
		return historyMsg(nil)
	}
}

// Run starts the Bubble Tea program. Connection transitions from the
// monitor are forwarded into the program as messages.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if opts.Monitor != nil {
		opts.Monitor.Subscribe(func(snap monitor.Snapshot) {
			p.Send(connMsg(snap))
		})
	}
	_, err := p.Run()
	return err
}
