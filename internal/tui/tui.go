package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/handiism/vasset-downloader/internal/config"
	"github.com/handiism/vasset-downloader/internal/download"
	"github.com/handiism/vasset-downloader/internal/model"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)

	mediaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8B500"))

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1A1A2E")).
			Background(lipgloss.Color("#4ECDC4")).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D")).
			Padding(0, 1)
)

const maxLogs = 8

// LogEntry represents a log message in the UI.
type LogEntry struct {
	Message string
	Level   download.ProgressLevel
}

// Message types
type (
	// UpdateMsg carries a controller update into the program.
	UpdateMsg struct {
		download.Update
	}

	// opDoneMsg reports the return value of a controller call.
	opDoneMsg struct {
		Err error
	}
)

// Model is the Bubble Tea model for the TUI.
//
// All lifecycle state lives in the controller; the model keeps the latest
// snapshot plus view-only state such as the picker cursor.
type Model struct {
	ctrl     *download.Controller
	settings *config.Settings
	snap     download.Snapshot

	textInput textinput.Model
	spinner   spinner.Model
	progress  progress.Model
	logs      []LogEntry
	verbose   bool

	// Format picker
	pickerMedia *model.MediaDescriptor
	tab         model.DownloadKind
	cursor      int

	width int
}

// NewModel creates a new TUI model around ctrl.
func NewModel(ctrl *download.Controller, settings *config.Settings) Model {
	ti := textinput.New()
	ti.Placeholder = "https://www.youtube.com/watch?v=..."
	ti.Focus()
	ti.CharLimit = 2048
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	return Model{
		ctrl:      ctrl,
		settings:  settings,
		snap:      download.Snapshot{State: model.StateIdle},
		textInput: ti,
		spinner:   sp,
		progress:  prog,
		verbose:   settings.LogLevel == "debug",
		tab:       model.KindVideo,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = min(max(msg.Width-20, 20), 80)
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case UpdateMsg:
		cmds = append(cmds, m.applyUpdate(msg.Update))

	case opDoneMsg:
		// Failures that moved the controller to error are already shown.
		if msg.Err != nil && !errors.Is(msg.Err, download.ErrReset) && m.snap.State != model.StateError {
			m.addLog(msg.Err.Error(), download.LevelError)
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	if m.snap.State == model.StateIdle {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleKey reports handled=true when the key must not reach the input.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	state := m.snap.State
	ctrl := m.ctrl

	switch msg.String() {
	case "ctrl+c":
		return tea.Quit, true

	case "esc":
		if state == model.StateIdle {
			return tea.Quit, true
		}
		return m.reset(), true

	case "enter":
		switch state {
		case model.StateIdle:
			url := strings.TrimSpace(m.textInput.Value())
			if url == "" {
				return nil, true
			}
			return call(func(ctx context.Context) error { return ctrl.Parse(ctx, url) }), true
		case model.StateParsed:
			kind, formatID := m.tab, m.selectedFormat()
			return call(func(ctx context.Context) error { return ctrl.Submit(ctx, kind, formatID) }), true
		}
		return nil, true
	}

	if state == model.StateIdle {
		return nil, false
	}

	switch msg.String() {
	case "r":
		return m.reset(), true

	case "q":
		if state.IsTerminal() {
			return tea.Quit, true
		}

	case "v":
		m.verbose = !m.verbose

	case "f":
		if state == model.StateCompleted && !m.snap.Retrieving && m.snap.Task != nil && m.snap.Task.HistoryID != 0 {
			return call(func(ctx context.Context) error {
				_, err := ctrl.DownloadFile(ctx)
				return err
			}), true
		}

	case "tab", "left", "right", "h", "l":
		if state == model.StateParsed {
			if m.tab == model.KindVideo {
				m.tab = model.KindAudio
			} else {
				m.tab = model.KindVideo
			}
			m.cursor = 0
		}

	case "up", "k":
		if state == model.StateParsed && m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if state == model.StateParsed && m.cursor < len(m.formats()) {
			m.cursor++
		}
	}
	return nil, true
}

// call runs a controller operation off the event loop. Controller updates
// are delivered with p.Send, which must never happen from inside Update.
func call(op func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{Err: op(context.Background())}
	}
}

func (m *Model) reset() tea.Cmd {
	m.textInput.SetValue("")
	m.textInput.Focus()
	m.logs = nil
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.Reset()
		return nil
	}
}

func (m *Model) applyUpdate(u download.Update) tea.Cmd {
	m.snap = u.Snapshot
	if u.Message != "" && (u.Level != download.LevelVerbose || m.verbose) {
		m.addLog(u.Message, u.Level)
	}

	if m.snap.Media != m.pickerMedia {
		m.pickerMedia = m.snap.Media
		m.cursor = 0
		if m.snap.Media != nil {
			m.tab = m.snap.Media.DefaultKind()
		}
	}

	switch m.snap.State {
	case model.StateIdle:
		m.textInput.Focus()
		return m.progress.SetPercent(0)
	case model.StateDownloading, model.StateCompleted:
		return m.progress.SetPercent(m.snap.Progress.Percent / 100)
	}
	return nil
}

func (m *Model) addLog(message string, level download.ProgressLevel) {
	m.logs = append(m.logs, LogEntry{Message: message, Level: level})
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// formats lists the picker rows of the current tab, excluding "best".
func (m Model) formats() []model.FormatVariant {
	if m.snap.Media == nil {
		return nil
	}
	if m.tab == model.KindAudio {
		return m.snap.Media.AudioFormats()
	}
	return m.snap.Media.VideoFormats()
}

// selectedFormat returns the chosen format id, or "" for best available.
func (m Model) selectedFormat() string {
	formats := m.formats()
	if m.cursor == 0 || m.cursor > len(formats) {
		return ""
	}
	return formats[m.cursor-1].FormatID
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Vasset Downloader"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Download video and audio through the vasset backend"))
	b.WriteString("\n\n")

	switch m.snap.State {
	case model.StateIdle:
		b.WriteString(m.viewInput())
	case model.StateParsing:
		b.WriteString(m.viewParsing())
	case model.StateParsed:
		b.WriteString(m.viewPicker())
	case model.StateDownloading:
		b.WriteString(m.viewDownloading())
	case model.StateCompleted:
		b.WriteString(m.viewComplete())
	case model.StateError:
		b.WriteString(m.viewError())
	}

	b.WriteString("\n")
	b.WriteString(m.renderLogs())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.helpText()))

	return b.String()
}

func (m Model) viewInput() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Enter a media URL:"))
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Download path: %s", m.settings.DownloadsPath)))
	b.WriteString("\n")

	return b.String()
}

func (m Model) viewParsing() string {
	return m.spinner.View() + " " + subtitleStyle.Render("Parsing "+m.snap.URL+"...") + "\n"
}

func (m Model) viewMedia() string {
	media := m.snap.Media
	if media == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(mediaStyle.Render(media.Title))
	b.WriteString("\n")
	details := []string{}
	if media.Author != "" {
		details = append(details, media.Author)
	}
	if media.Platform != "" {
		details = append(details, media.Platform)
	}
	if media.Duration > 0 {
		details = append(details, model.FormatDuration(media.Duration))
	}
	b.WriteString(dimStyle.Render(strings.Join(details, " · ")))
	b.WriteString("\n\n")
	return b.String()
}

func (m Model) viewPicker() string {
	var b strings.Builder
	b.WriteString(m.viewMedia())

	video, audio := tabStyle, tabStyle
	if m.tab == model.KindAudio {
		audio = activeTabStyle
	} else {
		video = activeTabStyle
	}
	b.WriteString(video.Render("Video") + " " + audio.Render("Audio"))
	b.WriteString("\n\n")

	rows := []string{"Best available"}
	for _, f := range m.formats() {
		rows = append(rows, formatRow(f))
	}
	for i, row := range rows {
		if i == m.cursor {
			b.WriteString(subtitleStyle.Render("› " + row))
		} else {
			b.WriteString("  " + row)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatRow renders one picker line, e.g. "1920×1080  mp4   H.264  30fps  45.8 MB".
func formatRow(f model.FormatVariant) string {
	var cols []string
	if f.Kind() == model.MediaVideo {
		label := f.Resolution()
		if label == "" {
			label = f.Quality
		}
		cols = append(cols, fmt.Sprintf("%-10s", label), fmt.Sprintf("%-5s", f.Extension), fmt.Sprintf("%-6s", model.CodecDisplayName(f.VideoCodec)))
		if f.FPS > 0 {
			cols = append(cols, fmt.Sprintf("%.0ffps", f.FPS))
		}
		if !hasAudio(f) {
			cols = append(cols, "(no audio)")
		}
	} else {
		cols = append(cols, fmt.Sprintf("%-10s", model.FormatBitrate(f.AudioBitrate)), fmt.Sprintf("%-5s", f.Extension), fmt.Sprintf("%-6s", model.CodecDisplayName(f.AudioCodec)))
		if f.SampleRate > 0 {
			cols = append(cols, fmt.Sprintf("%.1fkHz", float64(f.SampleRate)/1000))
		}
	}
	if f.FileSize > 0 {
		cols = append(cols, model.FormatFileSize(f.FileSize))
	}
	return strings.TrimRight(strings.Join(cols, " "), " ")
}

func hasAudio(f model.FormatVariant) bool {
	return f.AudioCodec != "" && f.AudioCodec != "none"
}

func (m Model) viewDownloading() string {
	var b strings.Builder
	b.WriteString(m.viewMedia())

	p := m.snap.Progress
	if m.snap.Task == nil {
		b.WriteString(m.spinner.View() + " " + subtitleStyle.Render("Submitting..."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(m.progress.View())
	b.WriteString("\n")

	stats := []string{fmt.Sprintf("%.1f%%", p.Percent)}
	if p.TotalBytes > 0 {
		stats = append(stats, fmt.Sprintf("%s / %s", model.FormatFileSize(p.DownloadedBytes), model.FormatFileSize(p.TotalBytes)))
	}
	if p.Speed != "" {
		stats = append(stats, p.Speed)
	}
	if p.ETA != "" {
		stats = append(stats, "ETA "+p.ETA)
	}
	b.WriteString(infoStyle.Render(strings.Join(stats, " | ")))
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewComplete() string {
	var b strings.Builder
	b.WriteString(m.viewMedia())

	var lines []string
	lines = append(lines, "Download Complete!")
	switch {
	case m.snap.Retrieving:
		lines = append(lines, "", m.spinner.View()+" Retrieving file...")
	case m.snap.FilePath != "":
		lines = append(lines, "", "Saved to: "+m.snap.FilePath)
	case m.snap.RetrievalErr != nil:
		lines = append(lines, "", errorStyle.Render(m.snap.RetrievalErr.Error()))
	}
	b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("Error occurred:"))
	b.WriteString("\n\n")
	if m.snap.Err != nil {
		b.WriteString(fmt.Sprintf("  %s", m.snap.Err.Error()))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder

	for _, entry := range m.logs {
		var style lipgloss.Style
		prefix := "•"
		switch entry.Level {
		case download.LevelError:
			style = errorStyle
			prefix = "✗"
		case download.LevelWarning:
			style = warningStyle
			prefix = "!"
		case download.LevelSuccess:
			style = successStyle
			prefix = "✓"
		case download.LevelInfo:
			style = infoStyle
			prefix = "›"
		default:
			style = dimStyle
		}
		b.WriteString(style.Render(prefix + " " + entry.Message))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) helpText() string {
	switch m.snap.State {
	case model.StateIdle:
		return "enter: parse • esc: quit"
	case model.StateParsing:
		return "esc/r: cancel • v: verbose"
	case model.StateParsed:
		return "tab: video/audio • ↑/↓: format • enter: download • r: start over"
	case model.StateDownloading:
		return "esc/r: start over • v: verbose"
	case model.StateCompleted:
		if m.snap.RetrievalErr != nil && m.snap.Task != nil && m.snap.Task.HistoryID != 0 {
			return "f: retry file • r: new download • q: quit"
		}
		return "r: new download • q: quit"
	case model.StateError:
		return "r: new download • q: quit"
	}
	return ""
}

// Run starts the TUI application. opts.OnUpdate is replaced so controller
// updates reach the program.
func Run(settings *config.Settings, opts download.Options) error {
	var p *tea.Program
	opts.OnUpdate = func(u download.Update) {
		p.Send(UpdateMsg{Update: u})
	}
	ctrl := download.NewController(opts)
	defer ctrl.Close()

	p = tea.NewProgram(NewModel(ctrl, settings), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
