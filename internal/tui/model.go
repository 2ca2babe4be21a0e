package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/Ads2024/Demo-Assistant-API-AI/internal/session"
)

// ---------- messages sent from the chat goroutine via program.Send() ----------

type readInputMsg struct{}

type inputResult struct {
	text string
	err  error
}

type userMsg struct{ text string }
type thinkingStartMsg struct{}
type textDeltaMsg struct{ delta string }
type textDoneMsg struct{ fullText string }
type toolNoticeMsg struct{ kind string }
type attachmentMsg struct {
	att  session.Attachment
	desc string
}
type systemMsg struct{ text string }
type warningMsg struct{ text string }
type errorMsg struct{ text string }
type statusMsg struct {
	threadID string
	turns    int
}
type chatDoneMsg struct{ err error }

// ---------- spinner activity kinds ----------

type spinnerKind int

const (
	spinnerNone     spinnerKind = iota
	spinnerThinking             // run started, no output yet
	spinnerTool                 // remote tool in progress
)

// TUIConfig carries version and assistant info for the welcome line and status bar.
type TUIConfig struct {
	Version     string
	AssistantID string
	SessionID   string
	ShowWelcome bool
}

// ---------- styles ----------

var (
	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3"))

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // gray spinner

	// Tool and attachment blocks: minimalist gray left line
	blockBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(lipgloss.Color("7")).
				PaddingLeft(1)

	blockNameStyle = lipgloss.NewStyle().
			Bold(true)

	blockDetailStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("8")) // light gray
)

// ---------- Model ----------

const statusBarHeight = 1
const inputHeight = 1

// Model is the bubbletea model managing the full TUI state.
type Model struct {
	viewport  viewport.Model
	textinput textinput.Model
	spinner   spinner.Model
	width     int
	height    int

	content     *strings.Builder // accumulated output; shared across model copies
	streaming   bool             // text deltas are arriving
	streamStart int              // byte offset in content where current stream began
	inputMode   bool             // text input is active (waiting for user)
	spinnerKind spinnerKind      // what the spinner is showing for
	toolKind    string           // remote tool in progress (empty = none)

	inputCh chan inputResult // send user input back to ReadInput()

	// cancelLoopFn cancels the turn in flight; wired by RunTUI.
	cancelLoopFn func() bool

	quitting bool

	// status bar
	threadID string
	turns    int

	cfg TUIConfig
}

// NewModel creates the initial bubbletea model.
func NewModel(inputCh chan inputResult, cfg TUIConfig) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 4096

	vp := viewport.New(80, 24)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := Model{
		viewport:  vp,
		textinput: ti,
		spinner:   sp,
		content:   &strings.Builder{},
		inputCh:   inputCh,
		cfg:       cfg,
	}
	if cfg.ShowWelcome {
		m.appendLine(systemStyle.Render(welcomeLine(cfg)))
	}
	return m
}

func welcomeLine(cfg TUIConfig) string {
	s := "chatdesk " + cfg.Version
	if cfg.AssistantID != "" {
		s += " | assistant " + cfg.AssistantID
	}
	if cfg.SessionID != "" {
		s += " | session " + cfg.SessionID
	}
	return s + "\nType /help for commands. Esc cancels a running answer."
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - statusBarHeight - inputHeight
		if vpHeight < 1 {
			vpHeight = 1
		}
		m.viewport.Width = m.width
		m.viewport.Height = vpHeight
		m.textinput.Width = m.width - 4 // account for prompt

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.inputMode {
				m.inputCh <- inputResult{err: fmt.Errorf("interrupted")}
				m.inputMode = false
				m.textinput.Blur()
			}
			m.quitting = true
			return m, tea.Quit
		case "esc":
			if !m.inputMode && m.cancelLoopFn != nil && m.cancelLoopFn() {
				m.spinnerKind = spinnerNone
				m.toolKind = ""
				m.streaming = false
				m.appendLine(systemStyle.Render("  [cancelled]"))
			}
			return m, nil
		case "enter":
			if m.inputMode {
				text := strings.TrimSpace(m.textinput.Value())
				m.textinput.SetValue("")
				m.inputCh <- inputResult{text: text}
				m.inputMode = false
				m.textinput.Blur()
			}
			return m, nil
		}

		if m.inputMode {
			var cmd tea.Cmd
			m.textinput, cmd = m.textinput.Update(msg)
			cmds = append(cmds, cmd)
		}

	// ---------- custom messages from the chat goroutine ----------

	case readInputMsg:
		m.inputMode = true
		m.textinput.Focus()
		cmds = append(cmds, textinput.Blink)

	case userMsg:
		m.appendLine(userStyle.Render("You: " + msg.text))

	case thinkingStartMsg:
		m.spinnerKind = spinnerThinking
		m.streaming = false

	case textDeltaMsg:
		if m.spinnerKind != spinnerNone {
			m.spinnerKind = spinnerNone
			m.toolKind = ""
		}
		if !m.streaming {
			// Record where this response starts so TextDone can replace it
			m.streamStart = m.content.Len()
			m.streaming = true
		}
		m.appendText(msg.delta)

	case textDoneMsg:
		m.spinnerKind = spinnerNone
		m.toolKind = ""
		if m.streaming {
			m.replaceStreamWithMarkdown(msg.fullText)
		}
		m.streaming = false

	case toolNoticeMsg:
		m.closeStream()
		m.toolKind = msg.kind
		m.spinnerKind = spinnerTool
		m.appendLine(blockBorderStyle.Render(
			blockNameStyle.Render(msg.kind) + "\n" + blockDetailStyle.Render("in progress")))

	case attachmentMsg:
		m.closeStream()
		name := msg.att.Name
		if name == "" {
			name = msg.att.Ref
		}
		m.appendLine(blockBorderStyle.Render(
			blockNameStyle.Render(string(msg.att.Kind)+": "+name) + "\n" +
				blockDetailStyle.Render(msg.desc)))

	case systemMsg:
		m.appendLine(systemStyle.Render(msg.text))

	case warningMsg:
		m.appendLine(warningStyle.Render("Warning: " + truncate(msg.text, 300)))

	case errorMsg:
		m.appendLine(errorStyle.Render("Error: " + msg.text))

	case statusMsg:
		m.threadID = msg.threadID
		m.turns = msg.turns

	case chatDoneMsg:
		m.quitting = true
		return m, tea.Quit
	}

	// Update viewport
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoBottom()

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	bar := statusBarStyle.Width(m.width).Render(m.statusLine())

	var input string
	if m.inputMode {
		input = m.textinput.View()
	}
	return m.viewport.View() + "\n" + bar + "\n" + input
}

func (m Model) statusLine() string {
	thread := m.threadID
	if thread == "" {
		thread = "none"
	}
	status := fmt.Sprintf(" thread: %s | turns: %d", thread, m.turns)
	if m.toolKind != "" {
		status += " | tool: " + m.toolKind
	}
	return status
}

// renderContent returns the viewport content, appending the spinner line
// that is not persisted in the content builder.
func (m *Model) renderContent() string {
	base := m.content.String()
	switch m.spinnerKind {
	case spinnerThinking:
		return base + "\n" + m.spinner.View() + " Thinking..."
	case spinnerTool:
		return base + "\n" + m.spinner.View() + " " + m.toolKind + "..."
	default:
		return base
	}
}

// closeStream ends the raw streamed segment so that blocks rendered in
// between are not overwritten by the final markdown.
func (m *Model) closeStream() {
	if !m.streaming {
		return
	}
	s := m.content.String()
	if len(s) > 0 && s[len(s)-1] != '\n' {
		m.content.WriteString("\n")
	}
	m.streaming = false
}

// ---------- markdown rendering ----------

// replaceStreamWithMarkdown replaces the raw streamed text (from streamStart
// to end of content) with glamour-rendered markdown.
func (m *Model) replaceStreamWithMarkdown(fullText string) {
	width := m.width
	if width <= 0 {
		width = 80
	}

	// Interleaved blocks were rendered inside the stream; keep raw text.
	streamed := m.content.String()[m.streamStart:]
	if !strings.HasSuffix(fullText, streamed) {
		m.closeStream()
		return
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		m.closeStream()
		return
	}

	rendered, err := r.Render(streamed)
	if err != nil {
		m.closeStream()
		return
	}

	// Replace: keep everything before streamStart, append rendered text
	before := m.content.String()[:m.streamStart]
	m.content.Reset()
	m.content.WriteString(before)
	m.content.WriteString(strings.TrimRight(rendered, "\n"))
	m.content.WriteString("\n")
}

// ---------- helpers ----------

func (m *Model) appendLine(text string) {
	m.content.WriteString(text)
	m.content.WriteString("\n")
}

func (m *Model) appendText(text string) {
	m.content.WriteString(text)
}
