package tui

import (
	"context"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Ads2024/Demo-Assistant-API-AI/internal/assistant"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/attach"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/session"
)

// TuiIO implements the IO interface by sending messages to a bubbletea Program.
// All methods are safe to call from any goroutine.
type TuiIO struct {
	program *tea.Program
	inputCh chan inputResult

	mu         sync.Mutex
	cancelLoop context.CancelFunc
}

var (
	_ IO            = (*TuiIO)(nil)
	_ LoopCanceller = (*TuiIO)(nil)
)

func (t *TuiIO) ReadInput() (string, error) {
	// Tell the TUI to activate the text input
	t.program.Send(readInputMsg{})

	// Block until the user submits or the TUI exits
	res := <-t.inputCh
	if res.err != nil {
		return "", io.EOF
	}
	return res.text, nil
}

func (t *TuiIO) UserMessage(text string) {
	t.program.Send(userMsg{text: text})
}

func (t *TuiIO) ThinkingStart() {
	t.program.Send(thinkingStartMsg{})
}

func (t *TuiIO) TextDelta(delta string) {
	t.program.Send(textDeltaMsg{delta: delta})
}

func (t *TuiIO) TextDone(fullText string) {
	t.program.Send(textDoneMsg{fullText: fullText})
}

func (t *TuiIO) ToolNotice(kind string) {
	t.program.Send(toolNoticeMsg{kind: kind})
}

// Attachment describes the file before returning: the program renders
// asynchronously and the file is gone by then.
func (t *TuiIO) Attachment(att session.Attachment, path string) error {
	t.program.Send(attachmentMsg{
		att:  att,
		desc: attach.Describe(path, assistant.ContentKind(att.Kind)),
	})
	return nil
}

func (t *TuiIO) SystemMessage(text string) {
	t.program.Send(systemMsg{text: text})
}

func (t *TuiIO) Warning(msg string) {
	t.program.Send(warningMsg{text: msg})
}

func (t *TuiIO) Error(msg string) {
	t.program.Send(errorMsg{text: msg})
}

func (t *TuiIO) SetStatus(threadID string, turns int) {
	t.program.Send(statusMsg{threadID: threadID, turns: turns})
}

// --- LoopCanceller implementation ---

// SetLoopCancel registers the cancel function of the turn in flight.
func (t *TuiIO) SetLoopCancel(cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLoop = cancel
}

// ClearLoopCancel clears the cancel function when the turn ends.
func (t *TuiIO) ClearLoopCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLoop = nil
}

// CancelLoop cancels the turn in flight. Returns true if a turn was
// actually cancelled.
func (t *TuiIO) CancelLoop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelLoop != nil {
		t.cancelLoop()
		t.cancelLoop = nil
		return true
	}
	return false
}
