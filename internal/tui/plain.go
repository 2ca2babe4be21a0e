package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/Ads2024/Demo-Assistant-API-AI/internal/assistant"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/attach"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/session"
)

// PlainIO implements IO using plain terminal output.
// It is used when TUI mode is disabled, stdout is not a terminal, or for
// one-shot runs.
type PlainIO struct {
	scanner *bufio.Scanner
	out     io.Writer
	errOut  io.Writer

	threadID string
	turns    int
}

var _ IO = (*PlainIO)(nil)

// NewPlainIO creates a PlainIO that reads from stdin.
func NewPlainIO() *PlainIO {
	return newPlainIO(os.Stdin, os.Stdout, os.Stderr)
}

func newPlainIO(in io.Reader, out, errOut io.Writer) *PlainIO {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 1024*1024), 1024*1024)
	return &PlainIO{scanner: s, out: out, errOut: errOut}
}

func (p *PlainIO) ReadInput() (string, error) {
	fmt.Fprint(p.out, "\n> ")
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

func (p *PlainIO) UserMessage(_ string) {
	// Plain terminal: the user already sees what they typed.
}

func (p *PlainIO) ThinkingStart() {
	fmt.Fprintln(p.out)
}

func (p *PlainIO) TextDelta(delta string) {
	fmt.Fprint(p.out, delta)
}

func (p *PlainIO) TextDone(_ string) {
	fmt.Fprintln(p.out)
}

func (p *PlainIO) ToolNotice(kind string) {
	fmt.Fprintf(p.out, "\n%s\n  %s in progress...\n", strings.Repeat("-", 30), kind)
}

func (p *PlainIO) Attachment(att session.Attachment, path string) error {
	name := att.Name
	if name == "" {
		name = att.Ref
	}
	fmt.Fprintf(p.out, "\n[%s] %s (%s)\n", att.Kind, name, attach.Describe(path, assistant.ContentKind(att.Kind)))
	return nil
}

func (p *PlainIO) SystemMessage(text string) {
	fmt.Fprintln(p.out, text)
}

func (p *PlainIO) Warning(msg string) {
	fmt.Fprintf(p.errOut, "warning: %s\n", msg)
}

func (p *PlainIO) Error(msg string) {
	fmt.Fprintf(p.errOut, "error: %s\n", msg)
}

func (p *PlainIO) SetStatus(threadID string, turns int) {
	p.threadID = threadID
	p.turns = turns
}

// truncate shortens s to maxLen terminal cells, appending "..." if cut.
// Runes are never split.
func truncate(s string, maxLen int) string {
	if ansi.StringWidth(s) <= maxLen {
		return s
	}
	return ansi.Truncate(s, maxLen+3, "...")
}
