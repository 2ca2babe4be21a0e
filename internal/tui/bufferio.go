package tui

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/Ads2024/Demo-Assistant-API-AI/internal/session"
)

// ShownAttachment records one Attachment call on a BufferIO.
type ShownAttachment struct {
	Attachment session.Attachment
	Path       string
	Data       []byte // file content at display time
}

// BufferIO is a silent IO implementation that captures everything the
// chat loop shows. Used for one-shot runs whose answer is post-processed
// (e.g. emailed) and in tests.
type BufferIO struct {
	mu sync.Mutex

	inputs []string
	buf    strings.Builder

	// AttachErr, when set, is returned from every Attachment call.
	AttachErr error

	Deltas      []string
	Done        []string
	Notices     []string
	Attachments []ShownAttachment
	System      []string
	Warnings    []string
	Errors      []string
	Users       []string
	ThreadID    string
	Turns       int
}

var _ IO = (*BufferIO)(nil)

// NewBufferIO creates a BufferIO whose ReadInput returns inputs in order,
// then io.EOF.
func NewBufferIO(inputs ...string) *BufferIO {
	return &BufferIO{inputs: inputs}
}

// Output returns all captured text output.
func (b *BufferIO) Output() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *BufferIO) ReadInput() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inputs) == 0 {
		return "", io.EOF
	}
	in := b.inputs[0]
	b.inputs = b.inputs[1:]
	return in, nil
}

func (b *BufferIO) UserMessage(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Users = append(b.Users, text)
}

func (b *BufferIO) ThinkingStart() {}

func (b *BufferIO) TextDelta(delta string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.WriteString(delta)
	b.Deltas = append(b.Deltas, delta)
}

func (b *BufferIO) TextDone(fullText string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Done = append(b.Done, fullText)
}

func (b *BufferIO) ToolNotice(kind string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Notices = append(b.Notices, kind)
}

func (b *BufferIO) Attachment(att session.Attachment, path string) error {
	data, _ := os.ReadFile(path)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Attachments = append(b.Attachments, ShownAttachment{Attachment: att, Path: path, Data: data})
	return b.AttachErr
}

func (b *BufferIO) SystemMessage(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.System = append(b.System, text)
}

func (b *BufferIO) Warning(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Warnings = append(b.Warnings, msg)
}

func (b *BufferIO) Error(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Errors = append(b.Errors, msg)
}

func (b *BufferIO) SetStatus(threadID string, turns int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ThreadID = threadID
	b.Turns = turns
}
