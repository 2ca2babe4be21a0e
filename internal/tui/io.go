// Package tui defines the IO interface between the chat loop and the
// user interface layer, plus PlainIO (terminal fallback), BufferIO
// (capture) and TuiIO (bubbletea).
package tui

import (
	"context"

	"github.com/Ads2024/Demo-Assistant-API-AI/internal/session"
)

// IO is the contract between the chat loop and the UI layer.
// Every method maps to a distinct visual event; the chat loop never
// depends on a specific rendering implementation.
type IO interface {
	// ReadInput blocks until the user submits a line of input.
	// Returns ("", io.EOF) when the user quits.
	ReadInput() (string, error)

	// UserMessage displays the user's submitted message in the output area.
	UserMessage(text string)

	// ThinkingStart signals that a run has started.
	// Implementations should show a spinner or "Thinking..." indicator.
	ThinkingStart()

	// TextDelta appends an incremental text chunk from the run stream.
	TextDelta(delta string)

	// TextDone signals that the current response is complete.
	// fullText contains the entire response assembled from all deltas.
	// TUI implementations use this to trigger Markdown rendering.
	TextDone(fullText string)

	// ToolNotice shows that the assistant is using a remote tool,
	// e.g. "file_search".
	ToolNotice(kind string)

	// Attachment displays a materialized image or file. path is only
	// valid until Attachment returns.
	Attachment(att session.Attachment, path string) error

	// SystemMessage displays a system-level notice (command feedback,
	// session status).
	SystemMessage(text string)

	// Warning displays a non-fatal problem; the turn continues.
	Warning(msg string)

	// Error displays an error message with prominent styling.
	Error(msg string)

	// SetStatus updates the thread and turn counter in the status area.
	SetStatus(threadID string, turns int)
}

// LoopCanceller lets the UI cancel the turn that is in flight.
type LoopCanceller interface {
	SetLoopCancel(cancel context.CancelFunc)
	ClearLoopCancel()
}
