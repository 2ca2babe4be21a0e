package tui

import (
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// RunTUI starts the bubbletea program in alt-screen mode and runs chatFn
// concurrently. It blocks until either the chat loop finishes or the user quits.
func RunTUI(cfg TUIConfig, chatFn func(io IO) error) error {
	inputCh := make(chan inputResult, 1)
	model := NewModel(inputCh, cfg)

	// Create TuiIO early so the cancel hook is wired before the model
	// is copied into the tea.Program.
	tuiIO := &TuiIO{
		inputCh: inputCh,
	}
	model.cancelLoopFn = tuiIO.CancelLoop

	p := tea.NewProgram(model, tea.WithAltScreen())
	tuiIO.program = p

	var (
		chatErr error
		wg      sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		chatErr = chatFn(tuiIO)
		// Signal the TUI that the chat loop is done
		p.Send(chatDoneMsg{err: chatErr})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	// Unblock a ReadInput that is still waiting, then wait for the loop.
	select {
	case inputCh <- inputResult{err: fmt.Errorf("tui closed")}:
	default:
	}
	tuiIO.CancelLoop()
	wg.Wait()

	return chatErr
}
