package session

import (
	"time"

	"github.com/google/uuid"
)

// Session holds the conversation state for one interactive session:
// the ordered turns and the remote thread they belong to.
// It is owned by a single caller; it is not safe for concurrent use.
type Session struct {
	ID        string
	ThreadID  string // empty until the first turn creates a thread
	CreatedAt time.Time
	UpdatedAt time.Time

	turns         []Turn
	committedRuns map[string]bool
}

// New creates a new session with a unique ID and no thread.
func New() *Session {
	now := time.Now()
	return &Session{
		ID:            uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
		committedRuns: make(map[string]bool),
	}
}

// ShortID returns the first 8 characters of the session ID.
func (s *Session) ShortID() string {
	if len(s.ID) > 8 {
		return s.ID[:8]
	}
	return s.ID
}

// HasThread reports whether a remote thread is bound to the session.
func (s *Session) HasThread() bool {
	return s.ThreadID != ""
}

// SetThread binds the remote thread. An already bound thread is never
// replaced; call Reset first.
func (s *Session) SetThread(id string) bool {
	if s.ThreadID != "" || id == "" {
		return false
	}
	s.ThreadID = id
	s.UpdatedAt = time.Now()
	return true
}

// AddUserTurn records the user's question.
func (s *Session) AddUserTurn(text string) Turn {
	t := Turn{
		Role:      RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	}
	s.turns = append(s.turns, t)
	s.UpdatedAt = t.CreatedAt
	return t
}

// CommitAssistant appends the finished assistant turn for runID.
// Nothing is appended when text is blank after trimming, or when a turn
// for the same non-empty runID was already committed.
// Returns whether a turn was appended.
func (s *Session) CommitAssistant(text string, attachments []Attachment, runID string) bool {
	if isBlank(text) {
		return false
	}
	if runID != "" {
		if s.committedRuns == nil {
			s.committedRuns = make(map[string]bool)
		}
		if s.committedRuns[runID] {
			return false
		}
		s.committedRuns[runID] = true
	}
	t := Turn{
		Role:        RoleAssistant,
		Content:     text,
		Attachments: append([]Attachment(nil), attachments...),
		RunID:       runID,
		CreatedAt:   time.Now(),
	}
	s.turns = append(s.turns, t)
	s.UpdatedAt = t.CreatedAt
	return true
}

// Turns returns a copy of the committed turns in order.
func (s *Session) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	for i, t := range s.turns {
		out[i] = t.clone()
	}
	return out
}

// Len returns the number of committed turns.
func (s *Session) Len() int {
	return len(s.turns)
}

// LastAssistant returns the most recent assistant turn.
func (s *Session) LastAssistant() (Turn, bool) {
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == RoleAssistant {
			return s.turns[i].clone(), true
		}
	}
	return Turn{}, false
}

// Reset clears the history and the thread binding and starts a new
// session ID. The next turn will create a fresh remote thread.
func (s *Session) Reset() {
	now := time.Now()
	s.ID = uuid.NewString()
	s.ThreadID = ""
	s.turns = nil
	s.committedRuns = make(map[string]bool)
	s.CreatedAt = now
	s.UpdatedAt = now
}
