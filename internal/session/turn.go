package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment is non-text output of an assistant turn. Ref is the remote
// file id; the bytes are never kept in the session.
type Attachment struct {
	Kind AttachmentKind
	Ref  string
	Name string // display name, if the assistant gave one
}

// Turn is one committed message of the conversation.
type Turn struct {
	Role        Role
	Content     string
	Attachments []Attachment
	RunID       string // assistant turns only
	CreatedAt   time.Time
}

func (t Turn) clone() Turn {
	t.Attachments = append([]Attachment(nil), t.Attachments...)
	return t
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// FormatHistory renders turns for the /history command. Contents longer
// than maxLen are cut; maxLen <= 0 disables cutting.
func FormatHistory(turns []Turn, maxLen int) string {
	if len(turns) == 0 {
		return "No history."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== History (%d turns) ===\n", len(turns))
	for i, t := range turns {
		content := strings.ReplaceAll(t.Content, "\n", " ")
		if maxLen > 0 && ansi.StringWidth(content) > maxLen {
			content = ansi.Truncate(content, maxLen+3, "...")
		}
		fmt.Fprintf(&sb, "[%d] %s: %s\n", i, t.Role, content)
		for _, a := range t.Attachments {
			name := a.Name
			if name == "" {
				name = a.Ref
			}
			fmt.Fprintf(&sb, "      %s: %s\n", a.Kind, name)
		}
	}
	sb.WriteString("===")
	return sb.String()
}
