package chat

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Ads2024/Demo-Assistant-API-AI/internal/session"
)

// Mailer delivers an answer by email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SetMailer enables the /email command.
func (c *Chat) SetMailer(m Mailer) {
	c.mailer = m
}

// Run reads input until EOF or /quit. Each line that is not a slash
// command is asked as a streamed turn. A failed turn is reported and the
// loop goes on with the session as it is.
func (c *Chat) Run(ctx context.Context, sess *session.Session) error {
	c.io.SetStatus(sess.ThreadID, sess.Len())
	for {
		input, err := c.io.ReadInput()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		// Slash commands never reach the assistant.
		if strings.HasPrefix(input, "/") {
			handled, quit := c.handleSlashCommand(ctx, sess, input)
			if quit {
				return nil
			}
			if handled {
				continue
			}
		}

		c.io.UserMessage(input)
		if _, err := c.Ask(ctx, sess, input); err != nil {
			if ctx.Err() != nil {
				c.io.SystemMessage("\nInterrupted.")
				return ctx.Err()
			}
			c.io.Error(err.Error())
		}
	}
}

func (c *Chat) handleSlashCommand(ctx context.Context, sess *session.Session, input string) (bool, bool) {
	parts := strings.SplitN(input, " ", 2)
	cmd := parts[0]
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/quit", "/exit", "/q":
		c.io.SystemMessage("Bye.")
		return true, true
	case "/new", "/clear", "/reset":
		c.Reset(sess)
		c.io.SystemMessage("Started a new conversation.")
		return true, false
	case "/history":
		c.io.SystemMessage(session.FormatHistory(sess.Turns(), 200))
		return true, false
	case "/thread":
		return c.handleThread(sess), false
	case "/email":
		return c.handleEmail(ctx, sess, arg), false
	case "/help":
		return c.handleHelp(), false
	default:
		return false, false
	}
}

func (c *Chat) handleThread(sess *session.Session) bool {
	thread := sess.ThreadID
	if thread == "" {
		thread = "(none yet)"
	}
	c.io.SystemMessage(fmt.Sprintf("Session: %s\nThread:  %s\nTurns:   %d", sess.ShortID(), thread, sess.Len()))
	return true
}

func (c *Chat) handleEmail(ctx context.Context, sess *session.Session, to string) bool {
	if to == "" {
		c.io.Error("usage: /email <address>")
		return true
	}
	if c.mailer == nil {
		c.io.Error("email is not configured (set EMAIL_FROM and EMAIL_PASSWORD)")
		return true
	}
	last, ok := sess.LastAssistant()
	if !ok {
		c.io.Error("no answer to send yet")
		return true
	}
	if err := c.mailer.Send(ctx, to, "", MailBody(last)); err != nil {
		c.log.Error().Err(err).Str("session_id", sess.ID).Msg("email failed")
		c.io.Error(err.Error())
		return true
	}
	c.log.Info().Str("session_id", sess.ID).Str("to", to).Msg("answer emailed")
	c.io.SystemMessage("Sent to " + to + ".")
	return true
}

func (c *Chat) handleHelp() bool {
	help := `Available commands:
  /help              Show this help message
  /new               Start a new conversation (new thread)
  /history           Show the conversation so far
  /thread            Show the session and thread ids
  /email <address>   Email the last answer
  /quit              Exit
Esc cancels an answer in progress.`
	c.io.SystemMessage(help)
	return true
}

// MailBody renders an assistant turn as a plain text email body.
// Attachments are listed by name; their content stays with the assistant.
func MailBody(t session.Turn) string {
	var sb strings.Builder
	sb.WriteString(t.Content)
	if len(t.Attachments) > 0 {
		sb.WriteString("\n\nAttachments:\n")
		for _, a := range t.Attachments {
			name := a.Name
			if name == "" {
				name = a.Ref
			}
			fmt.Fprintf(&sb, "- %s (%s)\n", name, a.Kind)
		}
	}
	return sb.String()
}
