package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ads2024/Demo-Assistant-API-AI/internal/chat"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/mail"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/session"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/tui"
)

func newRunCmd() *cobra.Command {
	var (
		prompt  string
		poll    bool
		emailTo string
		subject string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ask a single question non-interactively",
		Example: `  chatdesk run -P "summarise the Q3 production numbers"
  chatdesk run -P "plot monthly output" --poll
  chatdesk run -P "weekly report" --email ops@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt / -P is required")
			}
			return runOnce(prompt, poll, emailTo, subject)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "P", "", "the question to ask")
	cmd.Flags().BoolVar(&poll, "poll", false, "poll the run instead of streaming it")
	cmd.Flags().StringVar(&emailTo, "email", "", "email the answer to this address (implies --poll)")
	cmd.Flags().StringVar(&subject, "subject", mail.DefaultSubject, "email subject")
	cmd.MarkFlagRequired("prompt")

	return cmd
}

// runOnce asks one question and exits. With --email the answer is
// collected silently over the polling path and mailed.
func runOnce(prompt string, poll bool, emailTo, subject string) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt := newApp(ctx)
	defer rt.close()

	var sender *mail.Sender
	if emailTo != "" {
		if err := rt.cfg.ValidateEmail(); err != nil {
			return err
		}
		sender = rt.mailer()
		poll = true
	}

	var ui tui.IO = tui.NewPlainIO()
	var buf *tui.BufferIO
	if sender != nil {
		buf = tui.NewBufferIO()
		ui = buf
	}

	c := rt.newChat(ui)
	sess := session.New()

	ask := c.Ask
	if poll {
		ask = c.AskPolled
	}
	res, err := ask(ctx, sess, prompt)
	if err != nil {
		return err
	}
	if sender == nil {
		return nil
	}

	// Warnings were captured silently; surface them before mailing.
	for _, w := range buf.Warnings {
		fmt.Fprintln(os.Stderr, "Warning:", w)
	}
	last, ok := sess.LastAssistant()
	if !ok {
		return fmt.Errorf("the assistant returned no answer (run %s), nothing to send", res.RunID)
	}
	if err := sender.Send(ctx, emailTo, subject, chat.MailBody(last)); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Answer sent to %s.\n", emailTo)
	return nil
}
