package cmd

import (
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/session"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/tui"
)

// runChat starts the interactive chat (REPL) mode.
func runChat() error {
	ctx, cancel := signalContext()
	defer cancel()

	rt := newApp(ctx)
	defer rt.close()

	sess := session.New()
	rt.log.Info().Str("session_id", sess.ID).Bool("tui", useTUI).Msg("chat started")

	if useTUI {
		tuiCfg := tui.TUIConfig{
			Version:     appVersion,
			AssistantID: rt.cfg.OpenAI.AssistantID,
			SessionID:   sess.ShortID(),
			ShowWelcome: true,
		}
		return tui.RunTUI(tuiCfg, func(ui tui.IO) error {
			return rt.newChat(ui).Run(ctx, sess)
		})
	}

	// Plain IO mode (default)
	ui := tui.NewPlainIO()
	if err := rt.cfg.Validate(); err != nil {
		ui.Warning(err.Error())
	}
	return rt.newChat(ui).Run(ctx, sess)
}
