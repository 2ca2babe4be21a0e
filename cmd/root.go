package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Ads2024/Demo-Assistant-API-AI/internal/assistant"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/attach"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/chat"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/config"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/logger"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/mail"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/telemetry"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/tui"
)

var (
	cfgFile        string
	assistantFlag  string
	modelFlag      string
	runTimeoutFlag time.Duration
	useTUI         bool

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:   "chatdesk",
		Short: "Terminal chat for an OpenAI assistant",
		Long:  "chatdesk talks to a hosted OpenAI assistant (Assistants API) from the terminal, streaming its answers, files and images.",
		// Running chatdesk with no subcommand starts chat mode.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Default TUI on when stdout is a terminal and --tui was not explicitly set.
			if !cmd.Root().PersistentFlags().Changed("tui") && term.IsTerminal(int(os.Stdout.Fd())) {
				useTUI = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/chatdesk/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&assistantFlag, "assistant", "a", "", "override assistant ID")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "model for `assistant create`")
	rootCmd.PersistentFlags().DurationVar(&runTimeoutFlag, "run-timeout", 0, "upper bound for one answer (default 60s)")
	rootCmd.PersistentFlags().BoolVar(&useTUI, "tui", false, "use bubbletea TUI mode (default: auto-detect terminal)")

	// Subcommands
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newAssistantCmd())
	rootCmd.AddCommand(newVectorStoreCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig loads .env and the config file, applying CLI flag overrides.
// Missing credentials are not fatal here; each turn validates them.
func initConfig() *config.Config {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// CLI flags override config values
	if assistantFlag != "" {
		cfg.OpenAI.AssistantID = assistantFlag
	}
	if modelFlag != "" {
		cfg.OpenAI.Model = modelFlag
	}
	if runTimeoutFlag > 0 {
		cfg.RunTimeout = runTimeoutFlag
	}
	return cfg
}

// app holds what every command builds from the config.
type app struct {
	cfg *config.Config
	log zerolog.Logger
	svc *assistant.OpenAIService

	logCloser io.Closer
	tel       *telemetry.Provider
}

func newApp(ctx context.Context) *app {
	cfg := initConfig()

	log, closer, err := logger.Open(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}
	log = log.With().Str("version", appVersion).Logger()

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceVersion: appVersion,
	}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: tracing disabled: %v\n", err)
		tel, _ = telemetry.NewProvider(ctx, telemetry.Config{}, log)
	}

	svc := assistant.NewOpenAIService(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.RequestTimeout, log)
	return &app{cfg: cfg, log: log, svc: svc, logCloser: closer, tel: tel}
}

func (r *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.tel.Shutdown(ctx); err != nil {
		r.log.Warn().Err(err).Msg("telemetry shutdown")
	}
	if r.logCloser != nil {
		r.logCloser.Close()
	}
}

// newChat wires a Chat for ui. Credentials are checked per turn.
func (r *app) newChat(ui tui.IO) *chat.Chat {
	files := attach.New(r.svc, r.cfg.DownloadDir)
	c := chat.New(r.svc, ui, files, chat.Options{
		AssistantID:  r.cfg.OpenAI.AssistantID,
		Instructions: r.cfg.OpenAI.Instructions,
		RunTimeout:   r.cfg.RunTimeout,
		PollInterval: r.cfg.PollInterval,
		Validate:     r.cfg.Validate,
	}, r.log)
	if r.cfg.ValidateEmail() == nil {
		c.SetMailer(r.mailer())
	}
	return c
}

func (r *app) mailer() *mail.Sender {
	e := r.cfg.Email
	return mail.NewSender(e.Host, e.Port, e.From, e.Password)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
