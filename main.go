// ftlbot translates the Fluent (.ftl) localization files of a GitHub
// repository and publishes the result as a branch on a fork.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/minios-linux/ftlbot/config"
	"github.com/minios-linux/ftlbot/helper"
	"github.com/minios-linux/ftlbot/i18n"
	"github.com/minios-linux/ftlbot/logging"
	"github.com/minios-linux/ftlbot/publish"
	"github.com/minios-linux/ftlbot/settings"
	"github.com/minios-linux/ftlbot/telegram"
	"github.com/minios-linux/ftlbot/translate"
	"github.com/minios-linux/ftlbot/workcopy"
	"github.com/minios-linux/ftlbot/workflow"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow, color.Bold).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, blue("[INFO]")+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, green("[OK]")+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, yellow("[WARN]")+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, red("[ERROR]")+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	configPath string
	logLevel   string
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ftlbot",
		Short: "Translate Fluent localization files of GitHub repositories",
		Long: `ftlbot translates the Fluent (.ftl) files of a GitHub repository and
publishes the result as a branch on a fork.

Commands:
  bot         Serve the Telegram bot
  run         Process one repository from the terminal
  translate   Translate local .ftl files in place
  auth        Manage stored tokens and API keys

Translation providers:
  google         Google Translate (default, no key)
  gemini         Google AI (Gemini), API key
  groq           Groq, API key
  ollama         Ollama local server
  custom-openai  Custom OpenAI-compatible endpoint`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", config.FileName, "Configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newBotCmd(),
		newRunCmd(),
		newTranslateCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadConfig reads the configuration and initializes logging and messages.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	i18n.Init(cfg.UILanguage)
	return cfg, nil
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ftlbot version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// bot
// ---------------------------------------------------------------------------

func newBotCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Serve the Telegram bot",
		Long: `Serve the Telegram bot with long polling until interrupted.

The bot token is taken from --token, FTLBOT_TELEGRAM_TOKEN,
TELEGRAM_BOT_TOKEN or the credential store (ftlbot auth login --service telegram).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if token == "" {
				token = cfg.Telegram.Token
			}
			cfg.Telegram.Token = settings.Resolve(settings.Telegram, token)

			deps, err := buildDeps(cfg)
			if err != nil {
				return err
			}
			api, err := telegram.Dial(cfg.Telegram)
			if err != nil {
				return err
			}
			logSuccess("Authorized on account %s", api.Self.UserName)

			ctx, stop := signalContext()
			defer stop()
			return telegram.New(api, deps, cfg.Telegram.PollTimeout).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Telegram bot token")
	return cmd
}

// ---------------------------------------------------------------------------
// Wiring
// ---------------------------------------------------------------------------

// buildTranslator creates the configured provider wrapped with the shared
// rate limit. Timeouts.Translate bounds each provider request; retry waits
// after a 429 are not counted against it.
func buildTranslator(cfg *config.Config) (translate.Translator, error) {
	p := cfg.Provider
	prov := translate.DefaultProviders()[p.ID]
	prov.ID = p.ID
	if p.BaseURL != "" {
		prov.BaseURL = p.BaseURL
	} else if stored := settings.GetBaseURL(p.ID); stored != "" {
		prov.BaseURL = stored
	}
	if p.Model != "" {
		prov.Model = p.Model
	}
	prov.Proxy = p.Proxy
	if cfg.Timeouts.Translate > 0 {
		prov.Timeout = cfg.Timeouts.Translate
	}
	prov.APIKey = settings.Resolve(p.ID, p.APIKey)

	tr, err := translate.New(translate.Options{
		Provider:     prov,
		MaxRetries:   p.MaxRetries,
		SystemPrompt: p.Prompt,
		Logger:       logging.WithModule("translate"),
	})
	if err != nil {
		return nil, err
	}
	return translate.WithRateLimit(tr, translate.NewLimiter(p.RequestsPerMinute, p.Burst)), nil
}

func buildPublisher(cfg *config.Config) (publish.Publisher, error) {
	if cfg.Publish.Strategy == config.StrategyDirect {
		logWarning("Direct push publishes to the source repository and needs write access to it")
		return publish.DirectPush{}, nil
	}
	token := settings.Resolve(settings.GitHub, cfg.Publish.GithubToken)
	f, err := publish.NewForkPush(token, cfg.Publish.APIBaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w (set FTLBOT_PUBLISH_GITHUB_TOKEN or run 'ftlbot auth login --service github')", err)
	}
	f.Organization = cfg.Publish.Organization
	f.Timeout = cfg.Timeouts.ForkAPI
	f.Logger = logging.WithModule("publish")
	return f, nil
}

func buildNamer(cfg *config.Config) (workflow.Namer, error) {
	if err := os.MkdirAll(cfg.Workspace.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	if cfg.Workspace.Naming == config.NamingUUID {
		return workflow.UUIDNamer{Dir: cfg.Workspace.Dir}, nil
	}
	return workflow.NewCounterNamer(cfg.Workspace.Dir)
}

// buildDeps assembles the collaborators shared by all sessions.
func buildDeps(cfg *config.Config) (workflow.Deps, error) {
	tr, err := buildTranslator(cfg)
	if err != nil {
		return workflow.Deps{}, err
	}
	pub, err := buildPublisher(cfg)
	if err != nil {
		return workflow.Deps{}, err
	}
	namer, err := buildNamer(cfg)
	if err != nil {
		return workflow.Deps{}, err
	}

	return workflow.Deps{
		Settings: workflow.SettingsFromConfig(cfg),
		Provider: &workcopy.Git{
			CloneTimeout: cfg.Timeouts.Clone,
			PushTimeout:  cfg.Timeouts.Push,
			Logger:       logging.WithModule("workcopy"),
		},
		Helper: helper.Tool{
			Payload: cfg.Layout.HelperPayload,
			Dest:    cfg.Layout.HelperDest,
			Script:  cfg.Layout.HelperScript,
			Timeout: cfg.Timeouts.Helper,
		},
		Translator: tr,
		Publisher:  pub,
		Namer:      namer,
		Logger:     logging.WithModule("workflow"),
	}, nil
}

// yes reports whether an answer to a [y/N] prompt is positive.
func yes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes", "д", "да":
		return true
	}
	return false
}
