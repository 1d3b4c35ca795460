package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/minios-linux/ftlbot/ftlfile"
	"github.com/minios-linux/ftlbot/i18n"
	"github.com/minios-linux/ftlbot/logging"
	"github.com/minios-linux/ftlbot/settings"
	"github.com/minios-linux/ftlbot/translate"
	"github.com/minios-linux/ftlbot/workflow"
)

// ---------------------------------------------------------------------------
// Terminal front end
// ---------------------------------------------------------------------------

// terminal is the workflow notifier of the run command.
type terminal struct {
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool

	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	asked bool
}

func newTerminal(in io.Reader, out io.Writer, assumeYes bool) *terminal {
	return &terminal{in: bufio.NewReader(in), out: out, assumeYes: assumeYes}
}

func newBar(out io.Writer, total int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", desc)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

func (t *terminal) Notify(_ context.Context, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishBar()
	_, err := fmt.Fprintf(t.out, "%s %s\n", blue("[INFO]"), text)
	return err
}

func (t *terminal) AskConfirmation(_ context.Context, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishBar()
	t.asked = true
	_, err := fmt.Fprintf(t.out, "%s %s\n", yellow("[?]"), text)
	return err
}

func (t *terminal) Progress(_ context.Context, done, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bar == nil {
		t.bar = newBar(t.out, total, i18n.T("Translating"))
	}
	_ = t.bar.Set(done)
	if done >= total {
		t.finishBar()
	}
}

func (t *terminal) finishBar() {
	if t.bar == nil {
		return
	}
	_ = t.bar.Finish()
	fmt.Fprintln(t.out)
	t.bar = nil
}

// pending reports whether a confirmation was requested and not yet taken.
func (t *terminal) pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.asked
}

// confirm reads the answer to the last question. EOF counts as no.
func (t *terminal) confirm() bool {
	t.mu.Lock()
	t.asked = false
	t.mu.Unlock()

	if t.assumeYes {
		fmt.Fprintln(t.out, "[y/N]: y")
		return true
	}
	fmt.Fprintf(t.out, "[y/N]: ")
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(t.out)
		return false
	}
	return yes(line)
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func newRunCmd() *cobra.Command {
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   "run URL",
		Short: "Process one repository from the terminal",
		Long: `Clone a repository, run the translation helper, translate its
Fluent files and publish the result, asking for confirmation on the terminal
before translating.

Examples:
  ftlbot run https://github.com/space-wizards/space-station-14
  ftlbot run --yes https://github.com/owner/repo`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			deps, err := buildDeps(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			term := newTerminal(os.Stdin, os.Stderr, assumeYes)
			s := workflow.NewSession(deps, term)
			defer s.Close()

			if err := s.SubmitURL(ctx, args[0]); err != nil {
				return err
			}
			if !term.pending() || s.State() != workflow.AwaitingConfirmation {
				return nil
			}
			return s.Confirm(ctx, term.confirm())
		},
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Translate without asking for confirmation")
	return cmd
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

// expandPaths replaces directories in paths with the files under them that
// end with ext. Duplicates are dropped; order is preserved.
func expandPaths(paths []string, ext string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		found, err := ftlfile.FindFiles(p, ext)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			add(f)
		}
	}
	return files, nil
}

func newTranslateCmd() *cobra.Command {
	var lang string

	cmd := &cobra.Command{
		Use:   "translate PATH...",
		Short: "Translate local .ftl files in place",
		Long: `Translate the text of local Fluent files in place with the configured
provider. Directories are searched recursively. Placeables, comments and
unparseable entries are kept as they are.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if lang != "" {
				cfg.Language = lang
			}
			files, err := expandPaths(args, cfg.Layout.Extension)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				logWarning("No %s files found", cfg.Layout.Extension)
				return nil
			}
			tr, err := buildTranslator(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			logInfo("Translating %d file(s) to %s with %s", len(files), cfg.Language, cfg.Provider.ID)
			bar := newBar(os.Stderr, len(files), "Translating")
			results, err := translate.Files(ctx, files, tr, translate.BatchOptions{
				Language: cfg.Language,
				Logger:   logging.WithModule("translate"),
				OnFile: func(done, _ int, _ translate.FileResult) {
					_ = bar.Set(done)
				},
			})
			_ = bar.Finish()
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}
			return reportResults(results)
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "", "Target language (default: from config)")
	return cmd
}

func reportResults(results []translate.FileResult) error {
	failed := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			logError("%s: %v", r.Path, r.Err)
		case r.Failed > 0:
			logWarning("%s: %d string(s) left untranslated: %v", r.Path, r.Failed, r.FirstFailure)
		}
	}
	logSuccess("%d file(s) changed", translate.CountChanged(results))
	if failed > 0 {
		return fmt.Errorf("%d file(s) could not be translated", failed)
	}
	return nil
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

// services is the ordered list of credentials ftlbot can store.
var services = []struct {
	id   string
	name string
	desc string
}{
	{settings.Telegram, "Telegram", "bot token from @BotFather"},
	{settings.GitHub, "GitHub", "token allowed to fork repositories and push"},
	{translate.ProviderGemini, "Google AI (Gemini)", "API key"},
	{translate.ProviderGroq, "Groq", "API key"},
	{translate.ProviderCustomOpenAI, "Custom OpenAI", "API key and endpoint URL"},
}

func knownService(id string) bool {
	for _, s := range services {
		if s.id == id {
			return true
		}
	}
	return false
}

func serviceCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	completions := make([]string, 0, len(services))
	for _, s := range services {
		completions = append(completions, fmt.Sprintf("%s\t%s", s.id, s.name))
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored tokens and API keys",
		Long: `Manage the tokens and API keys ftlbot keeps in its credential store.

Flags and environment variables take precedence over stored values.

Examples:
  ftlbot auth login                         Interactive service selection
  ftlbot auth login --service telegram      Store the bot token
  ftlbot auth login --service github        Store the GitHub token
  ftlbot auth logout --service groq         Remove the Groq API key
  ftlbot auth logout                        Remove all credentials
  ftlbot auth list                          Show all stored credentials`,
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthListCmd(),
	)

	return cmd
}

// prompt prints label and returns the next trimmed line of input.
func prompt(sc *bufio.Scanner, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("no input received")
	}
	return strings.TrimSpace(sc.Text()), nil
}

// chooseService resolves a menu answer given by number or ID.
func chooseService(choice string) (string, bool) {
	for i, s := range services {
		if choice == fmt.Sprintf("%d", i+1) || choice == s.id {
			return s.id, true
		}
	}
	return "", false
}

func newAuthLoginCmd() *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a token or API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := bufio.NewScanner(os.Stdin)

			if service == "" {
				fmt.Fprintf(os.Stderr, "\n%s\n\n", blue("Select service:"))
				for i, s := range services {
					fmt.Fprintf(os.Stderr, "  %d. %s %s\n", i+1, yellow(fmt.Sprintf("%-14s", s.id)), s.desc)
				}
				fmt.Fprintln(os.Stderr)
				choice, err := prompt(sc, "Enter choice (number or name): ")
				if err != nil {
					return err
				}
				id, ok := chooseService(choice)
				if !ok {
					return fmt.Errorf("invalid choice, use: ftlbot auth login --service SERVICE")
				}
				service = id
			}
			if !knownService(service) {
				return fmt.Errorf("unknown service %q, run 'ftlbot auth list' for options", service)
			}

			var baseURL string
			if service == translate.ProviderCustomOpenAI {
				var err error
				baseURL, err = prompt(sc, "Endpoint URL (e.g. http://localhost:8080/v1): ")
				if err != nil {
					return err
				}
				if baseURL == "" {
					return fmt.Errorf("endpoint URL is required")
				}
			}
			key, err := prompt(sc, "Token or API key: ")
			if err != nil {
				return err
			}
			if key == "" && baseURL == "" {
				return fmt.Errorf("empty key")
			}

			if baseURL != "" {
				err = settings.SetKeyWithBaseURL(service, key, baseURL)
			} else {
				err = settings.SetKey(service, key)
			}
			if err != nil {
				return fmt.Errorf("saving credentials: %w", err)
			}
			logSuccess("%s credentials saved to %s", service, settings.FilePath())
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "Service to authenticate")
	_ = cmd.RegisterFlagCompletionFunc("service", serviceCompletion)
	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Long: `Remove stored credentials for one or all services.

If --service is not specified, credentials for ALL services are removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if service == "" {
				if err := settings.RemoveAll(); err != nil {
					return err
				}
				logSuccess("All stored credentials removed")
				return nil
			}
			if !knownService(service) {
				return fmt.Errorf("unknown service %q, run 'ftlbot auth list' for options", service)
			}
			if err := settings.Remove(service); err != nil {
				return fmt.Errorf("removing %s credentials: %w", service, err)
			}
			logSuccess("%s credentials removed", service)
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "Service to logout (default: all)")
	_ = cmd.RegisterFlagCompletionFunc("service", serviceCompletion)
	return cmd
}

// credentialStatus describes how the secret of service id is provided.
func credentialStatus(id string) string {
	if env := settings.EnvVarFor(id); env != "" {
		if v := os.Getenv(env); v != "" {
			return fmt.Sprintf("%s (%s: %s)", green("from environment"), env, settings.MaskKey(v))
		}
	}
	entry := settings.Get(id)
	switch {
	case entry != nil && entry.Key != "":
		status := fmt.Sprintf("%s (key: %s)", green("configured"), settings.MaskKey(entry.Key))
		if entry.BaseURL != "" {
			status += fmt.Sprintf("\n  %14s endpoint: %s", "", entry.BaseURL)
		}
		return status
	case entry != nil && entry.BaseURL != "":
		return fmt.Sprintf("%s (no key)\n  %14s endpoint: %s", green("configured"), "", entry.BaseURL)
	default:
		return red("not configured")
	}
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored credentials and status",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stderr, "\n%s\n", blue("Stored Credentials"))
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
			for _, s := range services {
				fmt.Fprintf(os.Stderr, "  %-14s %s\n", s.id, credentialStatus(s.id))
			}
			fmt.Fprintf(os.Stderr, "\n  File: %s\n\n", settings.FilePath())
		},
	}
}
