// Package workflow drives one translation run per conversation: clone,
// validate, stage and run the helper, discover resource files, wait for
// confirmation, translate, publish and clean up.
//
// Front ends feed two events into a Session (SubmitURL and Confirm) and
// receive status lines through a Notifier. Every run ends in exactly one
// cleanup, whichever way it ends.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/minios-linux/ftlbot/config"
	"github.com/minios-linux/ftlbot/ftlfile"
	"github.com/minios-linux/ftlbot/helper"
	"github.com/minios-linux/ftlbot/i18n"
	"github.com/minios-linux/ftlbot/langmeta"
	"github.com/minios-linux/ftlbot/publish"
	"github.com/minios-linux/ftlbot/translate"
	"github.com/minios-linux/ftlbot/workcopy"
)

// Notifier shows status lines to the user.
type Notifier interface {
	Notify(ctx context.Context, text string) error
	// AskConfirmation shows text with a yes/no choice. The answer arrives
	// later through Session.Confirm.
	AskConfirmation(ctx context.Context, text string) error
}

// ProgressNotifier is implemented by notifiers that can show per-file
// progress during translation.
type ProgressNotifier interface {
	Progress(ctx context.Context, done, total int)
}

// Helper stages, runs and removes the repository preparation tool.
type Helper interface {
	Stage(root string) error
	Run(ctx context.Context, root string) error
	Remove(root string) error
}

// Settings are the per-deployment values a run needs.
type Settings struct {
	AllowedPrefixes []string
	// RequiredDir must exist in the working copy.
	RequiredDir string
	// LocaleDir is searched for files with Extension.
	LocaleDir string
	Extension string
	// Language is the target language code.
	Language string
	// Strategy is config.StrategyFork or config.StrategyDirect.
	Strategy      string
	Branch        string
	CommitMessage string
	AuthorName    string
	AuthorEmail   string
}

// SettingsFromConfig extracts Settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		AllowedPrefixes: cfg.AllowedPrefixes,
		RequiredDir:     cfg.Layout.RequiredDir,
		LocaleDir:       cfg.Layout.LocaleDir,
		Extension:       cfg.Layout.Extension,
		Language:        cfg.Language,
		Strategy:        cfg.Publish.Strategy,
		Branch:          cfg.Publish.Branch,
		CommitMessage:   cfg.Publish.CommitMessage,
		AuthorName:      cfg.Publish.AuthorName,
		AuthorEmail:     cfg.Publish.AuthorEmail,
	}
}

// Deps are the collaborators shared by all sessions. They must be safe
// for concurrent use.
type Deps struct {
	Settings   Settings
	Provider   workcopy.Provider
	Helper     Helper
	Translator translate.Translator
	Publisher  publish.Publisher
	Namer      Namer
	Logger     *slog.Logger
}

// run is the state of one pass from URL to cleanup.
type run struct {
	url     string
	scratch string
	wc      workcopy.WorkingCopy
	files   []string
	cleaned bool
}

// Session is the workflow of one conversation. Sessions share nothing but
// their Deps.
type Session struct {
	deps   Deps
	notify Notifier
	log    *slog.Logger

	mu    sync.Mutex
	state State
	run   *run
}

// NewSession returns an idle session reporting to n.
func NewSession(deps Deps, n Notifier) *Session {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{deps: deps, notify: n, log: log, state: Idle}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Scratch returns the scratch path of the pending run, or "".
func (s *Session) Scratch() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return ""
	}
	return s.run.scratch
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	s.log.Debug("state changed", "from", prev, "to", st)
}

func (s *Session) say(ctx context.Context, format string, args ...any) {
	text := format
	if len(args) > 0 {
		text = fmt.Sprintf(format, args...)
	}
	if err := s.notify.Notify(ctx, text); err != nil {
		s.log.Warn("notification failed", "error", err)
	}
}

// SubmitURL starts a run for the repository at text. It returns once the
// run waits for confirmation or has ended. A URL sent while a previous run
// waits for confirmation discards that run.
func (s *Session) SubmitURL(ctx context.Context, text string) error {
	url := strings.TrimSpace(text)

	s.mu.Lock()
	if s.state.Busy() {
		s.mu.Unlock()
		s.say(ctx, i18n.T("A repository is already being processed. Please wait."))
		return ErrBusy
	}
	pending := s.run
	s.run = nil
	s.state = AwaitingURL
	s.mu.Unlock()

	if pending != nil {
		s.log.Info("discarding unconfirmed run", "url", pending.url)
		s.cleanup(pending)
	}

	if !s.allowed(url) {
		s.setState(Idle)
		s.say(ctx, i18n.T("Please provide a valid GitHub repository URL."))
		return &Error{Kind: KindInvalidInput, Err: fmt.Errorf("rejected URL %q", url)}
	}

	r := &run{url: url}
	return s.prepare(ctx, r)
}

func (s *Session) allowed(url string) bool {
	if url == "" || strings.ContainsAny(url, " \t\n") {
		return false
	}
	for _, p := range s.deps.Settings.AllowedPrefixes {
		if strings.HasPrefix(url, p) && len(url) > len(p) {
			return true
		}
	}
	return false
}

// prepare runs Cloning through Discovering.
func (s *Session) prepare(ctx context.Context, r *run) error {
	set := s.deps.Settings

	s.setState(Cloning)
	scratch, err := s.deps.Namer.Next()
	if err != nil {
		return s.fail(ctx, r, KindAcquisition, err, i18n.T("Error: %v"), err)
	}
	r.scratch = scratch
	s.mu.Lock()
	s.run = r
	s.mu.Unlock()

	s.say(ctx, i18n.T("Cloning repository..."))
	wc, err := s.deps.Provider.Acquire(ctx, r.url, scratch)
	if err != nil {
		return s.fail(ctx, r, KindAcquisition, err, i18n.T("Error: could not clone repository: %v"), err)
	}
	r.wc = wc
	root := wc.Root()
	s.log.Info("repository cloned", "url", r.url, "path", root)

	s.setState(Validating)
	if info, err := os.Stat(filepath.Join(root, filepath.FromSlash(set.RequiredDir))); err != nil || !info.IsDir() {
		return s.fail(ctx, r, KindAcquisition, fmt.Errorf("required directory %s missing", set.RequiredDir),
			i18n.T("Error: '%s' directory not found in repository."), set.RequiredDir)
	}

	s.setState(StagingHelper)
	s.say(ctx, i18n.T("Preparing translation helper..."))
	var pe *fs.PathError
	if err := s.deps.Helper.Stage(root); err != nil {
		if errors.Is(err, helper.ErrPayload) && errors.As(err, &pe) {
			return s.fail(ctx, r, KindAcquisition, err,
				i18n.T("Error: '%s' directory not found near the bot."), filepath.Base(pe.Path))
		}
		return s.fail(ctx, r, KindAcquisition, err, i18n.T("Error: %v"), err)
	}

	s.setState(RunningHelper)
	if err := s.deps.Helper.Run(ctx, root); err != nil {
		if errors.Is(err, helper.ErrScript) && errors.As(err, &pe) {
			return s.fail(ctx, r, KindSubprocess, err,
				i18n.T("Error: %s not found in %s."), path.Base(pe.Path), path.Dir(pe.Path))
		}
		return s.fail(ctx, r, KindSubprocess, err, i18n.T("Error: translation helper failed: %v"), err)
	}

	s.setState(Discovering)
	localeDir := filepath.Join(root, filepath.FromSlash(set.LocaleDir))
	files, err := ftlfile.FindFiles(localeDir, set.Extension)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return s.fail(ctx, r, KindAcquisition, err, i18n.T("Error: %v"), err)
	}
	if len(files) == 0 {
		s.say(ctx, i18n.T("No %s files found in %s."), set.Extension, set.LocaleDir)
		s.finish(r, Idle)
		return nil
	}
	r.files = files

	s.setState(AwaitingConfirmation)
	lang := langmeta.Resolve(set.Language).English
	prompt := fmt.Sprintf(i18n.N(
		"Found %d %s file. Translate all strings from English to %s?",
		"Found %d %s files. Translate all strings from English to %s?",
		len(files)), len(files), set.Extension, lang)
	if err := s.notify.AskConfirmation(ctx, prompt); err != nil {
		return s.fail(ctx, r, KindNotification, err, i18n.T("Error: %v"), err)
	}
	s.log.Info("awaiting confirmation", "url", r.url, "files", len(files))
	return nil
}

// Confirm answers the pending confirmation. yes runs the translation and
// publication; no cancels the run. A publication failure is reported to
// the user and returned as a KindPublication error; the run still ends.
func (s *Session) Confirm(ctx context.Context, yes bool) error {
	s.mu.Lock()
	r := s.run
	if s.state != AwaitingConfirmation || r == nil {
		s.mu.Unlock()
		s.say(ctx, i18n.T("There is nothing to confirm."))
		return ErrNothingToConfirm
	}
	if !yes {
		s.run = nil
		s.state = Idle
		s.mu.Unlock()
		s.cleanup(r)
		s.say(ctx, i18n.T("Operation cancelled."))
		return nil
	}
	s.state = Translating
	s.mu.Unlock()

	return s.translate(ctx, r)
}

func (s *Session) translate(ctx context.Context, r *run) error {
	set := s.deps.Settings
	root := r.wc.Root()

	s.say(ctx, i18n.T("Starting translation..."))
	progress, _ := s.notify.(ProgressNotifier)
	results, batchErr := translate.Files(ctx, r.files, s.deps.Translator, translate.BatchOptions{
		Language: set.Language,
		Logger:   s.log,
		OnFile: func(done, total int, fr translate.FileResult) {
			if werr := fileError(fr); werr != nil {
				s.log.Warn("file skipped", "kind", werr.Kind, "error", werr.Err)
			}
			if progress != nil {
				progress.Progress(ctx, done, total)
			}
		},
	})

	// The helper must never reach the published branch.
	removeErr := s.deps.Helper.Remove(root)

	if batchErr != nil {
		return s.fail(ctx, r, KindTranslation, batchErr, i18n.T("Error during translation: %v"), batchErr)
	}
	if removeErr != nil {
		return s.fail(ctx, r, KindSubprocess, removeErr, i18n.T("Error: %v"), removeErr)
	}

	changed := translate.CountChanged(results)
	failed := 0
	for _, fr := range results {
		if fr.Err != nil {
			failed++
		}
	}
	s.log.Info("translation finished", "files", len(results), "changed", changed, "failed", failed)
	if failed > 0 {
		s.say(ctx, i18n.N("%d file could not be translated.", "%d files could not be translated.", failed), failed)
	}
	if changed == 0 {
		s.say(ctx, i18n.T("No translations were made."))
		s.finish(r, Idle)
		return nil
	}

	s.setState(Publishing)
	fork := set.Strategy != config.StrategyDirect
	if fork {
		s.say(ctx, i18n.N("Successfully translated %d file. Creating fork...",
			"Successfully translated %d files. Creating fork...", changed), changed)
	} else {
		s.say(ctx, i18n.N("Successfully translated %d file. Pushing branch...",
			"Successfully translated %d files. Pushing branch...", changed), changed)
	}

	url, err := s.deps.Publisher.Publish(ctx, publish.Request{
		WorkingCopy: r.wc,
		SourceURL:   r.url,
		Branch:      set.Branch,
		Message:     set.CommitMessage,
		AuthorName:  set.AuthorName,
		AuthorEmail: set.AuthorEmail,
	})
	if err != nil {
		s.log.Warn("publication failed", "url", r.url, "error", err)
		s.say(ctx, i18n.T("Translation complete but failed to publish. You'll need to manually create a fork and push changes."))
		s.finish(r, Done)
		return &Error{Kind: KindPublication, Err: err}
	}

	s.log.Info("published", "url", url)
	if fork {
		s.say(ctx, i18n.T("Translation complete! Here's your fork: %s\nThe original repository was not modified."), url)
	} else {
		s.say(ctx, i18n.T("Translation complete! Changes pushed to: %s"), url)
	}
	s.finish(r, Done)
	return nil
}

// fail reports a hard failure, ends the run in Failed and returns the
// categorized error.
func (s *Session) fail(ctx context.Context, r *run, kind Kind, err error, format string, args ...any) error {
	s.log.Error("run failed", "url", r.url, "kind", kind, "error", err)
	s.say(ctx, format, args...)
	s.finish(r, Failed)
	return &Error{Kind: kind, Err: err}
}

// finish cleans r up and moves to the terminal state st.
func (s *Session) finish(r *run, st State) {
	s.cleanup(r)
	s.mu.Lock()
	if s.run == r {
		s.run = nil
	}
	s.mu.Unlock()
	s.setState(st)
}

// Close discards a pending run, if any. It is safe to call repeatedly.
// A run that is already translating is left to finish on its own.
func (s *Session) Close() {
	s.mu.Lock()
	r := s.run
	if r == nil || s.state.Busy() {
		s.mu.Unlock()
		return
	}
	// Detach before unlocking so a concurrent Confirm finds nothing.
	s.run = nil
	s.state = Idle
	s.mu.Unlock()
	s.cleanup(r)
}

// cleanup releases everything r holds. It runs at most once per run;
// failures are logged and never returned.
func (s *Session) cleanup(r *run) {
	s.mu.Lock()
	if r.cleaned {
		s.mu.Unlock()
		return
	}
	r.cleaned = true
	s.mu.Unlock()

	var errs *multierror.Error
	if r.wc != nil {
		errs = multierror.Append(errs, r.wc.Release())
	}
	if r.scratch != "" {
		if err := os.RemoveAll(r.scratch); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		s.log.Warn("cleanup incomplete", "path", r.scratch, "error", err)
		return
	}
	s.log.Debug("cleaned up", "path", r.scratch)
}
