package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/minios-linux/ftlbot/config"
	"github.com/minios-linux/ftlbot/publish"
	"github.com/minios-linux/ftlbot/translate"
	"github.com/minios-linux/ftlbot/workflow"
)

func TestYes(t *testing.T) {
	for _, in := range []string{"y", "Y\n", " yes ", "да", "Д"} {
		if !yes(in) {
			t.Errorf("yes(%q) = false, want true", in)
		}
	}
	for _, in := range []string{"", "n", "no", "yep", "\n"} {
		if yes(in) {
			t.Errorf("yes(%q) = true, want false", in)
		}
	}
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	var got []string
	for _, c := range root.Commands() {
		got = append(got, c.Name())
	}
	for _, want := range []string{"auth", "bot", "run", "translate", "version"} {
		found := false
		for _, name := range got {
			if name == want {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("root command misses %q, have %v", want, got)
		}
	}
	if f := root.PersistentFlags().Lookup("config"); f == nil || f.DefValue != config.FileName {
		t.Fatalf("--config flag = %+v", f)
	}
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	write := func(rel string) string {
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("a = b\n"), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	a := write("locale/a.ftl")
	b := write("locale/sub/b.ftl")
	write("locale/readme.txt")
	single := write("other.ftl")

	got, err := expandPaths([]string{single, filepath.Join(dir, "locale"), a}, ".ftl")
	if err != nil {
		t.Fatalf("expandPaths() error: %v", err)
	}
	want := []string{single, a, b}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expandPaths() = %v, want %v", got, want)
	}

	if _, err := expandPaths([]string{filepath.Join(dir, "missing")}, ".ftl"); err == nil {
		t.Fatalf("expandPaths(missing) should fail")
	}
}

func TestServices(t *testing.T) {
	if id, ok := chooseService("1"); !ok || id != "telegram" {
		t.Fatalf("chooseService(1) = %q, %v", id, ok)
	}
	if id, ok := chooseService("groq"); !ok || id != "groq" {
		t.Fatalf("chooseService(groq) = %q, %v", id, ok)
	}
	if _, ok := chooseService("42"); ok {
		t.Fatalf("chooseService(42) should fail")
	}
	if !knownService("github") || knownService("google") {
		t.Fatalf("knownService mismatch")
	}
}

func TestCredentialStatus(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("GITHUB_TOKEN", "")

	if got := credentialStatus("github"); !strings.Contains(got, "not configured") {
		t.Fatalf("credentialStatus() = %q, want not configured", got)
	}
	t.Setenv("GITHUB_TOKEN", "ghp_abcdefghijkl")
	got := credentialStatus("github")
	if !strings.Contains(got, "GITHUB_TOKEN") || !strings.Contains(got, "ghp_...ijkl") {
		t.Fatalf("credentialStatus() = %q", got)
	}
}

func TestTerminalConfirm(t *testing.T) {
	var out bytes.Buffer
	term := newTerminal(strings.NewReader("y\n"), &out, false)
	ctx := context.Background()

	if err := term.Notify(ctx, "Cloning repository..."); err != nil {
		t.Fatal(err)
	}
	if term.pending() {
		t.Fatalf("pending() before a question")
	}
	if err := term.AskConfirmation(ctx, "Translate?"); err != nil {
		t.Fatal(err)
	}
	if !term.pending() {
		t.Fatalf("pending() = false after AskConfirmation")
	}
	if !term.confirm() {
		t.Fatalf("confirm() = false for y")
	}
	if term.pending() {
		t.Fatalf("pending() after confirm")
	}
	if !strings.Contains(out.String(), "Cloning repository...") || !strings.Contains(out.String(), "Translate?") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestTerminalConfirmEOFAndAssumeYes(t *testing.T) {
	var out bytes.Buffer
	if newTerminal(strings.NewReader(""), &out, false).confirm() {
		t.Fatalf("confirm() on EOF should be false")
	}
	if !newTerminal(strings.NewReader("n\n"), &out, true).confirm() {
		t.Fatalf("confirm() with assumeYes should be true")
	}
}

func TestTerminalProgress(t *testing.T) {
	var out bytes.Buffer
	term := newTerminal(strings.NewReader(""), &out, false)
	ctx := context.Background()
	term.Progress(ctx, 1, 2)
	if term.bar == nil {
		t.Fatalf("progress bar not started")
	}
	term.Progress(ctx, 2, 2)
	if term.bar != nil {
		t.Fatalf("progress bar not finished on the last file")
	}
	if out.Len() == 0 {
		t.Fatalf("no progress output")
	}
}

func TestReportResults(t *testing.T) {
	ok := translate.FileResult{Path: "a.ftl"}
	ok.Changed = true
	if err := reportResults([]translate.FileResult{ok}); err != nil {
		t.Fatalf("reportResults() error: %v", err)
	}
	bad := translate.FileResult{Path: "b.ftl", Err: errors.New("boom")}
	err := reportResults([]translate.FileResult{ok, bad})
	if err == nil || !strings.Contains(err.Error(), "1 file(s)") {
		t.Fatalf("reportResults() = %v", err)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("GITHUB_TOKEN", "")
	cfg := config.Default()
	cfg.Workspace.Dir = filepath.Join(t.TempDir(), "work")
	return cfg
}

func TestBuildDepsDirect(t *testing.T) {
	cfg := testConfig(t)
	cfg.Publish.Strategy = config.StrategyDirect
	cfg.Workspace.Naming = config.NamingUUID

	deps, err := buildDeps(cfg)
	if err != nil {
		t.Fatalf("buildDeps() error: %v", err)
	}
	if _, ok := deps.Publisher.(publish.DirectPush); !ok {
		t.Fatalf("publisher = %T, want DirectPush", deps.Publisher)
	}
	if _, ok := deps.Namer.(workflow.UUIDNamer); !ok {
		t.Fatalf("namer = %T, want UUIDNamer", deps.Namer)
	}
	if _, err := os.Stat(cfg.Workspace.Dir); err != nil {
		t.Fatalf("workspace not created: %v", err)
	}
	if deps.Settings.Branch != "translation-bot-russian" || deps.Settings.Language != "ru" {
		t.Fatalf("settings = %+v", deps.Settings)
	}
}

func TestBuildDepsFork(t *testing.T) {
	cfg := testConfig(t)
	if _, err := buildDeps(cfg); !errors.Is(err, publish.ErrNoToken) {
		t.Fatalf("buildDeps() without token = %v, want ErrNoToken", err)
	}

	cfg.Publish.GithubToken = "ghp_test"
	cfg.Publish.Organization = "translators"
	deps, err := buildDeps(cfg)
	if err != nil {
		t.Fatalf("buildDeps() error: %v", err)
	}
	f, ok := deps.Publisher.(*publish.ForkPush)
	if !ok {
		t.Fatalf("publisher = %T, want *ForkPush", deps.Publisher)
	}
	if f.Organization != "translators" || f.Timeout != cfg.Timeouts.ForkAPI {
		t.Fatalf("fork publisher = %+v", f)
	}
}

func TestBuildTranslatorRequiresKey(t *testing.T) {
	cfg := testConfig(t)
	t.Setenv("GROQ_API_KEY", "")
	cfg.Provider.ID = translate.ProviderGroq
	if _, err := buildTranslator(cfg); err == nil {
		t.Fatalf("buildTranslator(groq) without key should fail")
	}
	cfg.Provider.APIKey = "gsk_test"
	if _, err := buildTranslator(cfg); err != nil {
		t.Fatalf("buildTranslator(groq) error: %v", err)
	}
}
