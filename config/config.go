// Package config loads the ftlbot.yaml configuration file.
//
// Values are resolved in three layers: built-in defaults, the YAML file
// (when present) and FTLBOT_* environment variables. The result is
// validated before use. Secrets (bot token, GitHub token, provider API key)
// are never read from the file; they come from the environment, command-line
// flags or the credentials store.
//
// Example ftlbot.yaml:
//
//	language: ru
//	workspace:
//	  dir: /var/lib/ftlbot
//	  naming: counter
//	provider:
//	  id: google
//	  requests_per_minute: 120
//	publish:
//	  strategy: fork
//	  branch: translation-bot-russian
//	timeouts:
//	  clone: 10m
//	  translate: 30s
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// FileName is the default config file name.
const FileName = "ftlbot.yaml"

// EnvPrefix prefixes every environment override (FTLBOT_LANGUAGE,
// FTLBOT_TIMEOUTS_CLONE, ...). Unprefixed variables are never read.
const EnvPrefix = "FTLBOT"

// Publication strategies.
const (
	StrategyFork   = "fork"
	StrategyDirect = "direct"
)

// Scratch directory naming schemes.
const (
	NamingCounter = "counter"
	NamingUUID    = "uuid"
)

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

// Config is the top-level configuration.
type Config struct {
	// Language is the translation target language code.
	Language string `yaml:"language" split_words:"true" validate:"required"`
	// UILanguage selects the language of user-facing messages ("" = detect).
	UILanguage string `yaml:"ui_language" split_words:"true"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" split_words:"true" validate:"oneof=debug info warn error"`
	// LogFormat is text or json.
	LogFormat string `yaml:"log_format" split_words:"true" validate:"oneof=text json"`
	// AllowedPrefixes are the accepted repository URL prefixes.
	AllowedPrefixes []string `yaml:"allowed_prefixes" split_words:"true" validate:"min=1,dive,required"`

	Workspace Workspace `yaml:"workspace" split_words:"true"`
	Layout    Layout    `yaml:"layout" split_words:"true"`
	Provider  Provider  `yaml:"provider" split_words:"true"`
	Publish   Publish   `yaml:"publish" split_words:"true"`
	Timeouts  Timeouts  `yaml:"timeouts" split_words:"true"`
	Telegram  Telegram  `yaml:"telegram" split_words:"true"`
}

// Workspace describes where working copies are created.
type Workspace struct {
	// Dir is the parent directory of per-session scratch directories.
	Dir string `yaml:"dir" split_words:"true" validate:"required"`
	// Naming is "counter" (project_1, project_2, ...) or "uuid".
	Naming string `yaml:"naming" split_words:"true" validate:"oneof=counter uuid"`
}

// Layout describes the expected structure of a cloned repository. All
// paths are relative to the working copy root, except HelperPayload.
type Layout struct {
	// RequiredDir must exist in the working copy.
	RequiredDir string `yaml:"required_dir" split_words:"true" validate:"required"`
	// HelperPayload is the local directory copied into the working copy.
	HelperPayload string `yaml:"helper_payload" split_words:"true" validate:"required"`
	// HelperDest is where the payload is staged.
	HelperDest string `yaml:"helper_dest" split_words:"true" validate:"required"`
	// HelperScript is the script base name; ".sh" or ".bat" is appended.
	HelperScript string `yaml:"helper_script" split_words:"true" validate:"required"`
	// LocaleDir is searched for resource files.
	LocaleDir string `yaml:"locale_dir" split_words:"true" validate:"required"`
	// Extension is the resource file extension.
	Extension string `yaml:"extension" split_words:"true" validate:"required,startswith=."`
}

// Provider selects and tunes the translation provider.
type Provider struct {
	ID      string `yaml:"id" split_words:"true" validate:"oneof=google gemini groq custom-openai ollama"`
	BaseURL string `yaml:"base_url" split_words:"true" validate:"omitempty,url"`
	Model   string `yaml:"model" split_words:"true"`
	Proxy   string `yaml:"proxy" split_words:"true" validate:"omitempty,url"`
	APIKey  string `yaml:"-" split_words:"true"`
	// Prompt overrides the system prompt of AI providers.
	Prompt     string `yaml:"prompt" split_words:"true"`
	MaxRetries int    `yaml:"max_retries" split_words:"true" validate:"gte=0"`
	// RequestsPerMinute caps translation calls across all sessions (0 = no cap).
	RequestsPerMinute int `yaml:"requests_per_minute" split_words:"true" validate:"gte=0"`
	Burst             int `yaml:"burst" split_words:"true" validate:"gte=0"`
}

// Publish controls how translated files are published.
type Publish struct {
	// Strategy is "fork" (fork via the API, push to the fork) or "direct"
	// (push a branch to the cloned remote; needs write access).
	Strategy      string `yaml:"strategy" split_words:"true" validate:"oneof=fork direct"`
	Branch        string `yaml:"branch" split_words:"true" validate:"required"`
	CommitMessage string `yaml:"commit_message" split_words:"true" validate:"required"`
	AuthorName    string `yaml:"author_name" split_words:"true"`
	AuthorEmail   string `yaml:"author_email" split_words:"true" validate:"omitempty,email"`
	// Organization receives the fork instead of the token owner.
	Organization string `yaml:"organization" split_words:"true"`
	// APIBaseURL points the fork API at GitHub Enterprise.
	APIBaseURL  string `yaml:"api_base_url" split_words:"true" validate:"omitempty,url"`
	GithubToken string `yaml:"-" split_words:"true"`
}

// Timeouts bound every external call. Zero disables a timeout.
type Timeouts struct {
	Clone     time.Duration `yaml:"clone" split_words:"true" validate:"gte=0"`
	Helper    time.Duration `yaml:"helper" split_words:"true" validate:"gte=0"`
	Push      time.Duration `yaml:"push" split_words:"true" validate:"gte=0"`
	ForkAPI   time.Duration `yaml:"fork_api" split_words:"true" validate:"gte=0"`
	Translate time.Duration `yaml:"translate" split_words:"true" validate:"gte=0"`
}

// Telegram configures the bot front end.
type Telegram struct {
	Token string `yaml:"-" split_words:"true"`
	// APIEndpoint overrides the Bot API endpoint format string.
	APIEndpoint string `yaml:"api_endpoint" split_words:"true"`
	// PollTimeout is the long polling timeout in seconds.
	PollTimeout int  `yaml:"poll_timeout" split_words:"true" validate:"gte=0"`
	Debug       bool `yaml:"debug" split_words:"true"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Language:        "ru",
		LogLevel:        "info",
		LogFormat:       "text",
		AllowedPrefixes: []string{"https://github.com/", "git@github.com:"},
		Workspace: Workspace{
			Dir:    ".",
			Naming: NamingCounter,
		},
		Layout: Layout{
			RequiredDir:   "Tools",
			HelperPayload: "temp_api",
			HelperDest:    "Tools/ss14_ru",
			HelperScript:  "translation",
			LocaleDir:     "Resources/Locale/ru-RU/datasets",
			Extension:     ".ftl",
		},
		Provider: Provider{
			ID:         "google",
			MaxRetries: 3,
		},
		Publish: Publish{
			Strategy:      StrategyFork,
			Branch:        "translation-bot-russian",
			CommitMessage: "Russian translation by Translation Bot",
			AuthorName:    "Translation Bot",
		},
		Timeouts: Timeouts{
			Clone:     10 * time.Minute,
			Helper:    10 * time.Minute,
			Push:      5 * time.Minute,
			ForkAPI:   time.Minute,
			Translate: 30 * time.Second,
		},
		Telegram: Telegram{
			PollTimeout: 60,
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads path on top of the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes the non-secret part of the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
