// Package translate turns English text into the target language using one
// of several machine translation providers: the free Google Translate
// endpoint, Google AI (Gemini), Groq, Ollama or any OpenAI-compatible API.
//
// Every provider is exposed as a Translator that translates one string per
// call. Resource and Files apply a Translator to Fluent documents.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jpillora/backoff"

	"github.com/minios-linux/ftlbot/langmeta"
)

// ---------------------------------------------------------------------------
// Provider IDs
// ---------------------------------------------------------------------------

const (
	ProviderGoogle       = "google"
	ProviderGemini       = "gemini"
	ProviderGroq         = "groq"
	ProviderCustomOpenAI = "custom-openai"
	ProviderOllama       = "ollama"
)

// ErrTranslation wraps every failure reported by a provider.
var ErrTranslation = errors.New("translation failed")

// Translator translates a single piece of text into targetLang. The source
// language is detected by the provider.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// TranslatorFunc adapts a function to the Translator interface.
type TranslatorFunc func(ctx context.Context, text, targetLang string) (string, error)

// Translate calls f.
func (f TranslatorFunc) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return f(ctx, text, targetLang)
}

// ---------------------------------------------------------------------------
// Provider configuration
// ---------------------------------------------------------------------------

// Provider holds the configuration for a translation service.
type Provider struct {
	// ID is the provider identifier (google, gemini, groq, etc.).
	ID string
	// Name is the display name.
	Name string
	// BaseURL is the API base URL.
	BaseURL string
	// APIKey is the authentication key (empty for local services).
	APIKey string
	// Model is the model identifier.
	Model string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout bounds a single request attempt. Waits between retries are
	// not counted.
	Timeout time.Duration
}

// DefaultProviders returns the pre-configured provider definitions.
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		ProviderGoogle: {
			ID:      ProviderGoogle,
			Name:    "Google Translate",
			Timeout: 30 * time.Second,
		},
		ProviderGemini: {
			ID:      ProviderGemini,
			Name:    "Google AI (Gemini)",
			BaseURL: "https://generativelanguage.googleapis.com",
			Model:   "gemini-2.0-flash",
			Timeout: 60 * time.Second,
		},
		ProviderGroq: {
			ID:      ProviderGroq,
			Name:    "Groq",
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "llama-3.3-70b-versatile",
			Timeout: 60 * time.Second,
		},
		ProviderCustomOpenAI: {
			ID:      ProviderCustomOpenAI,
			Name:    "Custom OpenAI",
			Timeout: 60 * time.Second,
		},
		ProviderOllama: {
			ID:      ProviderOllama,
			Name:    "Ollama",
			BaseURL: "http://localhost:11434/v1",
			Timeout: 120 * time.Second,
		},
	}
}

// RequiresAPIKey reports whether the provider cannot work without a key.
func (p Provider) RequiresAPIKey() bool {
	switch p.ID {
	case ProviderGemini, ProviderGroq:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options controls how a Translator is built.
type Options struct {
	// Provider is the provider configuration.
	Provider Provider
	// MaxRetries is the maximum number of retries on rate limits and server
	// errors. Default: 3.
	MaxRetries int
	// SystemPrompt overrides the default system prompt of AI providers.
	SystemPrompt string
	// Logger receives debug output; nil discards it.
	Logger *slog.Logger
}

func (o *Options) effectiveMaxRetries() int {
	if o.MaxRetries > 0 {
		return o.MaxRetries
	}
	return 3
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// DefaultSystemPrompt is sent to AI providers. {{targetLang}} is replaced
// with the English name of the target language.
const DefaultSystemPrompt = `You are a professional translator localizing the video game Space Station 14.
Translate the text given by the user from English into {{targetLang}}.

Rules:
- Reply with the translation only: no quotes, no explanations, no notes.
- Keep markup tags such as [color=red], [/color], [bold] and [head=2] unchanged.
- Keep leading and trailing punctuation, numbers and line breaks.
- Keep proper names of in-game entities only when they have no established translation.
- If the text is already in {{targetLang}} or cannot be translated, return it unchanged.`

func resolvePrompt(prompt, lang string) string {
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	return strings.ReplaceAll(prompt, "{{targetLang}}", langmeta.Resolve(lang).English)
}

// New returns a Translator for opts.Provider.
func New(opts Options) (Translator, error) {
	prov := opts.Provider
	if prov.ID == "" {
		prov.ID = ProviderGoogle
	}
	if def, ok := DefaultProviders()[prov.ID]; ok {
		if prov.Name == "" {
			prov.Name = def.Name
		}
		if prov.BaseURL == "" {
			prov.BaseURL = def.BaseURL
		}
		if prov.Model == "" {
			prov.Model = def.Model
		}
		if prov.Timeout == 0 {
			prov.Timeout = def.Timeout
		}
	}
	if prov.RequiresAPIKey() && prov.APIKey == "" {
		return nil, fmt.Errorf("provider %s requires an API key", prov.ID)
	}

	switch prov.ID {
	case ProviderGoogle:
		return &googleTranslator{timeout: prov.Timeout}, nil
	case ProviderGemini:
		return newHTTPTranslator(prov, formatGeminiNative, opts), nil
	case ProviderGroq, ProviderOllama:
		return newHTTPTranslator(prov, formatOpenAIChat, opts), nil
	case ProviderCustomOpenAI:
		if prov.BaseURL == "" {
			return nil, fmt.Errorf("provider %s requires a base URL", prov.ID)
		}
		if prov.Model == "" {
			return nil, fmt.Errorf("provider %s requires a model", prov.ID)
		}
		return newHTTPTranslator(prov, formatOpenAIChat, opts), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", prov.ID)
	}
}

// ---------------------------------------------------------------------------
// HTTP client with real proxy support
// ---------------------------------------------------------------------------

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// ---------------------------------------------------------------------------
// HTTP providers
// ---------------------------------------------------------------------------

type apiFormat int

const (
	formatOpenAIChat   apiFormat = iota // OpenAI chat/completions
	formatGeminiNative                  // Google Gemini generateContent
)

type httpTranslator struct {
	prov       Provider
	format     apiFormat
	client     *http.Client
	prompt     string
	maxRetries int
	log        *slog.Logger
}

func newHTTPTranslator(prov Provider, format apiFormat, opts Options) *httpTranslator {
	return &httpTranslator{
		prov:       prov,
		format:     format,
		client:     makeHTTPClient(prov.Proxy, prov.Timeout),
		prompt:     opts.SystemPrompt,
		maxRetries: opts.effectiveMaxRetries(),
		log:        opts.logger(),
	}
}

func (h *httpTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	out, err := h.call(ctx, resolvePrompt(h.prompt, targetLang), text)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrTranslation, h.prov.Name, err)
	}
	return cleanResponse(out), nil
}

func (h *httpTranslator) call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	endpoint, headers, body, err := buildHTTPRequest(h.prov, systemPrompt, userPrompt, h.format)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	b := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: true}
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("creating request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		h.log.Debug("provider request", "provider", h.prov.Name, "attempt", attempt+1, "endpoint", endpoint)

		resp, err := h.client.Do(req)
		if err != nil {
			if ctx.Err() == nil && attempt < h.maxRetries {
				if err := sleep(ctx, b.Duration()); err != nil {
					return "", err
				}
				continue
			}
			return "", fmt.Errorf("API request failed: %w", err)
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			retryDelay := parseRetryDelay(respBody)
			h.log.Warn("rate limited", "provider", h.prov.Name, "wait", retryDelay, "attempt", attempt+1)
			if attempt < h.maxRetries {
				if err := sleep(ctx, retryDelay); err != nil {
					return "", err
				}
				continue
			}
			return "", fmt.Errorf("rate limited after %d retries: %s", h.maxRetries, truncate(string(respBody), 500))
		}

		if resp.StatusCode != http.StatusOK {
			if attempt < h.maxRetries && resp.StatusCode >= 500 {
				if err := sleep(ctx, b.Duration()); err != nil {
					return "", err
				}
				continue
			}
			return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
		}

		return extractResponseText(respBody)
	}

	return "", fmt.Errorf("exhausted all %d retries", h.maxRetries)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// buildHTTPRequest constructs the endpoint, headers, and body for an HTTP provider.
func buildHTTPRequest(prov Provider, systemPrompt, userPrompt string, format apiFormat) (string, map[string]string, []byte, error) {
	headers := map[string]string{
		"Content-Type": "application/json",
	}

	var endpoint string
	var body []byte
	var err error

	switch format {
	case formatGeminiNative:
		// Google AI: POST /v1beta/models/{model}:generateContent
		endpoint = fmt.Sprintf("%s/v1beta/models/%s:generateContent",
			strings.TrimRight(prov.BaseURL, "/"), prov.Model)
		if prov.APIKey != "" {
			headers["x-goog-api-key"] = prov.APIKey
		}
		body, err = buildGeminiRequest(systemPrompt, userPrompt, 0.2)

	default: // formatOpenAIChat
		baseURL := strings.TrimRight(prov.BaseURL, "/")
		if !strings.HasSuffix(baseURL, "/chat/completions") {
			endpoint = baseURL + "/chat/completions"
		} else {
			endpoint = baseURL
		}
		if prov.APIKey != "" {
			headers["Authorization"] = "Bearer " + prov.APIKey
		}
		body, err = buildOpenAIChatRequest(prov.Model, systemPrompt, userPrompt, 0.2)
	}

	if err != nil {
		return "", nil, nil, err
	}
	return endpoint, headers, body, nil
}

// ---------------------------------------------------------------------------
// Request builders
// ---------------------------------------------------------------------------

func buildOpenAIChatRequest(model, systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	req := struct {
		Model       string  `json:"model"`
		Messages    []msg   `json:"messages"`
		Temperature float64 `json:"temperature"`
		Stream      bool    `json:"stream"`
	}{
		Model: model,
		Messages: []msg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
	}
	return json.Marshal(req)
}

func buildGeminiRequest(systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}
	type genConfig struct {
		Temperature float64 `json:"temperature"`
	}
	req := struct {
		Contents          []content `json:"contents"`
		GenerationConfig  genConfig `json:"generationConfig"`
		SystemInstruction *content  `json:"systemInstruction,omitempty"`
	}{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: userPrompt}}},
		},
		GenerationConfig: genConfig{Temperature: temperature},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}
	return json.Marshal(req)
}

// ---------------------------------------------------------------------------
// Response parsing
// ---------------------------------------------------------------------------

// extractResponseText returns the generated text of an OpenAI chat or
// Gemini response.
func extractResponseText(body []byte) (string, error) {
	var raw struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}

	if raw.Error != nil {
		return "", fmt.Errorf("API error: %s", raw.Error.Message)
	}
	if len(raw.Choices) > 0 {
		return raw.Choices[0].Message.Content, nil
	}
	if len(raw.Candidates) > 0 && len(raw.Candidates[0].Content.Parts) > 0 {
		return raw.Candidates[0].Content.Parts[0].Text, nil
	}
	return "", fmt.Errorf("could not extract text from response: %s", truncate(string(body), 500))
}

var markdownCodeBlock = regexp.MustCompile("(?s)^```[a-z]*\\s*(.*?)\\s*```$")

// cleanResponse strips whitespace and a surrounding code fence.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)
	if m := markdownCodeBlock.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	return s
}

// retryBuffer is added to the delay a provider asks for.
var retryBuffer = 5 * time.Second

// parseRetryDelay extracts the retry delay from a 429 response body.
// Looks for Google's RetryInfo detail with retryDelay field.
// Returns the delay to wait, defaulting to 60s plus retryBuffer.
func parseRetryDelay(body []byte) time.Duration {
	defaultDelay := 60*time.Second + retryBuffer

	var errResp struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil {
		return defaultDelay
	}

	for _, detail := range errResp.Error.Details {
		if strings.Contains(detail.Type, "RetryInfo") && detail.RetryDelay != "" {
			d := strings.TrimSuffix(detail.RetryDelay, "s")
			if secs, err := strconv.ParseFloat(d, 64); err == nil {
				return time.Duration(secs*1000)*time.Millisecond + retryBuffer
			}
		}
	}

	return defaultDelay
}

// truncate shortens s to at most maxLen bytes without splitting a UTF-8
// sequence.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
