package translate

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// WithRateLimit returns a Translator that waits for limiter before every
// call to tr. Callers share one limiter to stay under a provider quota
// across sessions.
func WithRateLimit(tr Translator, limiter *rate.Limiter) Translator {
	if limiter == nil {
		return tr
	}
	return TranslatorFunc(func(ctx context.Context, text, targetLang string) (string, error) {
		if err := limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limiter: %w", ErrTranslation, err)
		}
		return tr.Translate(ctx, text, targetLang)
	})
}

// NewLimiter allows perMinute requests per minute with bursts of burst.
// Zero perMinute disables limiting.
func NewLimiter(perMinute, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}
