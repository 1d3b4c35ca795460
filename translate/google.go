package translate

import (
	"context"
	"fmt"
	"time"

	"github.com/bregydoc/gtranslate"
)

// googleTranslator uses the free Google Translate web endpoint with
// automatic source language detection.
type googleTranslator struct {
	timeout time.Duration
	call    func(text string, params gtranslate.TranslationParams) (string, error)
}

func (g *googleTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	call := g.call
	if call == nil {
		call = gtranslate.TranslateWithParams
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	type result struct {
		text string
		err  error
	}
	// The library has no context support; the buffered channel lets the
	// call finish in the background after a cancellation.
	done := make(chan result, 1)
	go func() {
		out, err := call(text, gtranslate.TranslationParams{From: "auto", To: targetLang})
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: Google Translate: %w", ErrTranslation, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("%w: Google Translate: %w", ErrTranslation, r.err)
		}
		return r.text, nil
	}
}
