package translate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/minios-linux/ftlbot/ftlfile"
)

// Result summarizes the translation of one document.
type Result struct {
	// Changed is true when at least one text element was replaced.
	Changed bool
	// Texts is the number of non-blank text elements sent to the translator.
	Texts int
	// Translated is the number of text elements that were replaced.
	Translated int
	// Failed is the number of text elements left untouched because the
	// translator returned an error.
	Failed int
	// FirstFailure is the first translator error, if any.
	FirstFailure error
}

// Resource translates every text element reachable from the messages of
// res, including text inside select expression variants, and replaces it
// in place. Terms, comments and junk are not visited; placeables are never
// modified. Elements are visited depth-first in document order, one
// translator call per element.
//
// A failed call leaves its element untouched and the walk continues. The
// walk stops only when ctx is done.
func Resource(ctx context.Context, res *ftlfile.Resource, tr Translator, targetLang string) (Result, error) {
	w := &walker{ctx: ctx, tr: tr, lang: targetLang}
	for _, e := range res.Entries {
		m, ok := e.(*ftlfile.Message)
		if !ok {
			continue
		}
		if m.Value != nil {
			if err := w.pattern(m.Value); err != nil {
				return w.res, err
			}
		}
		for _, a := range m.Attributes {
			if err := w.pattern(a.Value); err != nil {
				return w.res, err
			}
		}
	}
	return w.res, nil
}

type walker struct {
	ctx  context.Context
	tr   Translator
	lang string
	res  Result
}

func (w *walker) pattern(p *ftlfile.Pattern) error {
	for _, el := range p.Elements {
		switch el := el.(type) {
		case *ftlfile.Text:
			if err := w.text(el); err != nil {
				return err
			}
		case *ftlfile.Placeable:
			if el.Select == nil {
				continue
			}
			for _, v := range el.Select.Variants {
				if err := w.pattern(v.Value); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// text translates the trimmed payload of t and puts the original leading
// and trailing whitespace back around the result.
func (w *walker) text(t *ftlfile.Text) error {
	core := strings.TrimSpace(t.Value)
	if core == "" {
		return nil
	}
	if err := w.ctx.Err(); err != nil {
		return err
	}

	w.res.Texts++
	out, err := w.tr.Translate(w.ctx, core, w.lang)
	if err != nil {
		if ctxErr := w.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		w.res.Failed++
		if w.res.FirstFailure == nil {
			w.res.FirstFailure = err
		}
		slog.Debug("text left untranslated", "text", truncate(core, 80), "error", err)
		return nil
	}

	out = strings.TrimSpace(out)
	if out == "" || out == core {
		return nil
	}
	lead := t.Value[:strings.Index(t.Value, core)]
	trail := t.Value[len(lead)+len(core):]
	t.Value = lead + out + trail
	w.res.Translated++
	w.res.Changed = true
	return nil
}
