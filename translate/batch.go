package translate

import (
	"context"
	"log/slog"

	"github.com/minios-linux/ftlbot/ftlfile"
)

// FileResult is the outcome of translating one file.
type FileResult struct {
	Path string
	Result
	// Err is set when the file could not be read, parsed or written. The
	// file is left as it was.
	Err error
}

// BatchOptions controls Files.
type BatchOptions struct {
	// Language is the target language code (e.g., "ru").
	Language string
	// OnFile is called after each file with the number of files processed
	// so far.
	OnFile func(done, total int, r FileResult)
	// Logger receives per-file records; nil uses slog.Default.
	Logger *slog.Logger
}

// File translates the Fluent file at path in place. The file is written
// only when at least one text element changed.
func File(ctx context.Context, path string, tr Translator, targetLang string) FileResult {
	fr := FileResult{Path: path}
	res, err := ftlfile.ParseFile(path)
	if err != nil {
		fr.Err = err
		return fr
	}
	fr.Result, err = Resource(ctx, res, tr, targetLang)
	if err != nil {
		fr.Err = err
		return fr
	}
	if fr.Changed {
		if err := res.WriteFile(path); err != nil {
			fr.Err = err
		}
	}
	return fr
}

// Files translates paths one after another. A failure in one file is
// recorded in its FileResult and does not stop the batch; only ctx
// cancellation does, in which case the results so far are returned with
// ctx.Err().
func Files(ctx context.Context, paths []string, tr Translator, opts BatchOptions) ([]FileResult, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	results := make([]FileResult, 0, len(paths))
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		fr := File(ctx, path, tr, opts.Language)
		switch {
		case fr.Err != nil:
			log.Warn("file not translated", "path", path, "error", fr.Err)
		case fr.Failed > 0:
			log.Warn("file partially translated", "path", path,
				"translated", fr.Translated, "failed", fr.Failed, "error", fr.FirstFailure)
		default:
			log.Info("file processed", "path", path, "translated", fr.Translated, "changed", fr.Changed)
		}
		results = append(results, fr)
		if opts.OnFile != nil {
			opts.OnFile(i+1, len(paths), fr)
		}
	}
	return results, nil
}

// CountChanged returns how many files were rewritten without error.
func CountChanged(results []FileResult) int {
	n := 0
	for _, r := range results {
		if r.Err == nil && r.Changed {
			n++
		}
	}
	return n
}
