package workflow

import (
	"errors"
	"fmt"

	"github.com/minios-linux/ftlbot/ftlfile"
	"github.com/minios-linux/ftlbot/translate"
)

var (
	// ErrBusy is returned for an event that arrives while a run executes.
	ErrBusy = errors.New("session is busy")
	// ErrNothingToConfirm is returned by Confirm outside AwaitingConfirmation.
	ErrNothingToConfirm = errors.New("nothing to confirm")
)

// Kind classifies workflow failures.
type Kind int

const (
	// KindInvalidInput is a rejected URL. No run exists yet.
	KindInvalidInput Kind = iota + 1
	// KindAcquisition covers clone failures and a missing required
	// directory or helper payload.
	KindAcquisition
	// KindSubprocess is a missing helper script or a non-zero exit.
	KindSubprocess
	// KindParse is a resource file that could not be read or parsed.
	KindParse
	// KindTranslation is a resource file whose translation failed.
	KindTranslation
	// KindPublication is a failed fork or push. It is a soft failure.
	KindPublication
	// KindNotification is a front end that could not deliver a message
	// the run depends on, such as the confirmation prompt.
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindAcquisition:
		return "acquisition failure"
	case KindSubprocess:
		return "subprocess failure"
	case KindParse:
		return "parse failure"
	case KindTranslation:
		return "translation failure"
	case KindPublication:
		return "publication failure"
	case KindNotification:
		return "notification failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a categorized workflow failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or 0 when err is not a workflow error.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return 0
}

// fileError categorizes a failed file of a translation batch.
func fileError(fr translate.FileResult) *Error {
	if fr.Err == nil {
		return nil
	}
	var syn *ftlfile.SyntaxError
	if errors.As(fr.Err, &syn) {
		return &Error{Kind: KindParse, Err: fmt.Errorf("%s: %w", fr.Path, fr.Err)}
	}
	return &Error{Kind: KindTranslation, Err: fmt.Errorf("%s: %w", fr.Path, fr.Err)}
}
