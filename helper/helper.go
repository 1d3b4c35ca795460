// Package helper stages and runs the repository preparation script that
// ships next to the bot (the "temp_api" payload).
package helper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Stage and Run report a missing payload or script as an *fs.PathError
// wrapping one of these.
var (
	ErrPayload = errors.New("helper payload not found")
	ErrScript  = errors.New("helper script not found")
)

// waitDelay bounds how long Run waits for output after the script is killed.
const waitDelay = 2 * time.Second

// ExitError reports a script that ran and failed.
type ExitError struct {
	Script string
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s exited with status %d", e.Script, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Script, e.Code, e.Output)
}

// Tool describes the helper payload and where it goes in a working copy.
type Tool struct {
	// Payload is the local directory that is copied.
	Payload string
	// Dest is the staging directory relative to the working copy root.
	Dest string
	// Script is the script base name without extension.
	Script  string
	Timeout time.Duration
	// GOOS selects the script flavor (runtime.GOOS when empty).
	GOOS string
}

// Dir returns the staged directory inside root.
func (t Tool) Dir(root string) string {
	return filepath.Join(root, filepath.FromSlash(t.Dest))
}

// ScriptName returns translation.bat on Windows and translation.sh elsewhere.
func (t Tool) ScriptName() string {
	if t.goos() == "windows" {
		return t.Script + ".bat"
	}
	return t.Script + ".sh"
}

func (t Tool) goos() string {
	if t.GOOS != "" {
		return t.GOOS
	}
	return runtime.GOOS
}

// Stage copies the payload into root. Existing files are overwritten.
func (t Tool) Stage(root string) error {
	info, err := os.Stat(t.Payload)
	if err != nil || !info.IsDir() {
		return &fs.PathError{Op: "stage", Path: t.Payload, Err: ErrPayload}
	}
	if err := copyTree(t.Payload, t.Dir(root)); err != nil {
		return fmt.Errorf("staging helper: %w", err)
	}
	return nil
}

// Run executes the staged script with the staged directory as working
// directory.
func (t Tool) Run(ctx context.Context, root string) error {
	dir := t.Dir(root)
	script := t.ScriptName()
	if _, err := os.Stat(filepath.Join(dir, script)); err != nil {
		return &fs.PathError{Op: "run", Path: path.Join(t.Dest, script), Err: ErrScript}
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	if t.goos() == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", script)
	} else {
		cmd = exec.CommandContext(ctx, "bash", script)
	}
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("running %s: %w", script, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Script: script, Code: exitErr.ExitCode(), Output: tail(out.String(), 500)}
	}
	return fmt.Errorf("running %s: %w", script, err)
}

// Remove deletes the staged directory. A missing directory is not an error.
func (t Tool) Remove(root string) error {
	if err := os.RemoveAll(t.Dir(root)); err != nil {
		return fmt.Errorf("removing helper: %w", err)
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0700)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			// Symlinks and devices are not part of the payload.
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, perm)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
