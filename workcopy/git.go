// Package workcopy manages local working copies of remote repositories
// through the git command-line tool.
package workcopy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNoChanges is returned by CommitAndPush when the working tree is clean.
	ErrNoChanges = errors.New("no changes to commit")
	// ErrReleased is returned when a released working copy is used.
	ErrReleased = errors.New("working copy already released")
	// ErrDestExists is returned by Acquire when dest is not an empty directory.
	ErrDestExists = errors.New("destination already exists")
)

const (
	defaultAuthorName  = "Translation Bot"
	defaultAuthorEmail = "translation-bot@users.noreply.github.com"
)

// Provider obtains working copies.
type Provider interface {
	Acquire(ctx context.Context, url, dest string) (WorkingCopy, error)
}

// WorkingCopy is a local checkout owned by one session.
type WorkingCopy interface {
	// Root is the absolute path of the checkout.
	Root() string
	// CommitAndPush commits every change on opts.Branch and pushes it.
	CommitAndPush(ctx context.Context, opts PushOptions) error
	// Release deletes the checkout. Calls after the first are no-ops.
	Release() error
}

// PushOptions describe a commit and the push that publishes it.
type PushOptions struct {
	Branch  string
	Message string
	// RemoteURL replaces the origin URL before pushing when set.
	RemoteURL   string
	Force       bool
	AuthorName  string
	AuthorEmail string
}

// Git is a Provider backed by the git executable.
type Git struct {
	// Binary is the git executable ("git" when empty).
	Binary string
	// Depth makes clones shallow when positive.
	Depth        int
	CloneTimeout time.Duration
	PushTimeout  time.Duration
	Logger       *slog.Logger
}

// Acquire clones url into dest. dest must not exist or be an empty
// directory; a failed clone leaves nothing behind.
func (g *Git) Acquire(ctx context.Context, url, dest string) (WorkingCopy, error) {
	if entries, err := os.ReadDir(dest); err == nil && len(entries) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDestExists, dest)
	}

	args := []string{"clone"}
	if g.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(g.Depth))
	}
	args = append(args, "--", url, dest)

	g.logger().Info("cloning repository", "url", redact(url), "dest", dest)
	if _, err := g.run(ctx, g.CloneTimeout, "", args...); err != nil {
		_ = os.RemoveAll(dest)
		return nil, fmt.Errorf("cloning %s: %w", redact(url), err)
	}
	// An empty repository has no HEAD yet; base stays "".
	base, _ := g.run(ctx, 0, dest, "rev-parse", "HEAD")
	return &checkout{git: g, root: dest, base: strings.TrimSpace(base)}, nil
}

func (g *Git) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g *Git) binary() string {
	if g.Binary != "" {
		return g.Binary
	}
	return "git"
}

// run executes git in dir with an optional deadline and returns its stdout.
func (g *Git) run(ctx context.Context, timeout time.Duration, dir string, args ...string) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, g.binary(), args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("git %s: %w", args[0], ctxErr)
		}
		msg := strings.TrimSpace(redact(stderr.String()))
		if msg == "" {
			return "", fmt.Errorf("git %s: %w", args[0], err)
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
	}
	return stdout.String(), nil
}

type checkout struct {
	git  *Git
	root string
	// base is HEAD right after the clone.
	base string

	mu       sync.Mutex
	released bool
}

func (c *checkout) Root() string { return c.root }

func (c *checkout) CommitAndPush(ctx context.Context, opts PushOptions) error {
	c.mu.Lock()
	released := c.released
	c.mu.Unlock()
	if released {
		return ErrReleased
	}
	if opts.Branch == "" {
		return errors.New("branch name is required")
	}

	name, email := opts.AuthorName, opts.AuthorEmail
	if name == "" {
		name = defaultAuthorName
	}
	if email == "" {
		email = defaultAuthorEmail
	}

	git := func(timeout time.Duration, args ...string) (string, error) {
		return c.git.run(ctx, timeout, c.root, args...)
	}

	if _, err := git(0, "checkout", "-B", opts.Branch); err != nil {
		return err
	}
	if _, err := git(0, "add", "-A"); err != nil {
		return err
	}
	status, err := git(0, "status", "--porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) != "" {
		if _, err := git(0, "-c", "user.name="+name, "-c", "user.email="+email,
			"commit", "-q", "-m", opts.Message); err != nil {
			return err
		}
	} else if !c.committed(ctx) {
		return ErrNoChanges
	}
	if opts.RemoteURL != "" {
		if _, err := git(0, "remote", "set-url", "origin", opts.RemoteURL); err != nil {
			return err
		}
	}

	args := []string{"push"}
	if opts.Force {
		args = append(args, "--force")
	}
	args = append(args, "origin", opts.Branch)
	c.git.logger().Info("pushing branch", "branch", opts.Branch, "force", opts.Force)
	if _, err := git(c.git.PushTimeout, args...); err != nil {
		return err
	}
	return nil
}

// committed reports whether HEAD moved past the cloned commit, which is the
// case when a previous CommitAndPush committed but failed to push.
func (c *checkout) committed(ctx context.Context) bool {
	head, err := c.git.run(ctx, 0, c.root, "rev-parse", "HEAD")
	if err != nil {
		return false
	}
	return strings.TrimSpace(head) != c.base
}

func (c *checkout) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil
	}
	c.released = true
	if err := os.RemoveAll(c.root); err != nil {
		return fmt.Errorf("removing %s: %w", c.root, err)
	}
	return nil
}

var credentials = regexp.MustCompile(`(://)[^/@\s]+@`)

// redact hides credentials embedded in URLs.
func redact(s string) string {
	return credentials.ReplaceAllString(s, "${1}***@")
}
