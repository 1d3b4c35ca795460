// Package publish makes translated working copies visible as a branch on
// GitHub.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minios-linux/ftlbot/workcopy"
)

// ErrInvalidRepoURL is returned for URLs that do not name a GitHub repository.
var ErrInvalidRepoURL = errors.New("not a GitHub repository URL")

// Request describes one publication.
type Request struct {
	WorkingCopy workcopy.WorkingCopy
	// SourceURL is the URL the working copy was cloned from.
	SourceURL   string
	Branch      string
	Message     string
	AuthorName  string
	AuthorEmail string
}

func (r Request) pushOptions() workcopy.PushOptions {
	return workcopy.PushOptions{
		Branch:      r.Branch,
		Message:     r.Message,
		AuthorName:  r.AuthorName,
		AuthorEmail: r.AuthorEmail,
	}
}

// Publisher commits the working copy and returns a browse URL for the
// published branch.
type Publisher interface {
	Publish(ctx context.Context, req Request) (string, error)
}

// Repo identifies a repository on a forge.
type Repo struct {
	Host  string
	Owner string
	Name  string
}

// URL returns the https browse URL of the repository.
func (r Repo) URL() string {
	return "https://" + r.Host + "/" + r.Owner + "/" + r.Name
}

// TreeURL returns the browse URL of branch.
func (r Repo) TreeURL(branch string) string {
	return r.URL() + "/tree/" + branch
}

// ParseRepoURL accepts https://host/owner/name and git@host:owner/name,
// each with an optional .git suffix or trailing slash.
func ParseRepoURL(raw string) (Repo, error) {
	s := strings.TrimSpace(raw)
	var host, path string
	switch {
	case strings.HasPrefix(s, "https://"), strings.HasPrefix(s, "http://"):
		_, rest, _ := strings.Cut(s, "://")
		host, path, _ = strings.Cut(rest, "/")
	case strings.HasPrefix(s, "git@"):
		host, path, _ = strings.Cut(strings.TrimPrefix(s, "git@"), ":")
	default:
		return Repo{}, fmt.Errorf("%w: %q", ErrInvalidRepoURL, raw)
	}

	path = strings.TrimSuffix(strings.TrimSuffix(path, "/"), ".git")
	owner, name, ok := strings.Cut(path, "/")
	if host == "" || !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repo{}, fmt.Errorf("%w: %q", ErrInvalidRepoURL, raw)
	}
	return Repo{Host: host, Owner: owner, Name: name}, nil
}

// DirectPush pushes the branch to the remote the working copy was cloned
// from. It needs write access to that repository and is meant as a
// fallback when forking is not available.
type DirectPush struct{}

func (DirectPush) Publish(ctx context.Context, req Request) (string, error) {
	repo, err := ParseRepoURL(req.SourceURL)
	if err != nil {
		return "", err
	}
	if err := req.WorkingCopy.CommitAndPush(ctx, req.pushOptions()); err != nil {
		return "", fmt.Errorf("pushing to %s: %w", repo.URL(), err)
	}
	return repo.TreeURL(req.Branch), nil
}
