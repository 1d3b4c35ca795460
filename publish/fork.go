package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/jpillora/backoff"
)

// ErrNoToken is returned when forking is attempted without a token.
var ErrNoToken = errors.New("GitHub token is required to fork")

// ForkPush forks the source repository through the GitHub API, points the
// working copy at the fork and force-pushes the branch there. The source
// repository is never written to.
type ForkPush struct {
	Client *github.Client
	Token  string
	// Organization receives the fork instead of the token owner.
	Organization string
	// Timeout bounds the fork request and the wait for the fork to appear.
	Timeout time.Duration
	// ReadyAttempts is how many times the fork is polled before pushing.
	ReadyAttempts int
	Backoff       *backoff.Backoff
	Logger        *slog.Logger
}

// NewForkPush returns a ForkPush talking to api.github.com, or to apiBaseURL
// when set (GitHub Enterprise or tests).
func NewForkPush(token, apiBaseURL string, httpClient *http.Client) (*ForkPush, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	client := github.NewClient(httpClient).WithAuthToken(token)
	if apiBaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(apiBaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing API URL: %w", err)
		}
		client.BaseURL = u
	}
	return &ForkPush{
		Client:        client,
		Token:         token,
		Timeout:       time.Minute,
		ReadyAttempts: 10,
	}, nil
}

func (f *ForkPush) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

func (f *ForkPush) Publish(ctx context.Context, req Request) (string, error) {
	if f.Token == "" {
		return "", ErrNoToken
	}
	src, err := ParseRepoURL(req.SourceURL)
	if err != nil {
		return "", err
	}

	fork, err := f.fork(ctx, src)
	if err != nil {
		return "", err
	}
	f.logger().Info("fork ready", "fork", fork.GetFullName())

	pushURL, err := authURL(fork.GetCloneURL(), f.Token)
	if err != nil {
		return "", err
	}
	opts := req.pushOptions()
	opts.RemoteURL = pushURL
	opts.Force = true
	if err := req.WorkingCopy.CommitAndPush(ctx, opts); err != nil {
		return "", fmt.Errorf("pushing to fork %s: %w", fork.GetFullName(), err)
	}
	return strings.TrimSuffix(fork.GetHTMLURL(), "/") + "/tree/" + req.Branch, nil
}

// fork requests the fork and waits until the API reports it.
func (f *ForkPush) fork(ctx context.Context, src Repo) (*github.Repository, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	opts := &github.RepositoryCreateForkOptions{Organization: f.Organization}
	fork, _, err := f.Client.Repositories.CreateFork(ctx, src.Owner, src.Name, opts)
	var accepted *github.AcceptedError
	switch {
	case errors.As(err, &accepted):
		// 202: GitHub creates the fork in the background.
	case err != nil:
		return nil, fmt.Errorf("forking %s/%s: %w", src.Owner, src.Name, err)
	}
	if fork == nil || fork.GetOwner().GetLogin() == "" || fork.GetName() == "" {
		return nil, fmt.Errorf("forking %s/%s: empty response", src.Owner, src.Name)
	}
	if accepted == nil {
		return fork, nil
	}
	return f.waitReady(ctx, fork)
}

func (f *ForkPush) waitReady(ctx context.Context, fork *github.Repository) (*github.Repository, error) {
	b := f.Backoff
	if b == nil {
		b = &backoff.Backoff{Min: time.Second, Max: 10 * time.Second, Factor: 2}
	}
	attempts := f.ReadyAttempts
	if attempts <= 0 {
		attempts = 1
	}
	owner, name := fork.GetOwner().GetLogin(), fork.GetName()

	var lastErr error
	for i := 0; i < attempts; i++ {
		repo, resp, err := f.Client.Repositories.Get(ctx, owner, name)
		if err == nil {
			return repo, nil
		}
		lastErr = err
		if resp == nil || resp.StatusCode != http.StatusNotFound {
			return nil, fmt.Errorf("checking fork %s/%s: %w", owner, name, err)
		}
		d := b.Duration()
		f.logger().Debug("fork not ready yet", "fork", owner+"/"+name, "retry_in", d)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for fork %s/%s: %w", owner, name, ctx.Err())
		case <-time.After(d):
		}
	}
	return nil, fmt.Errorf("fork %s/%s not ready: %w", owner, name, lastErr)
}

// authURL embeds token into an https clone URL. Other URLs are returned
// unchanged.
func authURL(cloneURL, token string) (string, error) {
	if cloneURL == "" {
		return "", errors.New("fork has no clone URL")
	}
	u, err := url.Parse(cloneURL)
	if err != nil {
		return "", fmt.Errorf("parsing clone URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return cloneURL, nil
	}
	u.User = url.UserPassword("x-access-token", token)
	return u.String(), nil
}
