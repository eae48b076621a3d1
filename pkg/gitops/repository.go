// Package gitops commits every live profile write into a git repository
// rooted at the profile directory, giving operators a second, independent
// history of who changed what.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// ErrNoChanges is returned by Commit when the file matches HEAD.
var ErrNoChanges = errors.New("no changes to commit")

// Config configures the commit identity.
type Config struct {
	// AuthorName is the committer name.
	AuthorName string

	// AuthorEmail is used for both author and committer.
	AuthorEmail string
}

// CommitInfo describes one commit.
type CommitInfo struct {
	SHA       string    `json:"sha"`
	Author    string    `json:"author"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Repository is a local git repository holding the live profiles.
type Repository struct {
	root   string
	cfg    Config
	repo   *gogit.Repository
	now    func() time.Time
	logger *slog.Logger

	mu sync.Mutex
}

// Open opens the repository at root, initializing one if none exists.
func Open(root string, cfg Config, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AuthorName == "" {
		cfg.AuthorName = "governor"
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = "governor@localhost"
	}

	repo, err := gogit.PlainOpen(root)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create repository directory: %w", err)
		}
		repo, err = gogit.PlainInit(root, false)
		if err != nil {
			return nil, fmt.Errorf("failed to init repository at %q: %w", root, err)
		}
		logger.Info("initialized profile repository", "path", root)
	} else if err != nil {
		return nil, fmt.Errorf("failed to open repository at %q: %w", root, err)
	}

	return &Repository{
		root:   root,
		cfg:    cfg,
		repo:   repo,
		now:    time.Now,
		logger: logger.With("component", "gitops"),
	}, nil
}

// Root returns the worktree root.
func (r *Repository) Root() string {
	return r.root
}

// Commit stages file (relative to the root) and commits it with actor as
// author. It returns ErrNoChanges if the worktree is clean after staging.
func (r *Repository) Commit(ctx context.Context, file, actor, message string) (*CommitInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := wt.Add(filepath.ToSlash(file)); err != nil {
		return nil, fmt.Errorf("failed to stage %s: %w", file, err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read worktree status: %w", err)
	}
	if fs, ok := status[filepath.ToSlash(file)]; !ok || fs.Staging == gogit.Unmodified {
		return nil, ErrNoChanges
	}

	when := r.now()
	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  actor,
			Email: r.cfg.AuthorEmail,
			When:  when,
		},
		Committer: &object.Signature{
			Name:  r.cfg.AuthorName,
			Email: r.cfg.AuthorEmail,
			When:  when,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit %s: %w", file, err)
	}

	r.logger.Info("profile committed", "file", file, "actor", actor, "sha", hash.String())
	return &CommitInfo{
		SHA:       hash.String(),
		Author:    actor,
		Email:     r.cfg.AuthorEmail,
		Timestamp: when,
		Message:   message,
	}, nil
}

// History returns up to limit commits reachable from HEAD, newest first.
// An empty repository has no history.
func (r *Repository) History(limit int) ([]CommitInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	iter, err := r.repo.Log(&gogit.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("failed to get commit log: %w", err)
	}
	defer iter.Close()

	var history []CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if len(history) >= limit {
			return storer.ErrStop
		}
		history = append(history, CommitInfo{
			SHA:       c.Hash.String(),
			Author:    c.Author.Name,
			Email:     c.Author.Email,
			Timestamp: c.Author.When,
			Message:   c.Message,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate commits: %w", err)
	}
	return history, nil
}
