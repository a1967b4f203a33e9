// Package gitsvc records lifecycle mutations as git commits when the content
// root is a git repository. Pure go-git, no git binary dependency.
package gitsvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Service commits the working tree after document mutations.
type Service struct {
	dir          string
	defaultName  string
	defaultEmail string
	repo         *gogit.Repository
	mu           sync.Mutex
}

// Open opens dir as a git repository, initializing one when absent.
func Open(dir, defaultName, defaultEmail string) (*Service, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = defaultName
		cfg.User.Email = defaultEmail
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &Service{
		dir:          dir,
		defaultName:  defaultName,
		defaultEmail: defaultEmail,
		repo:         repo,
	}, nil
}

// CommitAll stages every change in the working tree and commits it. A clean
// tree is a no-op. The actor becomes the commit author; the service identity
// stays the committer.
func (s *Service) CommitAll(ctx context.Context, actor, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Detach from request contexts but keep a bound.
	_, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	w, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := w.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	name := actor
	if name == "" {
		name = s.defaultName
	}
	now := time.Now()
	_, err = w.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  name,
			Email: s.defaultEmail,
			When:  now,
		},
		Committer: &object.Signature{
			Name:  s.defaultName,
			Email: s.defaultEmail,
			When:  now,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// History returns up to n most recent commit subjects touching path ("" for
// the whole tree).
func (s *Service) History(_ context.Context, path string, n int) ([]string, error) {
	if n <= 0 || n > 1000 {
		n = 1000
	}
	opts := &gogit.LogOptions{}
	if path != "" && path != "." {
		opts.FileName = &path
	}
	iter, err := s.repo.Log(opts)
	if err != nil {
		return nil, nil // no commits yet is not an error
	}
	defer iter.Close()

	var subjects []string
	for range n {
		c, err := iter.Next()
		if err != nil {
			break
		}
		subjects = append(subjects, c.Message)
	}
	return subjects, nil
}
