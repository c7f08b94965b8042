package algorithm

import (
	"context"
	"errors"
)

type Service struct {
	repo  Repository
	cache *Cache
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, cache: NewCache(repo)}
}

// Create validates and stores a new configuration, then drops the snapshot
// so the next resolution sees it.
func (s *Service) Create(ctx context.Context, a *Algorithm) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, a); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}

// Get resolves a label through the cache.
func (s *Service) Get(ctx context.Context, label string) (*Algorithm, error) {
	return s.cache.Get(ctx, label)
}

// List always reads storage so operators see exactly what is persisted.
func (s *Service) List(ctx context.Context) ([]*Algorithm, error) {
	return s.repo.List(ctx)
}

// Resolve returns the algorithm a linkage request should run: the named one,
// or the deployment default when the request names none.
func (s *Service) Resolve(ctx context.Context, label string) (*Algorithm, error) {
	if label == "" {
		return s.cache.Default(ctx)
	}
	return s.cache.Get(ctx, label)
}

// EnsureSeeded installs the built-in default into an empty deployment.
// It reports whether anything was created.
func (s *Service) EnsureSeeded(ctx context.Context) (bool, error) {
	existing, err := s.repo.List(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	a := Default()
	if err := a.Validate(); err != nil {
		return false, err
	}
	if err := s.repo.Insert(ctx, a); err != nil {
		// Lost a startup race with another instance; the winner's copy is
		// identical.
		if errors.Is(err, ErrConflict) {
			return false, nil
		}
		return false, err
	}
	s.cache.Invalidate()
	return true, nil
}
