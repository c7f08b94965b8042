package algorithm

import (
	"context"
	"errors"
	"testing"
)

func TestCache_RefreshOnMiss(t *testing.T) {
	repo := newMockRepo()
	cache := NewCache(repo)
	ctx := context.Background()

	if _, err := cache.Get(ctx, "later"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	a := validAlgorithm()
	a.Label = "later"
	repo.algos[a.Label] = a

	got, err := cache.Get(ctx, "later")
	if err != nil {
		t.Fatalf("Get after insert: %v", err)
	}
	if got.Label != "later" {
		t.Errorf("label = %q, want later", got.Label)
	}
}

func TestCache_HitsAvoidStorage(t *testing.T) {
	repo := newMockRepo()
	a := validAlgorithm()
	repo.algos[a.Label] = a
	cache := NewCache(repo)
	ctx := context.Background()

	if _, err := cache.Get(ctx, a.Label); err != nil {
		t.Fatalf("first Get: %v", err)
	}
	calls := repo.listCalls
	for i := 0; i < 5; i++ {
		if _, err := cache.Get(ctx, a.Label); err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
	}
	if repo.listCalls != calls {
		t.Errorf("listCalls = %d after hits, want %d", repo.listCalls, calls)
	}
}

func TestCache_Default(t *testing.T) {
	repo := newMockRepo()
	cache := NewCache(repo)
	ctx := context.Background()

	if _, err := cache.Default(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound with no default", err)
	}

	def := validAlgorithm()
	def.Label = "def"
	def.IsDefault = true
	repo.algos[def.Label] = def

	got, err := cache.Default(ctx)
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if got.Label != "def" {
		t.Errorf("label = %q, want def", got.Label)
	}
}

func TestCache_Invalidate(t *testing.T) {
	repo := newMockRepo()
	a := validAlgorithm()
	a.IsDefault = true
	repo.algos[a.Label] = a
	cache := NewCache(repo)
	ctx := context.Background()

	if _, err := cache.Default(ctx); err != nil {
		t.Fatalf("Default: %v", err)
	}

	// A default flip in storage is invisible until the snapshot drops.
	newDef := validAlgorithm()
	newDef.Label = "new-default"
	newDef.IsDefault = true
	a.IsDefault = false
	repo.algos[newDef.Label] = newDef

	got, _ := cache.Default(ctx)
	if got.Label != a.Label {
		t.Fatalf("snapshot changed without invalidation: %q", got.Label)
	}

	cache.Invalidate()
	got, err := cache.Default(ctx)
	if err != nil {
		t.Fatalf("Default after Invalidate: %v", err)
	}
	if got.Label != "new-default" {
		t.Errorf("label = %q, want new-default", got.Label)
	}
}

func TestCache_StorageErrorPropagates(t *testing.T) {
	repo := newMockRepo()
	repo.failWith = ErrUnavailable
	cache := NewCache(repo)

	_, err := cache.Get(context.Background(), "any")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}
