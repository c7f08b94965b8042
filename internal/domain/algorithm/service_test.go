package algorithm

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
)

// mockRepo is a map-backed Repository shared by the cache, service, and
// handler tests.
type mockRepo struct {
	mu        sync.Mutex
	algos     map[string]*Algorithm
	listCalls int
	failWith  error
	insertErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{algos: make(map[string]*Algorithm)}
}

func (m *mockRepo) Insert(ctx context.Context, a *Algorithm) error {
	if m.failWith != nil {
		return m.failWith
	}
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.algos[a.Label]; exists {
		return ErrConflict
	}
	if a.IsDefault {
		for _, other := range m.algos {
			other.IsDefault = false
		}
	}
	m.algos[a.Label] = a
	return nil
}

func (m *mockRepo) GetByLabel(ctx context.Context, label string) (*Algorithm, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.algos[label]; ok {
		return a, nil
	}
	return nil, ErrNotFound
}

func (m *mockRepo) GetDefault(ctx context.Context) (*Algorithm, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.algos {
		if a.IsDefault {
			return a, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) List(ctx context.Context) ([]*Algorithm, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	labels := make([]string, 0, len(m.algos))
	for l := range m.algos {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	out := make([]*Algorithm, 0, len(labels))
	for _, l := range labels {
		out = append(out, m.algos[l])
	}
	return out, nil
}

func TestService_Create(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	a := validAlgorithm()
	if err := svc.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := svc.Get(ctx, a.Label)
	if err != nil {
		t.Fatalf("Get after Create: %v", err)
	}
	if got.Label != a.Label {
		t.Errorf("label = %q, want %q", got.Label, a.Label)
	}
}

func TestService_Create_Invalid(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	a := validAlgorithm()
	a.Passes = nil
	err := svc.Create(context.Background(), a)
	if !errors.Is(err, ErrInvalidAlgorithm) {
		t.Fatalf("err = %v, want ErrInvalidAlgorithm", err)
	}
	if len(repo.algos) != 0 {
		t.Error("invalid algorithm was stored")
	}
}

func TestService_Create_Duplicate(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	if err := svc.Create(ctx, validAlgorithm()); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	err := svc.Create(ctx, validAlgorithm())
	if !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestService_Resolve(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	def := validAlgorithm()
	def.Label = "deployment-default"
	def.IsDefault = true
	other := validAlgorithm()
	other.Label = "other"
	if err := svc.Create(ctx, def); err != nil {
		t.Fatal(err)
	}
	if err := svc.Create(ctx, other); err != nil {
		t.Fatal(err)
	}

	t.Run("empty label resolves the default", func(t *testing.T) {
		a, err := svc.Resolve(ctx, "")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if a.Label != "deployment-default" {
			t.Errorf("label = %q, want deployment-default", a.Label)
		}
	})

	t.Run("named label", func(t *testing.T) {
		a, err := svc.Resolve(ctx, "other")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if a.Label != "other" {
			t.Errorf("label = %q, want other", a.Label)
		}
	})

	t.Run("unknown label", func(t *testing.T) {
		_, err := svc.Resolve(ctx, "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestService_EnsureSeeded(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.EnsureSeeded(ctx)
	if err != nil {
		t.Fatalf("EnsureSeeded: %v", err)
	}
	if !created {
		t.Error("created = false on an empty deployment")
	}

	a, err := svc.Resolve(ctx, "")
	if err != nil {
		t.Fatalf("Resolve after seed: %v", err)
	}
	if a.Label != DefaultLabel {
		t.Errorf("default label = %q, want %q", a.Label, DefaultLabel)
	}

	created, err = svc.EnsureSeeded(ctx)
	if err != nil {
		t.Fatalf("second EnsureSeeded: %v", err)
	}
	if created {
		t.Error("created = true on a seeded deployment")
	}
}

func TestService_EnsureSeeded_LostRace(t *testing.T) {
	repo := newMockRepo()
	repo.insertErr = ErrConflict
	svc := NewService(repo)

	created, err := svc.EnsureSeeded(context.Background())
	if err != nil {
		t.Fatalf("EnsureSeeded: %v", err)
	}
	if created {
		t.Error("created = true after losing the insert race")
	}
}
