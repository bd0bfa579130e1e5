// README: Follow toggle semantics tests.
package follow

import (
	"context"
	"sync"
	"testing"

	"bento/internal/types"
)

type memStore struct {
	mu    sync.Mutex
	edges map[[2]types.ID]bool
}

func newMemStore() *memStore {
	return &memStore{edges: make(map[[2]types.ID]bool)}
}

func (m *memStore) Toggle(_ context.Context, follower, followee types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]types.ID{follower, followee}
	if m.edges[key] {
		delete(m.edges, key)
		return false, nil
	}
	m.edges[key] = true
	return true, nil
}

func (m *memStore) IsFollowing(_ context.Context, follower, followee types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.edges[[2]types.ID{follower, followee}], nil
}

func (m *memStore) Followers(_ context.Context, followee types.ID) ([]types.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []types.ID
	for key := range m.edges {
		if key[1] == followee {
			ids = append(ids, key[0])
		}
	}
	return ids, nil
}

func TestToggleFlipsState(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	ctx := context.Background()

	following, err := svc.Toggle(ctx, "buyer", "seller")
	if err != nil || !following {
		t.Fatalf("first toggle = (%v, %v), want (true, nil)", following, err)
	}
	if ok, _ := svc.IsFollowing(ctx, "buyer", "seller"); !ok {
		t.Fatal("edge missing after follow")
	}

	following, err = svc.Toggle(ctx, "buyer", "seller")
	if err != nil || following {
		t.Fatalf("second toggle = (%v, %v), want (false, nil)", following, err)
	}
	if ok, _ := svc.IsFollowing(ctx, "buyer", "seller"); ok {
		t.Fatal("edge still present after unfollow")
	}
}

func TestToggleIsDirected(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	ctx := context.Background()

	if _, err := svc.Toggle(ctx, "buyer", "seller"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if ok, _ := svc.IsFollowing(ctx, "seller", "buyer"); ok {
		t.Fatal("reverse edge must not exist")
	}
}

func TestToggleRejectsSelfAndEmpty(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	ctx := context.Background()

	if _, err := svc.Toggle(ctx, "u1", "u1"); err != ErrBadRequest {
		t.Fatalf("self-follow: expected ErrBadRequest, got %v", err)
	}
	if _, err := svc.Toggle(ctx, "", "u1"); err != ErrBadRequest {
		t.Fatalf("empty follower: expected ErrBadRequest, got %v", err)
	}
}
