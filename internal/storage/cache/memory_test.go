package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_Set_Get_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var v string
	if err := s.Get(ctx, "k1", &v); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "v1" {
		t.Errorf("Get: got %q", v)
	}
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Get(ctx, "k1", &v); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after Delete: want ErrCacheMiss, got %v", err)
	}
}

func TestMemoryStore_Expiration(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	type tenant struct{ ID, Plan string }
	_ = s.Set(ctx, "t", tenant{ID: "t1", Plan: "free"}, time.Minute)

	var got tenant
	if err := s.Get(ctx, "t", &got); err != nil || got.Plan != "free" {
		t.Fatalf("Get before expiry: %+v err=%v", got, err)
	}
	now = now.Add(time.Minute)
	if err := s.Get(ctx, "t", &got); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after expiry: want ErrCacheMiss, got %v", err)
	}
}
