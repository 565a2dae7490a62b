package pool

import (
	"context"
	"testing"
)

func TestNewQdrantPoolCreatesConfiguredSize(t *testing.T) {
	p, err := NewQdrantPool(context.Background(), QdrantConfig{Addr: "localhost:6334", MaxSize: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()
	if p.Size() != 3 {
		t.Fatalf("expected 3 connections, got %d", p.Size())
	}
	if p.MaxSize() != 3 {
		t.Fatalf("expected max size 3, got %d", p.MaxSize())
	}
}

func TestQdrantPoolGetRoundRobins(t *testing.T) {
	p, err := NewQdrantPool(context.Background(), QdrantConfig{Addr: "localhost:6334", MaxSize: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()

	c1, err := p.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c2, err := p.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c3, err := p.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c1 != c3 {
		t.Fatal("expected round robin to wrap back to the first connection")
	}
	if c1 == c2 {
		t.Fatal("expected distinct connections for consecutive Get calls")
	}
}

func TestQdrantPoolStatsAndHealth(t *testing.T) {
	p, err := NewQdrantPool(context.Background(), QdrantConfig{Addr: "localhost:6334", MaxSize: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()

	if !p.IsHealthy() {
		t.Fatal("expected a fresh pool to be healthy")
	}
	if _, err := p.Get(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Stats().Hits != 1 {
		t.Fatalf("expected 1 hit, got %d", p.Stats().Hits)
	}
	p.Release()
	if p.Stats().Active != 0 {
		t.Fatalf("expected active count back to 0, got %d", p.Stats().Active)
	}
}

func TestQdrantPoolDefaultsSize(t *testing.T) {
	p, err := NewQdrantPool(context.Background(), QdrantConfig{Addr: "localhost:6334"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()
	if p.Size() != DefaultQdrantPoolSize {
		t.Fatalf("expected default size %d, got %d", DefaultQdrantPoolSize, p.Size())
	}
}
