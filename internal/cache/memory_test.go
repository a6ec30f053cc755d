package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Get(ctx, "student", "count:7"); !errors.Is(err, ErrMiss) {
		t.Fatalf("err = %v, want ErrMiss", err)
	}

	if err := m.Set(ctx, "student", "count:7", "3", 0); err != nil {
		t.Fatal(err)
	}
	got, err := m.Get(ctx, "student", "count:7")
	if err != nil {
		t.Fatal(err)
	}
	if got != "3" {
		t.Errorf("value = %q", got)
	}

	// Namespaces do not bleed into each other.
	if _, err := m.Get(ctx, "task", "count:7"); !errors.Is(err, ErrMiss) {
		t.Errorf("err = %v, want ErrMiss across namespaces", err)
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Set(ctx, "student", "spent:7", "12.50", 0); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, "student", "spent:7"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(ctx, "student", "spent:7"); !errors.Is(err, ErrMiss) {
		t.Errorf("err = %v, want ErrMiss after delete", err)
	}

	// Deleting an absent key is not an error.
	if err := m.Delete(ctx, "student", "spent:7"); err != nil {
		t.Errorf("delete absent: %v", err)
	}
}

func TestMemoryTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Set(ctx, "student", "count:7", "3", 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(ctx, "student", "count:7"); err != nil {
		t.Fatalf("fresh entry: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if _, err := m.Get(ctx, "student", "count:7"); !errors.Is(err, ErrMiss) {
		t.Errorf("err = %v, want ErrMiss after expiry", err)
	}
}

func TestMemoryOverwrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Set(ctx, "student", "count:7", "3", 0); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(ctx, "student", "count:7", "4", 0); err != nil {
		t.Fatal(err)
	}
	got, err := m.Get(ctx, "student", "count:7")
	if err != nil {
		t.Fatal(err)
	}
	if got != "4" {
		t.Errorf("value = %q, want latest write", got)
	}
}
