package credential

import (
	"context"
	"errors"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	b, err := OpenBadger(BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return map[string]Store{"memory": NewMemory(), "badger": b}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, KeyName); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get before Set: err = %v, want ErrNotFound", err)
			}
			if err := s.Set(ctx, KeyName, "AIza-test-key"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx, KeyName)
			if err != nil || got != "AIza-test-key" {
				t.Fatalf("Get = %q, %v", got, err)
			}
			if err := s.Set(ctx, KeyName, "replaced"); err != nil {
				t.Fatal(err)
			}
			if got, _ := s.Get(ctx, KeyName); got != "replaced" {
				t.Errorf("after overwrite Get = %q", got)
			}
			if err := s.Clear(ctx, KeyName); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if err := s.Clear(ctx, KeyName); err != nil {
				t.Errorf("second Clear: %v", err)
			}
			if _, err := s.Get(ctx, KeyName); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after Clear: err = %v", err)
			}
		})
	}
}

func TestBadgerPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := OpenBadger(BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Set(ctx, KeyName, "persisted"); err != nil {
		t.Fatal(err)
	}
	b.Close()

	b, err = OpenBadger(BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if got, err := b.Get(ctx, KeyName); err != nil || got != "persisted" {
		t.Errorf("Get after reopen = %q, %v", got, err)
	}
}

func TestOpenBadgerRequiresDir(t *testing.T) {
	if _, err := OpenBadger(BadgerOptions{}); err == nil {
		t.Error("expected error without dir")
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	t.Setenv(KeyName, "")
	if _, err := Resolve(ctx, s); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty store: err = %v", err)
	}
	if _, err := Resolve(ctx, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("nil store: err = %v", err)
	}

	s.Set(ctx, KeyName, "  ")
	if _, err := Resolve(ctx, s); !errors.Is(err, ErrNotFound) {
		t.Errorf("blank value: err = %v", err)
	}

	s.Set(ctx, KeyName, "stored")
	if got, _ := Resolve(ctx, s); got != "stored" {
		t.Errorf("Resolve = %q, want stored", got)
	}

	t.Setenv(KeyName, "from-env")
	if got, _ := Resolve(ctx, s); got != "from-env" {
		t.Errorf("Resolve = %q, want env value", got)
	}
}

func TestMask(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"short", "*****"},
		{"AIzaSyABCDEF1234", "AIza********1234"},
	}
	for _, tt := range tests {
		if got := Mask(tt.in); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
