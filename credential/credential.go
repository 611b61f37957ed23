// Package credential keeps the model API key under one fixed name.
package credential

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"
)

// KeyName is the fixed key the API credential is stored under.
const KeyName = "GEMINI_API_KEY"

var ErrNotFound = errors.New("credential: not found")

type Store interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
	Clear(ctx context.Context, name string) error
	Close() error
}

// record is the stored form of a credential.
type record struct {
	Value   string    `msgpack:"v"`
	SavedAt time.Time `msgpack:"t"`
}

// Resolve returns the API key, preferring the environment over the store.
// A missing key is ErrNotFound.
func Resolve(ctx context.Context, s Store) (string, error) {
	if v := strings.TrimSpace(os.Getenv(KeyName)); v != "" {
		return v, nil
	}
	if s == nil {
		return "", ErrNotFound
	}
	v, err := s.Get(ctx, KeyName)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(v) == "" {
		return "", ErrNotFound
	}
	return v, nil
}

// Mask shows only the first and last four characters of a key.
func Mask(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + strings.Repeat("*", len(v)-8) + v[len(v)-4:]
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

func (m *Memory) Get(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, name, value string) error {
	m.mu.Lock()
	m.values[name] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(_ context.Context, name string) error {
	m.mu.Lock()
	delete(m.values, name)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
