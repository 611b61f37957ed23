package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"earshot/log"
)

const keyPrefix = "credential:"

// Badger persists credentials in a BadgerDB directory.
type Badger struct {
	db *badger.DB
}

type BadgerOptions struct {
	Dir string
	// InMemory skips the disk entirely.
	InMemory bool
}

func OpenBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("credential: badger dir is required")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, name string) (string, error) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + name))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	var rec record
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return "", fmt.Errorf("decode credential %s: %w", name, err)
	}
	return rec.Value, nil
}

func (b *Badger) Set(_ context.Context, name, value string) error {
	raw, err := msgpack.Marshal(record{Value: value, SavedAt: time.Now()})
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+name), raw)
	})
}

func (b *Badger) Clear(_ context.Context, name string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + name))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger's chatter into the diagnostics log.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, args ...any)   { log.Errorf("badger: "+f, args...) }
func (badgerLogger) Warningf(f string, args ...any) { log.Warnf("badger: "+f, args...) }
func (badgerLogger) Infof(string, ...any)           {}
func (badgerLogger) Debugf(string, ...any)          {}
