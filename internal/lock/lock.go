// Package lock provides keyed mutual exclusion for read-modify-write sequences
// on a template chain, a single template or a generated instance.
package lock

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Locker acquires an exclusive lock on key. The returned unlock func must be
// called exactly once. Lock blocks until the lock is held or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

func ChainKey(rootID primitive.ObjectID) string {
	return "template-chain:" + rootID.Hex()
}

func TemplateKey(id primitive.ObjectID) string {
	return "template:" + id.Hex()
}

// InstanceKey guards an instance's modification log.
func InstanceKey(id primitive.ObjectID) string {
	return "instance:" + id.Hex()
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker serializes holders of the same key within one process.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[string]*localEntry)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *LocalLocker) release(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}
