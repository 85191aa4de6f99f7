// Package keylock serializes work per key without a process-wide lock.
package keylock

import (
	"context"
	"hash/fnv"
	"sync"
)

const defaultShards = 32

// Locker hands out one mutex per key. Keys are spread over shards so that
// bookkeeping for unrelated keys does not contend; a key's entry is removed
// once nobody holds or waits for it.
type Locker struct {
	shards []*shard
}

type shard struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	// ch is a one-slot semaphore; a full channel means the key is held.
	ch   chan struct{}
	refs int
}

// New creates a Locker
func New() *Locker {
	l := &Locker{shards: make([]*shard, defaultShards)}
	for i := range l.shards {
		l.shards[i] = &shard{locks: make(map[string]*entry)}
	}
	return l
}

func (l *Locker) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}

// Lock blocks until key is acquired or ctx is done. The returned func
// releases the key and must be called exactly once.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	s := l.shardFor(key)

	s.mu.Lock()
	e, ok := s.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		s.locks[key] = e
	}
	e.refs++
	s.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		s.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			s.release(key, e)
		})
	}, nil
}

// Do runs fn while holding key.
func (l *Locker) Do(ctx context.Context, key string, fn func() error) error {
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// Len returns the number of keys currently held or waited on.
func (l *Locker) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.locks)
		s.mu.Unlock()
	}
	return n
}

func (s *shard) release(key string, e *entry) {
	s.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()
}
