package cmap

import (
	"encoding/binary"
	"iter"
	"sync"

	"github.com/spaolacci/murmur3"
)

const shardCount = 16

// Key is satisfied by the integer id types of the engine.
type Key interface {
	~int | ~int32 | ~int64 | ~uint | ~uint16 | ~uint32 | ~uint64
}

// Map is a concurrent map split into fixed shards, each with its own lock.
// The zero value is not usable; call New.
type Map[K Key, V any] struct {
	shards [shardCount]shard[K, V]
}

type shard[K Key, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// New returns an empty map.
func New[K Key, V any]() *Map[K, V] {
	m := &Map[K, V]{}
	for i := range m.shards {
		m.shards[i].items = make(map[K]V)
	}
	return m
}

func (m *Map[K, V]) shard(key K) *shard[K, V] {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(key))
	return &m.shards[murmur3.Sum64(b[:])%shardCount]
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shard(key)
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	return v, ok
}

// Set stores value under key, replacing any previous value.
func (m *Map[K, V]) Set(key K, value V) {
	s := m.shard(key)
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
}

// GetOrSet returns the value stored under key, storing value first if the
// key is absent. loaded reports whether the value was already there.
func (m *Map[K, V]) GetOrSet(key K, value V) (actual V, loaded bool) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.items[key]; ok {
		return v, true
	}
	s.items[key] = value
	return value, false
}

// Pop removes key and returns the value it held.
func (m *Map[K, V]) Pop(key K) (V, bool) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	return v, ok
}

// Delete removes key.
func (m *Map[K, V]) Delete(key K) {
	m.Pop(key)
}

// Len returns the number of entries. Concurrent writers may change it
// while the shards are counted.
func (m *Map[K, V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// All iterates over the entries shard by shard, holding each shard's read
// lock while its entries are yielded. The body must not write to the map.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i := range m.shards {
			s := &m.shards[i]
			s.mu.RLock()
			for k, v := range s.items {
				if !yield(k, v) {
					s.mu.RUnlock()
					return
				}
			}
			s.mu.RUnlock()
		}
	}
}
