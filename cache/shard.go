package cache

import (
	"container/list"
	"encoding/binary"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ordering holds the fields eviction compares.
type ordering struct {
	insertedAt     time.Time
	lastAccessedAt time.Time
	// seq changes on every set and hit, so a snapshot can tell whether the
	// entry was touched after it was taken.
	seq uint64
}

// before reports whether a should be evicted ahead of b: oldest access
// first, then oldest insertion.
func (a ordering) before(b ordering) bool {
	if !a.lastAccessedAt.Equal(b.lastAccessedAt) {
		return a.lastAccessedAt.Before(b.lastAccessedAt)
	}
	if !a.insertedAt.Equal(b.insertedAt) {
		return a.insertedAt.Before(b.insertedAt)
	}
	return a.seq < b.seq
}

type entry[K comparable, V any] struct {
	ordering
	key      K
	value    V
	accessed *list.Element // in shard.byAccess
	inserted *list.Element // in shard.byInsertion
}

// candidate is a point-in-time copy of an entry's ordering, safe to compare
// after the shard lock is released.
type candidate[K comparable] struct {
	ordering
	shard int
	key   K
}

// shard keeps its entries in two lists. Timestamps are taken under mu, so
// lastAccessedAt never decreases from the back of byAccess to the front and
// insertedAt never decreases along byInsertion. The oldest entry by either
// clock is therefore always at a tail.
type shard[K comparable, V any] struct {
	mu          sync.Mutex
	items       map[K]*entry[K, V]
	byAccess    *list.List // front is the most recently accessed
	byInsertion *list.List // front is the most recently set
}

func newShard[K comparable, V any]() *shard[K, V] {
	return &shard[K, V]{
		items:       make(map[K]*entry[K, V]),
		byAccess:    list.New(),
		byInsertion: list.New(),
	}
}

func (s *shard[K, V]) add(e *entry[K, V]) {
	e.accessed = s.byAccess.PushFront(e)
	e.inserted = s.byInsertion.PushFront(e)
	s.items[e.key] = e
}

func (s *shard[K, V]) remove(e *entry[K, V]) {
	delete(s.items, e.key)
	s.byAccess.Remove(e.accessed)
	s.byInsertion.Remove(e.inserted)
}

// expire removes dead entries from the tails of both lists and returns how
// many were removed. Together the two tails reach every dead entry.
func (s *shard[K, V]) expire(dead func(*entry[K, V]) bool) int {
	var n int
	for el := s.byInsertion.Back(); el != nil && dead(el.Value.(*entry[K, V])); el = s.byInsertion.Back() {
		s.remove(el.Value.(*entry[K, V]))
		n++
	}
	for el := s.byAccess.Back(); el != nil && dead(el.Value.(*entry[K, V])); el = s.byAccess.Back() {
		s.remove(el.Value.(*entry[K, V]))
		n++
	}
	return n
}

// oldest returns the entry other than skip that eviction takes from this
// shard: the least recently accessed, ties going to the oldest insertion.
// Only the run of entries sharing the tail's lastAccessedAt is inspected.
func (s *shard[K, V]) oldest(skip K) *entry[K, V] {
	var best *entry[K, V]
	for el := s.byAccess.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry[K, V])
		if e.key == skip {
			continue
		}
		if best == nil {
			best = e
			continue
		}
		if !e.lastAccessedAt.Equal(best.lastAccessedAt) {
			break
		}
		if e.before(best.ordering) {
			best = e
		}
	}
	return best
}

func hashKey[K comparable](key K) uint64 {
	switch k := any(key).(type) {
	case string:
		return xxhash.Sum64String(k)
	case int:
		return hashUint64(uint64(k))
	case int64:
		return hashUint64(uint64(k))
	case uint32:
		return hashUint64(uint64(k))
	case uint64:
		return hashUint64(k)
	}
	v := reflect.ValueOf(key)
	switch v.Kind() {
	case reflect.String:
		return xxhash.Sum64String(v.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return hashUint64(uint64(v.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return hashUint64(v.Uint())
	}
	return xxhash.Sum64String(fmt.Sprintf("%#v", key))
}

func hashUint64(v uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return xxhash.Sum64(buf[:])
}
