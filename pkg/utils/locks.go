package utils

import "sync"

// KeyedMutex serializes work per string key. It is used to give each call or
// message a single-writer section so concurrent webhook deliveries for the same
// entity cannot interleave read-modify-write cycles.
//
// Lock granularity is striped: keys hash to a fixed set of mutexes, which keeps
// memory bounded regardless of how many entity ids pass through.
type KeyedMutex struct {
	stripes []sync.Mutex
}

const defaultStripes = 64

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{stripes: make([]sync.Mutex, defaultStripes)}
}

// Lock acquires the stripe for key and returns its unlock function.
func (m *KeyedMutex) Lock(key string) func() {
	s := &m.stripes[fnv32(key)%uint32(len(m.stripes))]
	s.Lock()
	return s.Unlock
}

func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
