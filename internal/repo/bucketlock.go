package repo

import (
	"hash/fnv"
	"sync"
)

// BucketLockRegistry provides striped mutual exclusion keyed by name.
// A fixed number of stripes keeps memory bounded independent of how many
// buckets exist; unrelated names that hash to the same stripe contend,
// which is acceptable for rare lifecycle operations.
//
// The registry is an injectable component constructed once at service
// start, not package-level state.
type BucketLockRegistry struct {
	stripes []sync.RWMutex
}

// DefaultLockStripes is used when no stripe count is configured.
const DefaultLockStripes = 64

// NewBucketLockRegistry creates a registry with the given stripe count.
// Counts below 1 fall back to DefaultLockStripes.
func NewBucketLockRegistry(stripes int) *BucketLockRegistry {
	if stripes < 1 {
		stripes = DefaultLockStripes
	}
	return &BucketLockRegistry{stripes: make([]sync.RWMutex, stripes)}
}

func (r *BucketLockRegistry) stripe(name string) *sync.RWMutex {
	h := fnv.New32a()
	h.Write([]byte(name))
	return &r.stripes[h.Sum32()%uint32(len(r.stripes))]
}

// Lock acquires the write lock for name's stripe.
func (r *BucketLockRegistry) Lock(name string) { r.stripe(name).Lock() }

// Unlock releases the write lock for name's stripe.
func (r *BucketLockRegistry) Unlock(name string) { r.stripe(name).Unlock() }

// RLock acquires the read lock for name's stripe.
func (r *BucketLockRegistry) RLock(name string) { r.stripe(name).RLock() }

// RUnlock releases the read lock for name's stripe.
func (r *BucketLockRegistry) RUnlock(name string) { r.stripe(name).RUnlock() }
