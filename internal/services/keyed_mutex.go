package services

import (
	"strconv"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// keyedMutex serializes work per key. Locks are created on first use and
// kept for the life of the process.
type keyedMutex struct {
	locks *xsync.MapOf[string, *sync.Mutex]
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: xsync.NewMapOf[string, *sync.Mutex]()}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	mu, _ := k.locks.LoadOrCompute(key, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	return mu.Unlock
}

func routeKey(planID string, version int) string {
	return planID + "@" + strconv.Itoa(version)
}
