package utils

import (
	"sync"
)

// OptionalMutex is a mutex that is only taken when UseMutex is set; consumers that
// guarantee external synchronization leave it unset and skip the locking.
type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool
}

func (m *OptionalMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}
