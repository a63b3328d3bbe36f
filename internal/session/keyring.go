package session

import (
	"sync"
	"time"

	"trustmesh/internal/models"
	"trustmesh/pkg/domain"
)

type keyEntry struct {
	sessionID domain.SessionID
	key       []byte
	retiredAt time.Time
}

// keyring holds session key material in process memory only. Every removal
// path zeroizes the bytes before dropping the reference.
type keyring struct {
	mu      sync.Mutex
	entries map[models.KeyRef]*keyEntry
}

func newKeyring() *keyring {
	return &keyring{entries: make(map[models.KeyRef]*keyEntry)}
}

func (k *keyring) put(ref models.KeyRef, sessionID domain.SessionID, key []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.entries[ref] = &keyEntry{sessionID: sessionID, key: key}
}

// live reports whether ref holds material that has not been retired.
func (k *keyring) live(ref models.KeyRef) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[ref]
	return ok && e.retiredAt.IsZero()
}

// copyOf returns a copy of live material.
func (k *keyring) copyOf(ref models.KeyRef) ([]byte, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[ref]
	if !ok || !e.retiredAt.IsZero() {
		return nil, false
	}
	return append([]byte(nil), e.key...), true
}

func (k *keyring) retire(ref models.KeyRef, at time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if e, ok := k.entries[ref]; ok && e.retiredAt.IsZero() {
		e.retiredAt = at
	}
}

func (k *keyring) destroy(ref models.KeyRef) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if e, ok := k.entries[ref]; ok {
		clear(e.key)
		delete(k.entries, ref)
	}
}

// destroySession zeroizes every generation belonging to id.
func (k *keyring) destroySession(id domain.SessionID) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for ref, e := range k.entries {
		if e.sessionID == id {
			clear(e.key)
			delete(k.entries, ref)
			n++
		}
	}
	return n
}

// sweep zeroizes material retired before cutoff.
func (k *keyring) sweep(cutoff time.Time) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for ref, e := range k.entries {
		if !e.retiredAt.IsZero() && e.retiredAt.Before(cutoff) {
			clear(e.key)
			delete(k.entries, ref)
			n++
		}
	}
	return n
}

func (k *keyring) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
