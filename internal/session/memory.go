// Package session stores in-progress intake dialogues, one per owner.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	"github.com/jonboulle/clockwork"
)

type memoryEntry struct {
	session   permit.Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Entries older than the TTL are dropped on read.
type MemoryStore struct {
	clock clockwork.Clock
	ttl   time.Duration

	mutex    sync.Mutex
	sessions map[permit.OwnerID]memoryEntry
}

// NewMemoryStore returns an empty store. A non-positive ttl keeps sessions until deleted.
func NewMemoryStore(clock clockwork.Clock, ttl time.Duration) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		clock:    clock,
		ttl:      ttl,
		sessions: make(map[permit.OwnerID]memoryEntry),
	}
}

func (store *MemoryStore) Load(ctx context.Context, owner permit.OwnerID) (permit.Session, bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	entry, ok := store.sessions[owner]
	if !ok {
		return permit.Session{}, false, nil
	}
	if !entry.expiresAt.IsZero() && !store.clock.Now().Before(entry.expiresAt) {
		delete(store.sessions, owner)
		return permit.Session{}, false, nil
	}
	return entry.session, true, nil
}

func (store *MemoryStore) Save(ctx context.Context, owner permit.OwnerID, session permit.Session) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	entry := memoryEntry{session: session}
	if store.ttl > 0 {
		entry.expiresAt = store.clock.Now().Add(store.ttl)
	}
	store.sessions[owner] = entry
	return nil
}

func (store *MemoryStore) Delete(ctx context.Context, owner permit.OwnerID) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.sessions, owner)
	return nil
}
