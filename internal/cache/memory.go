package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Cache. Values are stored as JSON so callers never
// share mutable state with the cache.
type Memory struct {
	mu          sync.Mutex
	ttl         time.Duration
	now         func() time.Time
	generations map[Entity]int64
	entries     map[string]memoryEntry
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Memory{
		ttl:         ttl,
		now:         time.Now,
		generations: make(map[Entity]int64),
		entries:     make(map[string]memoryEntry),
	}
}

func (m *Memory) Lookup(_ context.Context, entity Entity, key string, dest any) (Slot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot := Slot{Entity: entity, Key: versionedKey(entity, m.generations[entity], key)}
	entry, ok := m.entries[slot.Key]
	if !ok {
		return slot, false, nil
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, slot.Key)
		return slot, false, nil
	}
	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return slot, false, err
	}
	return slot, true, nil
}

func (m *Memory) Fill(_ context.Context, slot Slot, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !strings.HasPrefix(slot.Key, versionedKey(slot.Entity, m.generations[slot.Entity], "")) {
		return nil
	}
	m.entries[slot.Key] = memoryEntry{payload: payload, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Invalidate(_ context.Context, entities ...Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entity := range entities {
		stale := versionedKey(entity, m.generations[entity], "")
		for key := range m.entries {
			if strings.HasPrefix(key, stale) {
				delete(m.entries, key)
			}
		}
		m.generations[entity]++
	}
	return nil
}

func versionedKey(entity Entity, generation int64, key string) string {
	return fmt.Sprintf("pos:%s:%d:%s", entity, generation, key)
}
