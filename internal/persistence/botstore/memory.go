package botstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"botswarm.ai/internal/protocol"
)

// Memory is the default in-process store.
type Memory struct {
	mu   sync.Mutex
	recs map[string]Record
	seq  int
}

func NewMemory() *Memory {
	return &Memory{recs: map[string]Record{}}
}

func (m *Memory) Get(id string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return Record{}, false
	}
	return r.clone(), true
}

func (m *Memory) All() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Memory) Create(name string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	r := Record{
		ID:        fmt.Sprintf("bot_%d_%d", time.Now().UnixMilli(), m.seq),
		Name:      name,
		Status:    protocol.StatusOffline,
		Health:    20,
		Food:      20,
		CreatedAt: time.Now().UTC(),
	}
	m.recs[r.ID] = r
	return r.clone(), nil
}

func (m *Memory) Update(id string, p Patch) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return Record{}, false
	}
	r.apply(p)
	m.recs[id] = r
	return r.clone(), true
}

func (m *Memory) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[id]; !ok {
		return false
	}
	delete(m.recs, id)
	return true
}
