package store

import (
	"context"
	"sync"

	"github.com/DoyleJ11/gameroom/pkg/domain"
)

// Memory is a Journal kept in process memory. It is what the server runs
// with when no database is configured.
type Memory struct {
	mu    sync.Mutex
	rooms map[string]*Restored
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]*Restored)}
}

func (m *Memory) SaveRoom(_ context.Context, code string, visibility domain.Visibility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[code]; ok {
		return ErrExists
	}
	m.rooms[code] = &Restored{Code: code, Visibility: visibility}
	return nil
}

func (m *Memory) AppendLog(_ context.Context, code string, entry domain.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[code]
	if !ok {
		return ErrNotFound
	}
	r.Log = append(r.Log, entry)
	return nil
}

func (m *Memory) MarkEnded(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[code]
	if !ok {
		return ErrNotFound
	}
	r.Ended = true
	return nil
}

func (m *Memory) LoadRoom(_ context.Context, code string) (Restored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[code]
	if !ok {
		return Restored{}, ErrNotFound
	}
	out := *r
	out.Log = append([]domain.LogEntry(nil), r.Log...)
	return out, nil
}
