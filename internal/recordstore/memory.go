package recordstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and local development. Writes
// are serialized per store, which mirrors the real store's behavior of
// ordering individual PATCHes without offering any cross-request atomicity.
type Memory struct {
	mu     sync.Mutex
	tables map[string]map[string]Record
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[string]map[string]Record)}
}

func (m *Memory) Create(_ context.Context, table string, fields map[string]any) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := Record{
		ID:          uuid.New().String(),
		Fields:      cloneFields(fields),
		CreatedTime: time.Now().UTC(),
	}
	if m.tables[table] == nil {
		m.tables[table] = make(map[string]Record)
	}
	m.tables[table][rec.ID] = rec
	return cloneRecord(rec), nil
}

func (m *Memory) Get(_ context.Context, table, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tables[table][id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *Memory) Patch(_ context.Context, table, id string, fields map[string]any) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tables[table][id]
	if !ok {
		return Record{}, ErrNotFound
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	m.tables[table][id] = rec
	return cloneRecord(rec), nil
}

func (m *Memory) List(_ context.Context, table string, q Query) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.tables[table] {
		if q.Matches(rec.Fields) {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func cloneRecord(rec Record) Record {
	return Record{ID: rec.ID, Fields: cloneFields(rec.Fields), CreatedTime: rec.CreatedTime}
}
