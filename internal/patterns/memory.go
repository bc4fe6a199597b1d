package patterns

import (
	"context"
	"sort"
	"sync"
	"time"

	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/internal/normalize"
)

// MemoryRepository is an in-process Repository. It backs tests and one-off
// CLI runs that do not name a database.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[models.PatternKind]map[string]*models.PatternRecord
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	records := make(map[models.PatternKind]map[string]*models.PatternRecord)
	for _, kind := range models.AllPatternKinds() {
		records[kind] = make(map[string]*models.PatternRecord)
	}
	return &MemoryRepository{records: records}
}

func (m *MemoryRepository) Match(_ context.Context, kind models.PatternKind, normalized string) ([]*models.PatternRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.PatternRecord
	for pattern, rec := range m.records[kind] {
		if normalize.Contains(normalized, pattern) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (m *MemoryRepository) Get(_ context.Context, kind models.PatternKind, pattern string) (*models.PatternRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec, ok := m.records[kind][pattern]; ok {
		return rec.Clone(), nil
	}
	return nil, nil
}

func (m *MemoryRepository) List(_ context.Context, kind models.PatternKind) ([]*models.PatternRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.PatternRecord
	for k, table := range m.records {
		if kind != "" && k != kind {
			continue
		}
		for _, rec := range table {
			out = append(out, rec.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Pattern < out[j].Pattern
	})
	return out, nil
}

func (m *MemoryRepository) Upsert(_ context.Context, rec *models.PatternRecord) (UpsertOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table := m.table(rec.Kind)
	existing, ok := table[rec.Pattern]
	if !ok {
		table[rec.Pattern] = rec.Clone()
		return Inserted, nil
	}

	if existing.IsManualOverride && !rec.IsManualOverride {
		return Skipped, nil
	}

	existing.Value = rec.Value
	existing.IsManualOverride = existing.IsManualOverride || rec.IsManualOverride
	existing.CreatedBy = rec.CreatedBy
	existing.NormalizerVersion = rec.NormalizerVersion
	existing.UsageCount++
	existing.UpdatedAt = rec.UpdatedAt
	return Updated, nil
}

func (m *MemoryRepository) Save(_ context.Context, rec *models.PatternRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.table(rec.Kind)[rec.Pattern] = rec.Clone()
	return nil
}

func (m *MemoryRepository) IncrementUsage(_ context.Context, kind models.PatternKind, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[kind][pattern]; ok {
		rec.UsageCount++
		rec.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, kind models.PatternKind, pattern string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[kind][pattern]; !ok {
		return false, nil
	}
	delete(m.records[kind], pattern)
	return true, nil
}

func (m *MemoryRepository) DeleteKind(_ context.Context, kind models.PatternKind) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, table := range m.records {
		if kind != "" && k != kind {
			continue
		}
		n += int64(len(table))
		m.records[k] = make(map[string]*models.PatternRecord)
	}
	return n, nil
}

// table must be called with mu held for writing.
func (m *MemoryRepository) table(kind models.PatternKind) map[string]*models.PatternRecord {
	t, ok := m.records[kind]
	if !ok {
		t = make(map[string]*models.PatternRecord)
		m.records[kind] = t
	}
	return t
}
