// audit/memory.go
package audit

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps the decision trail in process memory. Used when no
// Elasticsearch URL is configured, and by tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records []DecisionRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Store(ctx context.Context, record DecisionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *MemoryRepository) Query(ctx context.Context, filter Filter) ([]DecisionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []DecisionRecord
	for _, record := range r.records {
		if !filter.From.IsZero() && record.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && record.Timestamp.After(filter.To) {
			continue
		}
		if filter.PrincipalID != "" && record.PrincipalID != filter.PrincipalID {
			continue
		}
		if filter.ResourceID != "" && record.ResourceID != filter.ResourceID {
			continue
		}
		if filter.Outcome != "" && record.Outcome != filter.Outcome {
			continue
		}
		matched = append(matched, record)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Len reports how many records have been stored.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
