// Package memory provides an in-memory store.RunStore.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/forecast-recon/recon"
	"github.com/warp/forecast-recon/store"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type entry struct {
	run       store.Run
	oldPoints []recon.DataPoint
	newPoints []recon.DataPoint
}

type Memory struct {
	mu   sync.RWMutex
	runs map[string]*entry
}

var _ store.RunStore = (*Memory)(nil)

func New() *Memory {
	return &Memory{runs: make(map[string]*entry)}
}

func (m *Memory) SaveRun(_ context.Context, run store.Run, oldPoints, newPoints []recon.DataPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("%w: %s", store.ErrDuplicateRun, run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.CreatedAt = run.CreatedAt.UTC()
	run.OldPoints = len(oldPoints)
	run.NewPoints = len(newPoints)
	run.Stats = append([]recon.PeriodStat(nil), run.Stats...)
	run.Changes = append([]recon.ChangeEntry(nil), run.Changes...)

	m.runs[run.ID] = &entry{
		run:       run,
		oldPoints: sided(oldPoints, recon.Old),
		newPoints: sided(newPoints, recon.New),
	}
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (*store.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	run := e.run
	run.Stats = append([]recon.PeriodStat(nil), e.run.Stats...)
	run.Changes = append([]recon.ChangeEntry(nil), e.run.Changes...)
	return &run, nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]store.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := m.newestFirstLocked()
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	for i := range runs {
		runs[i].Stats = nil
		runs[i].Changes = nil
	}
	return runs, nil
}

func (m *Memory) DeleteRun(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[id]; !ok {
		return false, nil
	}
	delete(m.runs, id)
	return true, nil
}

func (m *Memory) LoadPoints(_ context.Context, id string) ([]recon.DataPoint, []recon.DataPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.runs[id]
	if !ok {
		return nil, nil, nil
	}
	return append([]recon.DataPoint(nil), e.oldPoints...),
		append([]recon.DataPoint(nil), e.newPoints...), nil
}

func (m *Memory) PruneRuns(_ context.Context, cutoff time.Time, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for i, run := range m.newestFirstLocked() {
		if i < keep || !run.CreatedAt.Before(cutoff) {
			continue
		}
		delete(m.runs, run.ID)
		removed++
	}
	return removed, nil
}

// sided copies points and stamps them with the side they were saved on.
func sided(points []recon.DataPoint, side recon.Revision) []recon.DataPoint {
	if len(points) == 0 {
		return nil
	}
	out := make([]recon.DataPoint, len(points))
	for i, p := range points {
		p.Revision = side
		out[i] = p
	}
	return out
}

// newestFirstLocked returns run headers ordered like the SQL store:
// created_at descending, ties broken by ID.
func (m *Memory) newestFirstLocked() []store.Run {
	runs := make([]store.Run, 0, len(m.runs))
	for _, e := range m.runs {
		runs = append(runs, e.run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID > runs[j].ID
	})
	return runs
}
