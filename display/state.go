// Package display holds the latest scale reading for presentation layers.
package display

import (
	"sync"
	"time"

	"weight-monitor/types"
)

type State struct {
	mu   sync.RWMutex
	snap types.DisplaySnapshot
	now  func() time.Time
}

func New() *State {
	return &State{now: time.Now}
}

// Update replaces the snapshot with r.
func (s *State) Update(r types.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = types.DisplaySnapshot{
		HasReading: true,
		Reading:    r,
		Stability:  StabilityOf(r.StatusCode),
		TypeLabel:  TypeLabelOf(r.TypeCode),
		UpdatedAt:  s.now(),
		Seq:        s.snap.Seq + 1,
	}
}

// Current returns the latest snapshot, or the zero snapshot before the first reading.
func (s *State) Current() types.DisplaySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func StabilityOf(statusCode string) types.Stability {
	if statusCode == types.StatusCodeStable {
		return types.StabilityStable
	}
	return types.StabilityUnstable
}

func TypeLabelOf(typeCode string) string {
	if typeCode == types.TypeCodeGross {
		return types.TypeLabelGross
	}
	return typeCode
}
