package testutil

import (
	"fmt"
	"sync"

	"lapse-go/internal/lapse"
)

// MemorySource is an in-memory lapse.FragmentSource.
type MemorySource struct {
	mu      sync.Mutex
	pending []*lapse.Fragment
	seq     int
	Acked   []string
}

func NewMemorySource() *MemorySource {
	return &MemorySource{}
}

// Push queues a fragment as if the capture pipeline had flushed it.
func (s *MemorySource) Push(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.pending = append(s.pending, &lapse.Fragment{Name: fmt.Sprintf("%06d.lpsf", s.seq), Data: data})
}

func (s *MemorySource) Pending() ([]*lapse.Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*lapse.Fragment, len(s.pending))
	copy(out, s.pending)
	return out, nil
}

func (s *MemorySource) Ack(f *lapse.Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.pending {
		if p.Name == f.Name {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			s.Acked = append(s.Acked, f.Name)
			return nil
		}
	}
	return fmt.Errorf("fragment %s not pending", f.Name)
}

// AckedCount returns how many fragments have been acknowledged.
func (s *MemorySource) AckedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Acked)
}
