package quiz

import (
	"sync"
	"time"
)

// IDSource hands out submission ids derived from the creation time in
// milliseconds. Ids are strictly increasing for the life of the process even
// when two submissions land in the same millisecond or the clock steps back.
type IDSource struct {
	mu   sync.Mutex
	last int64
}

func NewIDSource() *IDSource {
	return &IDSource{}
}

// Next returns the id for a submission created at now.
func (s *IDSource) Next(now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := now.UnixMilli()
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}
