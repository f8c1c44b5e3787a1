package store

import (
	"container/list"
	"sync"
)

// lruSet remembers up to limit GUIDs, forgetting the least recently
// touched first. A non-positive limit remembers nothing.
type lruSet struct {
	mu    sync.Mutex
	limit int
	order *list.List // front is most recent; values are GUIDs
	index map[string]*list.Element
}

func newLRUSet(limit int) *lruSet {
	return &lruSet{limit: limit, order: list.New(), index: make(map[string]*list.Element)}
}

// contains reports whether guid is remembered and marks it recent.
func (s *lruSet) contains(guid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.index[guid]
	if ok {
		s.order.MoveToFront(el)
	}
	return ok
}

func (s *lruSet) add(guid string) {
	if s.limit <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.index[guid]; ok {
		s.order.MoveToFront(el)
		return
	}
	s.index[guid] = s.order.PushFront(guid)
	for s.order.Len() > s.limit {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.index, oldest.Value.(string))
	}
}

func (s *lruSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
