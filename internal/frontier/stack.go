package frontier

import "sync"

// Item is one pending page: its URL and how many links away from the seed it is.
type Item struct {
	URL   string
	Depth int
}

// Stack is the LIFO work list of a depth-first crawl.
type Stack struct {
	mu          sync.Mutex
	items       []Item
	totalPushed int
}

func NewStack() *Stack {
	return &Stack{items: make([]Item, 0, 64)}
}

func (s *Stack) Push(it Item) {
	s.mu.Lock()
	s.items = append(s.items, it)
	s.totalPushed++
	s.mu.Unlock()
}

// PushChildren pushes links in reverse so that the first link pops first.
func (s *Stack) PushChildren(links []string, depth int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(links) - 1; i >= 0; i-- {
		s.items = append(s.items, Item{URL: links[i], Depth: depth})
		s.totalPushed++
	}
}

func (s *Stack) Pop() (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.items)
	if n == 0 {
		return Item{}, false
	}
	it := s.items[n-1]
	s.items = s.items[:n-1]
	return it, true
}

func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Stack) TotalPushed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalPushed
}
