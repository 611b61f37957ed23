package classifier

// Sequencer hands out tickets and releases completed values strictly in
// ticket order. It is not safe for concurrent use; the session loop owns it.
type Sequencer[T any] struct {
	next    uint64
	issued  uint64
	pending map[uint64]T
}

func NewSequencer[T any]() *Sequencer[T] {
	return &Sequencer[T]{pending: make(map[uint64]T)}
}

func (s *Sequencer[T]) Ticket() uint64 {
	t := s.issued
	s.issued++
	return t
}

// Done records the value for ticket and returns every value that is now
// releasable, oldest first.
func (s *Sequencer[T]) Done(ticket uint64, v T) []T {
	if ticket < s.next {
		return nil
	}
	s.pending[ticket] = v

	var ready []T
	for {
		v, ok := s.pending[s.next]
		if !ok {
			break
		}
		delete(s.pending, s.next)
		ready = append(ready, v)
		s.next++
	}
	return ready
}

// Outstanding is the number of tickets not yet released.
func (s *Sequencer[T]) Outstanding() int {
	return int(s.issued - s.next)
}
