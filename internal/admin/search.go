package admin

import (
	"context"
	"sync"
)

// Search keeps the full user collection and re-filters it on every term, so
// successive terms never narrow an already filtered list.
type Search struct {
	mu       sync.Mutex
	all      []UserRow
	term     string
	filtered []UserRow
}

func NewSearch(ctx context.Context, review *Review) (*Search, error) {
	accounts, err := review.list(ctx)
	s := &Search{all: userRows(accounts)}
	s.filtered = FilterUsers(s.all, "")
	return s, err
}

// Search loads the user collection once for incremental filtering.
func (r *Review) Search(ctx context.Context) (*Search, error) {
	return NewSearch(ctx, r)
}

func (s *Search) SetTerm(term string) []UserRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.term = term
	s.filtered = FilterUsers(s.all, term)
	return s.snapshot()
}

func (s *Search) Term() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.term
}

func (s *Search) Results() []UserRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Search) snapshot() []UserRow {
	out := make([]UserRow, len(s.filtered))
	copy(out, s.filtered)
	return out
}
