package services

import (
	"fmt"
	"sort"
	"sync"

	"budgetdash/internal/core"
)

// Slot is one entry of the income selection panel.
type Slot struct {
	ID       int
	JobTitle string
}

// Selection tracks which income sources the user has chosen to compare.
// There is always at least one slot.
type Selection struct {
	mu    sync.Mutex
	slots []Slot
}

func NewSelection(first string) *Selection {
	return &Selection{slots: []Slot{{ID: 1, JobTitle: first}}}
}

// Add appends a slot numbered one past the highest and returns its ID.
func (s *Selection) Add(title string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := 1
	for _, slot := range s.slots {
		if slot.ID >= next {
			next = slot.ID + 1
		}
	}
	s.slots = append(s.slots, Slot{ID: next, JobTitle: title})
	return next
}

// Remove drops slot id unless it is the last one left.
func (s *Selection) Remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.slots) <= 1 {
		return
	}
	for i, slot := range s.slots {
		if slot.ID == id {
			s.slots = append(s.slots[:i], s.slots[i+1:]...)
			return
		}
	}
}

func (s *Selection) Reset(first string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = []Slot{{ID: 1, JobTitle: first}}
}

func (s *Selection) Set(id int, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.slots {
		if s.slots[i].ID == id {
			s.slots[i].JobTitle = title
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrUnknownSlot, id)
}

// Slots returns a copy ordered by slot ID.
func (s *Selection) Slots() []Slot {
	s.mu.Lock()
	out := append([]Slot(nil), s.slots...)
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Selected resolves the chosen job titles against the income table. Titles
// that no longer exist are skipped; duplicates are kept, one per slot.
func (s *Selection) Selected(sources []core.IncomeSource) []core.IncomeSource {
	byTitle := make(map[string]core.IncomeSource, len(sources))
	for _, src := range sources {
		if _, ok := byTitle[src.JobTitle]; !ok {
			byTitle[src.JobTitle] = src
		}
	}
	var out []core.IncomeSource
	for _, slot := range s.Slots() {
		if src, ok := byTitle[slot.JobTitle]; ok {
			out = append(out, src)
		}
	}
	return out
}
