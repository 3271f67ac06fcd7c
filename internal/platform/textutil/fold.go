package textutil

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Fold returns a case-insensitive comparison key for s using Unicode case
// folding. Leading and trailing whitespace does not participate in the key.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// FoldSet is a case-insensitive string set. The first spelling seen for a key
// is the one reported back by Values.
type FoldSet struct {
	members map[string]string
}

// NewFoldSet builds a set containing the given values. Empty strings are
// ignored.
func NewFoldSet(values ...string) *FoldSet {
	s := &FoldSet{members: make(map[string]string, len(values))}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v and reports whether it was not already present. Empty or
// whitespace-only values are ignored.
func (s *FoldSet) Add(v string) bool {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return false
	}
	key := Fold(trimmed)
	if _, ok := s.members[key]; ok {
		return false
	}
	s.members[key] = trimmed
	return true
}

// Contains reports whether v is in the set.
func (s *FoldSet) Contains(v string) bool {
	if s == nil || len(s.members) == 0 {
		return false
	}
	_, ok := s.members[Fold(v)]
	return ok
}

// Len reports the number of distinct members.
func (s *FoldSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.members)
}

// Values returns the first-seen spellings sorted ascending.
func (s *FoldSet) Values() []string {
	if s == nil || len(s.members) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.members))
	for _, v := range s.members {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
