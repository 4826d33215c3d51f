package kv

import "sort"

// sortedIndex is a sorted slice of keys supporting O(log n) insert,
// remove, and prefix-bounded range lookup. The store keeps two of
// these: one over every live key, one over the subset currently
// carrying FlagSync, so a sync walk never has to scan the full store.
type sortedIndex struct {
	keys []string
}

func (s *sortedIndex) search(key string) int {
	return sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= key })
}

func (s *sortedIndex) Has(key string) bool {
	i := s.search(key)
	return i < len(s.keys) && s.keys[i] == key
}

func (s *sortedIndex) Insert(key string) {
	i := s.search(key)
	if i < len(s.keys) && s.keys[i] == key {
		return
	}
	s.keys = append(s.keys, "")
	copy(s.keys[i+1:], s.keys[i:])
	s.keys[i] = key
}

func (s *sortedIndex) Remove(key string) {
	i := s.search(key)
	if i < len(s.keys) && s.keys[i] == key {
		s.keys = append(s.keys[:i], s.keys[i+1:]...)
	}
}

// Prefix returns every key with the given prefix, in sorted order.
func (s *sortedIndex) Prefix(prefix string) []string {
	lo := s.search(prefix)
	var out []string
	for i := lo; i < len(s.keys) && hasPrefix(s.keys[i], prefix); i++ {
		out = append(out, s.keys[i])
	}
	return out
}

func (s *sortedIndex) Len() int { return len(s.keys) }

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
