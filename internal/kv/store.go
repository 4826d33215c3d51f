package kv

import (
	"github.com/sidproject/sid/internal/siderr"
)

// Decision is what an update callback tells the store to do with a
// proposed mutation.
type Decision int

const (
	// Abort leaves the store unchanged.
	Abort Decision = iota
	// Commit replaces the old record (if any) with the new one.
	Commit
)

// UpdateArg is threaded through an update callback so ownership-policy
// callbacks can report a refusal reason alongside their Decision
// (spec.md §7: ACCESS_DENIED / PERMISSION / BUSY are reported this way,
// not as a bare abort).
type UpdateArg struct {
	Decision Decision
	Refusal  *siderr.Error
}

// UpdateFunc inspects the record currently stored under a key (nil if
// none) and the proposed new record, then sets arg.Decision (and,
// on refusal, arg.Refusal).
type UpdateFunc func(old, proposed *Record, arg *UpdateArg)

// Store is sid's in-memory keyed record store. It is not safe for
// concurrent use: like the rest of the daemon, a Store is owned by a
// single cooperative event loop (spec.md §5) and needs no locking.
type Store struct {
	records map[string]*Record
	order   sortedIndex
	synced  sortedIndex
}

// New returns an empty Store.
func New() *Store {
	return &Store{records: make(map[string]*Record)}
}

// Get looks up key, enforcing the MOD_PRIVATE read restriction: a
// private record is only visible to its own owner.
func (s *Store) Get(key, caller string) (*Record, error) {
	rec, ok := s.records[key]
	if !ok {
		return nil, siderr.NewKey("kv.Get", key, siderr.KindNotFound, "no such key")
	}
	if rec.Flags.Has(FlagModPrivate) && rec.Owner != caller {
		return nil, siderr.NewKey("kv.Get", key, siderr.KindAccessDenied, "key is private to another owner")
	}
	return rec.Clone(), nil
}

// Peek looks up key without any ownership check; used internally by
// the delta engine and by trusted core callers (the bridge, snapshotting).
func (s *Store) Peek(key string) (*Record, bool) {
	rec, ok := s.records[key]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Set applies cb to decide whether to commit proposed under key, and
// commits it if so. It returns the committed record (nil on abort) and
// any refusal error the callback attached.
func (s *Store) Set(key string, proposed *Record, cb UpdateFunc) (*Record, error) {
	old := s.records[key]
	proposed = proposed.Clone()
	proposed.Key = key

	arg := &UpdateArg{}
	if cb != nil {
		cb(old, proposed, arg)
	} else {
		arg.Decision = Commit
	}

	if arg.Decision != Commit {
		if arg.Refusal != nil {
			return nil, arg.Refusal
		}
		return nil, nil
	}

	s.commit(key, old, proposed)
	return proposed.Clone(), nil
}

// Unset removes key if cb (given the current record and a nil
// proposed) decides to commit. Unsetting an absent key is a no-op.
func (s *Store) Unset(key string, cb UpdateFunc) error {
	old, ok := s.records[key]
	if !ok {
		return nil
	}

	arg := &UpdateArg{}
	if cb != nil {
		cb(old, nil, arg)
	} else {
		arg.Decision = Commit
	}

	if arg.Decision != Commit {
		if arg.Refusal != nil {
			return arg.Refusal
		}
		return nil
	}

	s.commit(key, old, nil)
	return nil
}

// commit installs (or removes, if next is nil) the record under key and
// maintains both sorted indexes.
func (s *Store) commit(key string, old, next *Record) {
	if next == nil {
		delete(s.records, key)
		s.order.Remove(key)
		if old != nil && old.Flags.Has(FlagSync) {
			s.synced.Remove(key)
		}
		return
	}

	s.records[key] = next
	s.order.Insert(key)

	wasSynced := old != nil && old.Flags.Has(FlagSync)
	isSynced := next.Flags.Has(FlagSync)
	switch {
	case isSynced && !wasSynced:
		s.synced.Insert(key)
	case !isSynced && wasSynced:
		s.synced.Remove(key)
	}
}

// Iterate returns every live record whose key has the given prefix, in
// key order. Pass "" to walk the entire store.
func (s *Store) Iterate(prefix string) []*Record {
	keys := s.order.Prefix(prefix)
	out := make([]*Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.records[k].Clone())
	}
	return out
}

// IterateSynced returns every record currently carrying FlagSync, in
// key order, without scanning records that aren't.
func (s *Store) IterateSynced() []*Record {
	keys := s.synced.keys
	out := make([]*Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.records[k].Clone())
	}
	return out
}

// Stats reports the live record count and the synced-subset count.
type Stats struct {
	Records int
	Synced  int
}

func (s *Store) Stats() Stats {
	return Stats{Records: s.order.Len(), Synced: s.synced.Len()}
}
