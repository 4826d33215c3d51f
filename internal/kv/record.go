package kv

import "bytes"

// Flags is the bitfield of per-record attributes (spec.md §3.3).
type Flags uint8

const (
	// FlagPersistent marks a record for inclusion in the startup snapshot.
	FlagPersistent Flags = 1 << iota
	// FlagSync marks a record for export from a worker to the parent on
	// the next sync.
	FlagSync
	// FlagModProtected denies writes from any module but the owner.
	FlagModProtected
	// FlagModPrivate denies reads and writes from any module but the owner.
	FlagModPrivate
	// FlagModReserved denies writes from any module but the reserving owner.
	FlagModReserved
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }
func (f Flags) Set(bit Flags) Flags { return f | bit }
func (f Flags) Clear(bit Flags) Flags { return f &^ bit }

// ValueKind distinguishes a scalar record from a vector (relation) record.
type ValueKind int

const (
	KindScalar ValueKind = iota
	KindVector
)

// Record is one stored value: the header fields that govern ownership
// and synchronization, plus either a scalar payload or an ordered,
// lexicographically sorted vector of items.
type Record struct {
	Key        string
	Kind       ValueKind
	Flags      Flags
	Generation uint64
	Sequence   uint64
	Owner      string

	Scalar []byte
	Items  [][]byte // vector payload, sorted; nil for scalar records
}

// Clone returns a deep copy of the record, since the store hands
// pointers to callbacks that must not mutate committed state in place.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Scalar != nil {
		out.Scalar = append([]byte(nil), r.Scalar...)
	}
	if r.Items != nil {
		out.Items = make([][]byte, len(r.Items))
		for i, it := range r.Items {
			out.Items[i] = append([]byte(nil), it...)
		}
	}
	return &out
}

// vectorHeaderSlots returns the record's generation/sequence/flags/owner
// encoded as the 4 header slots that precede a vector's data items on
// the wire (spec.md §3.3 invariant 6).
func (r *Record) vectorHeaderSlots() [][]byte {
	return [][]byte{
		encodeUint64(r.Generation),
		encodeUint64(r.Sequence),
		[]byte{byte(r.Flags)},
		[]byte(r.Owner),
	}
}

// VectorSlots renders a vector record as the wire-level slot sequence:
// the 4-slot header followed by the data items starting at slot 4.
func (r *Record) VectorSlots() [][]byte {
	slots := r.vectorHeaderSlots()
	return append(slots, r.Items...)
}

// ParseVectorSlots reconstructs a vector Record from a wire-level slot
// sequence produced by VectorSlots.
func ParseVectorSlots(key string, slots [][]byte) (*Record, error) {
	if len(slots) < 4 {
		return nil, errMalformedSlots
	}
	gen, err := decodeUint64(slots[0])
	if err != nil {
		return nil, err
	}
	seq, err := decodeUint64(slots[1])
	if err != nil {
		return nil, err
	}
	if len(slots[2]) != 1 {
		return nil, errMalformedSlots
	}
	r := &Record{
		Key:        key,
		Kind:       KindVector,
		Generation: gen,
		Sequence:   seq,
		Flags:      Flags(slots[2][0]),
		Owner:      string(slots[3]),
		Items:      slots[4:],
	}
	return r, nil
}

// equalItems reports whether two sorted item vectors are identical.
func equalItems(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
