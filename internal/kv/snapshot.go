package kv

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Snapshot persists the subset of the store flagged FlagPersistent
// (spec.md §6.3) to a length-prefixed binary stream, manually encoded
// in the manner of a wire record rather than via a generic serializer.
//
// Record layout: key, kind, flags, generation, sequence, owner, then
// either one scalar blob or a count-prefixed sequence of item blobs.
// Every string/blob is itself length-prefixed with a uint32.

func writeBlob(w *bufio.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBlob(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// WriteSnapshot encodes every FlagPersistent record to w.
func (s *Store) WriteSnapshot(w io.Writer) error {
	bw := bufio.NewWriter(w)

	var persistent []*Record
	for _, key := range s.order.keys {
		rec := s.records[key]
		if rec.Flags.Has(FlagPersistent) {
			persistent = append(persistent, rec)
		}
	}

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(persistent)))
	if _, err := bw.Write(countBuf[:]); err != nil {
		return err
	}

	for _, rec := range persistent {
		if err := writeRecord(bw, rec); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeRecord(w *bufio.Writer, rec *Record) error {
	if err := writeBlob(w, []byte(rec.Key)); err != nil {
		return err
	}
	if err := w.WriteByte(byte(rec.Kind)); err != nil {
		return err
	}
	if err := w.WriteByte(byte(rec.Flags)); err != nil {
		return err
	}
	if err := writeBlob(w, encodeUint64(rec.Generation)); err != nil {
		return err
	}
	if err := writeBlob(w, encodeUint64(rec.Sequence)); err != nil {
		return err
	}
	if err := writeBlob(w, []byte(rec.Owner)); err != nil {
		return err
	}

	switch rec.Kind {
	case KindScalar:
		if err := writeBlob(w, rec.Scalar); err != nil {
			return err
		}
	case KindVector:
		var countBuf [4]byte
		binary.LittleEndian.PutUint32(countBuf[:], uint32(len(rec.Items)))
		if _, err := w.Write(countBuf[:]); err != nil {
			return err
		}
		for _, item := range rec.Items {
			if err := writeBlob(w, item); err != nil {
				return err
			}
		}
	}
	return nil
}

// EncodeAll serializes every live record regardless of FlagPersistent,
// used to hand a freshly spawned worker its own private snapshot of the
// authoritative store (spec.md §2: "the worker parses the request,
// imports the udev environment into its store snapshot"; §3.3
// invariant 7: a worker only ever mutates that private copy).
func (s *Store) EncodeAll(w io.Writer) error {
	bw := bufio.NewWriter(w)

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(s.order.keys)))
	if _, err := bw.Write(countBuf[:]); err != nil {
		return err
	}
	for _, key := range s.order.keys {
		if err := writeRecord(bw, s.records[key]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// DecodeAll loads records decoded from r into the store exactly as
// ReadSnapshot does, from a stream produced by EncodeAll or
// WriteSnapshot (the wire format is identical; only the filter applied
// before writing differs).
func (s *Store) DecodeAll(r io.Reader) error {
	return s.ReadSnapshot(r)
}

// EncodeSynced serializes every record currently carrying FlagSync: a
// worker's export buffer, handed to the parent over a memfd for
// SYSTEM_CMD_SYNC merging (spec.md §4.6, §6.3's record layout reused
// for the in-memory export format).
func (s *Store) EncodeSynced(w io.Writer) error {
	bw := bufio.NewWriter(w)

	synced := s.IterateSynced()
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(synced)))
	if _, err := bw.Write(countBuf[:]); err != nil {
		return err
	}
	for _, rec := range synced {
		if err := writeRecord(bw, rec); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// DecodeRecords decodes a count-prefixed record stream (the format
// shared by EncodeAll/EncodeSynced/WriteSnapshot) without installing it
// into a store, for callers (the merge path) that need to inspect and
// gate each record individually before committing it.
func DecodeRecords(r io.Reader) ([]*Record, error) {
	br := bufio.NewReader(r)

	var countBuf [4]byte
	if _, err := io.ReadFull(br, countBuf[:]); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	count := binary.LittleEndian.Uint32(countBuf[:])

	out := make([]*Record, 0, count)
	for i := uint32(0); i < count; i++ {
		rec, err := readRecord(br)
		if err != nil {
			return nil, fmt.Errorf("kv: record stream entry %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadSnapshot loads the records decoded from r into the store,
// replacing any record under the same key; records already present
// under other keys are kept. It is meant to be called once, against a freshly created Store.
func (s *Store) ReadSnapshot(r io.Reader) error {
	br := bufio.NewReader(r)

	var countBuf [4]byte
	if _, err := io.ReadFull(br, countBuf[:]); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	count := binary.LittleEndian.Uint32(countBuf[:])

	for i := uint32(0); i < count; i++ {
		rec, err := readRecord(br)
		if err != nil {
			return fmt.Errorf("kv: snapshot record %d: %w", i, err)
		}
		s.records[rec.Key] = rec
		s.order.Insert(rec.Key)
		if rec.Flags.Has(FlagSync) {
			s.synced.Insert(rec.Key)
		}
	}
	return nil
}

func readRecord(r io.Reader) (*Record, error) {
	keyBlob, err := readBlob(r)
	if err != nil {
		return nil, err
	}

	var kindByte, flagsByte [1]byte
	if _, err := io.ReadFull(r, kindByte[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, flagsByte[:]); err != nil {
		return nil, err
	}

	genBlob, err := readBlob(r)
	if err != nil {
		return nil, err
	}
	gen, err := decodeUint64(genBlob)
	if err != nil {
		return nil, err
	}

	seqBlob, err := readBlob(r)
	if err != nil {
		return nil, err
	}
	seq, err := decodeUint64(seqBlob)
	if err != nil {
		return nil, err
	}

	ownerBlob, err := readBlob(r)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		Key:        string(keyBlob),
		Kind:       ValueKind(kindByte[0]),
		Flags:      Flags(flagsByte[0]),
		Generation: gen,
		Sequence:   seq,
		Owner:      string(ownerBlob),
	}

	switch rec.Kind {
	case KindScalar:
		rec.Scalar, err = readBlob(r)
		if err != nil {
			return nil, err
		}
	case KindVector:
		var countBuf [4]byte
		if _, err := io.ReadFull(r, countBuf[:]); err != nil {
			return nil, err
		}
		n := binary.LittleEndian.Uint32(countBuf[:])
		rec.Items = make([][]byte, n)
		for i := uint32(0); i < n; i++ {
			item, err := readBlob(r)
			if err != nil {
				return nil, err
			}
			rec.Items[i] = item
		}
	}
	return rec, nil
}
