package bridge

import (
	"bytes"

	"github.com/sidproject/sid/internal/kv"
)

// EncodeExport serializes workerStore's SYNC-flagged records into a
// worker's export buffer (spec.md §4.6, §6.3's record layout reused for
// the in-memory format crossing the worker→parent boundary via memfd).
func EncodeExport(workerStore *kv.Store) ([]byte, error) {
	var buf bytes.Buffer
	if err := workerStore.EncodeSynced(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Merge decodes a worker's export buffer and applies each record to the
// authoritative store under main-set/main-unset semantics: a write is
// applied iff its sequence number does not regress the stored record's
// (spec.md §3.3 invariant 5, §4.6). Records a worker never touched this
// scan (and so never marked SYNC) simply don't appear in the export and
// are left alone. Returns the number of records actually merged;
// sequence-stale or ownership-refused records are logged and skipped
// rather than aborting the whole merge.
func (b *Bridge) Merge(export []byte) (int, error) {
	records, err := kv.DecodeRecords(bytes.NewReader(export))
	if err != nil {
		return 0, err
	}

	merged := 0
	for _, rec := range records {
		if _, err := b.Store.Set(rec.Key, rec, kv.MainSetPolicy("bridge.Merge", rec.Owner)); err != nil {
			b.log.Warn("merge refused", "key", rec.Key, "owner", rec.Owner, "error", err)
			continue
		}
		merged++
	}
	return merged, nil
}
