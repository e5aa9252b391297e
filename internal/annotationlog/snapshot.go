package annotationlog

import "github.com/Importantus/crdt-with-suggestion-mode/core/annotation"

// Snapshot is the serialization shape of the log: parallel arrays
// ChangeIDs and Lengths, where ChangeIDs[i] is an annotation id and
// Lengths[i] is how many records belong to it, and Records, every
// group's records concatenated in order. There is no separate lamport
// array: each Record carries its own Lamport, which LoadSnapshot reads.
type Snapshot struct {
	ChangeIDs []annotation.ID
	Lengths   []int
	Records   []annotation.Record
}

// Snapshot serializes the log's current state, grouped by change id.
func (l *Log) Snapshot() Snapshot {
	var s Snapshot
	for id, entries := range l.history {
		ordered := append([]stamped(nil), entries...)
		sortStamped(ordered)
		s.ChangeIDs = append(s.ChangeIDs, id)
		s.Lengths = append(s.Lengths, len(ordered))
		for _, e := range ordered {
			s.Records = append(s.Records, e.record)
		}
	}
	return s
}

// LoadSnapshot merges snap into the log. Loading is idempotent per
// spec.md §6: for each change id, only records with Lamport strictly
// greater than the highest already held for that id are applied, so
// loading the same snapshot twice leaves state unchanged (P3). Loaded
// records are not republished on the hub — snapshot join is a bulk
// state restore, not a live delivery; callers bootstrap derived state
// from AllOrdered() afterward.
func (l *Log) LoadSnapshot(snap Snapshot) error {
	offset := 0
	for i, id := range snap.ChangeIDs {
		length := snap.Lengths[i]
		group := snap.Records[offset : offset+length]
		offset += length

		maxLamport := uint64(0)
		for _, e := range l.history[id] {
			if e.record.Lamport > maxLamport {
				maxLamport = e.record.Lamport
			}
		}
		for _, rec := range group {
			if err := rec.Validate(); err != nil {
				return err
			}
			if rec.Lamport <= maxLamport {
				continue
			}
			l.nextSeq++
			l.history[id] = append(l.history[id], stamped{record: rec, seq: l.nextSeq})
			maxLamport = rec.Lamport
		}
	}
	return nil
}
