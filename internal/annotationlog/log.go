// Package annotationlog implements the Annotation Log (spec.md §4.1):
// one replica's in-memory history of annotation records, publishing
// each record to subscribers exactly once, in the order the Transport
// delivers it.
package annotationlog

import (
	"sort"

	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"

	"github.com/Importantus/crdt-with-suggestion-mode/core/annotation"
	"github.com/Importantus/crdt-with-suggestion-mode/crdterrors"
)

var logger = loggo.GetLogger("crdt.annotationlog")

const recordTopic = "annotation-record"

// Transport is the external collaborator (spec.md §6) that stamps
// lamport/sender_id on every appended record and redelivers it to
// every joined replica, including the sender, in causal order.
type Transport interface {
	Broadcast(partial annotation.Record) error
}

// stamped pairs a delivered record with this replica's local delivery
// sequence, used only to break same-(lamport,sender) ties that spec.md
// §4.2.6 says happen "only within a single transaction", resolved by
// order of emission.
type stamped struct {
	record annotation.Record
	seq    uint64
}

// Log is one replica's copy of the annotation log.
type Log struct {
	replicaID string
	transport Transport
	hub       *pubsub.SimpleHub
	history   map[annotation.ID][]stamped
	nextSeq   uint64
}

// New constructs a Log for replicaID, publishing deliveries on its own
// pubsub hub and sending appends through transport.
func New(replicaID string, transport Transport) *Log {
	return &Log{
		replicaID: replicaID,
		transport: transport,
		hub:       pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{Logger: logger}),
		history:   make(map[annotation.ID][]stamped),
	}
}

// Append hands partial to the transport to be stamped and
// redelivered. The caller supplies everything except Lamport and
// SenderID (spec.md §4.1); it observes the result via Subscribe, not
// via this call's return value.
func (l *Log) Append(partial annotation.Record) error {
	return l.transport.Broadcast(partial)
}

// Deliver is invoked by the Transport exactly once per record, in
// causal order, whether the record originated here or remotely. A
// decode/shape failure (MalformedRecord) is fatal and returned to the
// transport; any other error is a transport contract violation.
func (l *Log) Deliver(rec annotation.Record) error {
	if rec.SenderID == "" {
		return crdterrors.New(crdterrors.MalformedRecord, "delivered record %s missing sender_id stamp", rec.ID)
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	l.nextSeq++
	change := rec.ChangeID()
	l.history[change] = append(l.history[change], stamped{record: rec, seq: l.nextSeq})
	logger.Tracef("delivered %s %s/%s for change %s (lamport=%d sender=%s)",
		rec.ID, rec.Action, rec.Description, change, rec.Lamport, rec.SenderID)
	done := l.hub.Publish(recordTopic, rec)
	<-done
	return nil
}

// Subscribe registers onAdd to be called once, synchronously, for
// every record this replica delivers from now on (spec.md §4.1).
func (l *Log) Subscribe(onAdd func(annotation.Record)) func() {
	return l.hub.Subscribe(recordTopic, func(_ string, data interface{}) {
		onAdd(data.(annotation.Record))
	})
}

// History returns the full record history for a change id, ordered by
// (lamport, sender_id, delivery sequence) — the order spec.md §4
// requires for folding Updates and finding dominating Removals.
func (l *Log) History(id annotation.ID) []annotation.Record {
	entries := append([]stamped(nil), l.history[id]...)
	sortStamped(entries)
	out := make([]annotation.Record, len(entries))
	for i, e := range entries {
		out[i] = e.record
	}
	return out
}

// AllOrdered returns every delivered record across every change id,
// ordered by (lamport, sender_id, delivery sequence). It is used to
// bootstrap an Engine's derived view from an already-populated log
// (e.g. after LoadSnapshot) — per spec.md's convergence property P1,
// replay order doesn't affect the resulting derived view.
func (l *Log) AllOrdered() []annotation.Record {
	var all []stamped
	for _, entries := range l.history {
		all = append(all, entries...)
	}
	sortStamped(all)
	out := make([]annotation.Record, len(all))
	for i, e := range all {
		out[i] = e.record
	}
	return out
}

func sortStamped(entries []stamped) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].record, entries[j].record
		if a.Lamport != b.Lamport {
			return a.Lamport < b.Lamport
		}
		if a.SenderID != b.SenderID {
			return a.SenderID < b.SenderID
		}
		return entries[i].seq < entries[j].seq
	})
}
