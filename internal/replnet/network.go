// Package replnet is an in-memory, single-process reference Transport
// (spec.md §6): it stamps lamport/sender_id on every broadcast record
// and redelivers it to every joined replica, including the sender.
//
// It is a demo/test harness, not a production network transport —
// spec.md §1 explicitly puts the transport out of this module's
// scope. Because every Broadcast call runs to completion on the
// single calling goroutine before the next one starts (spec.md §5's
// single-threaded model), a single monotonically increasing counter
// is already a valid Lamport clock for this reference: broadcasts are
// totally ordered in program order, which is a stronger guarantee
// than the causal partial order spec.md requires. A real transport
// would instead give each replica its own Lamport clock advanced by
// max(local, incoming)+1 and buffer out-of-causal-order deliveries.
package replnet

import (
	"github.com/Importantus/crdt-with-suggestion-mode/core/annotation"
	"github.com/Importantus/crdt-with-suggestion-mode/crdterrors"
)

type deliverer interface {
	Deliver(annotation.Record) error
}

// Network is the shared causal broadcaster joined by every replica in
// a test or demo.
type Network struct {
	lamport  uint64
	replicas map[string]deliverer
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{replicas: make(map[string]deliverer)}
}

// Join returns a Transport bound to replicaID. Construct the
// replica's annotationlog.Log with it, then call Register so the
// network can redeliver broadcasts (including the replica's own) to
// that Log.
func (n *Network) Join(replicaID string) *Transport {
	return &Transport{replicaID: replicaID, network: n}
}

// Register exposes a replica's Deliver method to the network. Logs
// satisfy deliverer structurally (Deliver(annotation.Record) error).
func (n *Network) Register(replicaID string, log deliverer) {
	n.replicas[replicaID] = log
}

// Transport is the per-replica handle annotationlog.Log appends
// through.
type Transport struct {
	replicaID string
	network   *Network
}

// Broadcast stamps partial with the next lamport value and this
// transport's replica id, then delivers it to every registered
// replica, including the sender.
func (t *Transport) Broadcast(partial annotation.Record) error {
	if _, ok := t.network.replicas[t.replicaID]; !ok {
		return crdterrors.New(crdterrors.MalformedRecord, "replica %s broadcast before Register", t.replicaID)
	}
	t.network.lamport++
	rec := partial
	rec.Lamport = t.network.lamport
	rec.SenderID = t.replicaID
	for _, d := range t.network.replicas {
		if err := d.Deliver(rec); err != nil {
			return err
		}
	}
	return nil
}
