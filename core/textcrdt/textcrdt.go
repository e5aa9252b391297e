// Package textcrdt defines the contract this module requires from an
// external Text CRDT (spec.md §2, §6): an ordered sequence of
// characters over a position.Service, supporting insert/delete by
// index with list semantics that never lose a tombstoned position.
//
// Like position.Service, the Text CRDT is an opaque external
// collaborator per spec.md §1. internal/rga provides a reference
// implementation.
package textcrdt

import "github.com/Importantus/crdt-with-suggestion-mode/core/position"

// EventKind distinguishes the two wire events a Text CRDT emits.
type EventKind int

const (
	EventInsert EventKind = iota
	EventDelete
)

// Meta carries transport-stamped causal metadata for a mutation that
// arrived over the wire (spec.md §6's event stream `meta` field).
type Meta struct {
	Lamport  uint64
	SenderID string
}

// Event is published to every local subscriber whenever the document
// mutates, whether the mutation originated locally or arrived over the
// transport. Meta is nil for purely local text (the annotation layer's
// own Lamport stamping happens in core/annotation, independently of
// text mutations); a real replicated Text CRDT implementation sets it
// for mutations it received remotely.
type Event struct {
	Kind      EventKind
	Index     int
	Values    []rune
	Positions []position.Pos
	Meta      *Meta
}

// Unsubscribe cancels a Document.Subscribe registration.
type Unsubscribe func()

// Document is the contract consumed by the track-changes engine and
// the public API.
type Document interface {
	position.Service

	// CharAt returns the rune currently at index, or ok=false if out of
	// range.
	CharAt(index int) (r rune, ok bool)

	// Insert splits text into runes and inserts them starting at index,
	// returning the Pos minted for each inserted character in order.
	Insert(index int, text string) ([]position.Pos, error)

	// Delete removes count visible characters starting at index.
	Delete(index, count int) error

	// DeleteRange removes every currently-present character whose
	// position lies in [start, end] inclusive, resolved via the
	// service's own ordering rather than by index — used by the engine
	// to delete a range addressed by stored Pos endpoints (spec.md
	// §4.2.1's accept/decline follow-up deletes).
	DeleteRange(start, end position.Pos) error

	// String renders the currently visible text.
	String() string

	// Subscribe registers handler to be called synchronously, in order,
	// for every Insert/Delete this document performs from now on.
	Subscribe(handler func(Event)) Unsubscribe
}
