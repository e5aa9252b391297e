// Package crdt is the public facade: one Document per replica, wiring
// the reference text CRDT (internal/rga), the annotation log
// (internal/annotationlog) and the track-changes engine (core/engine)
// together behind the six operations spec.md §4.2.5 names and the
// event stream spec.md §5/§6 describes.
package crdt

import (
	"github.com/juju/clock"
	"github.com/juju/loggo/v2"

	"github.com/Importantus/crdt-with-suggestion-mode/core/annotation"
	"github.com/Importantus/crdt-with-suggestion-mode/core/engine"
	"github.com/Importantus/crdt-with-suggestion-mode/core/position"
	"github.com/Importantus/crdt-with-suggestion-mode/internal/annotationlog"
	"github.com/Importantus/crdt-with-suggestion-mode/internal/rga"
)

var logger = loggo.GetLogger("crdt")

// Config configures one replica's Document.
type Config struct {
	// ReplicaID is this replica's site identifier, minting every
	// position. Log appends are stamped by the Transport with the id it
	// was joined under. Must be unique across the replicas sharing a
	// Transport.
	ReplicaID string
	// UserID attributes every annotation operation this replica issues.
	// Defaults to ReplicaID if empty.
	UserID string
	// Clock stamps annotation record timestamps (display only).
	// Defaults to clock.WallClock.
	Clock clock.Clock
}

// Document is one replica of the text, its annotation log and the
// track-changes view derived from it.
type Document struct {
	cfg  Config
	text *rga.Doc
	log  *annotationlog.Log
	eng  *engine.Engine
}

// New constructs a replica bound to transport. Annotation records
// appended by any replica sharing the Transport (e.g.
// internal/replnet.Network) are delivered to every registered replica.
// The text is held in a Document-local internal/rga.Doc and is not sent
// through the Transport, so text edits made on one Document do not
// reach another.
func New(cfg Config, transport annotationlog.Transport) *Document {
	if cfg.UserID == "" {
		cfg.UserID = cfg.ReplicaID
	}
	text := rga.New(cfg.ReplicaID)
	log := annotationlog.New(cfg.ReplicaID, transport)
	eng := engine.New(engine.Config{UserID: cfg.UserID, Clock: cfg.Clock}, text, log)
	logger.Debugf("replica %s joined as user %s", cfg.ReplicaID, cfg.UserID)
	return &Document{cfg: cfg, text: text, log: log, eng: eng}
}

// Deliver forwards to the underlying annotation log so a Document can
// be registered directly with a Transport's network (e.g.
// internal/replnet.Network.Register), without callers reaching past
// the facade to get at the log.
func (d *Document) Deliver(rec annotation.Record) error {
	return d.log.Deliver(rec)
}

// String renders the currently visible text.
func (d *Document) String() string { return d.text.String() }

// Length returns the currently visible character count.
func (d *Document) Length() int { return d.text.Length() }

// Insert inserts text at index, optionally as a tracked suggestion
// (spec.md §4.2.5).
func (d *Document) Insert(index int, text string, isSuggestion bool) error {
	return d.eng.Insert(index, text, isSuggestion)
}

// Delete deletes count characters at index, optionally as a tracked
// suggestion (spec.md §4.2.5).
func (d *Document) Delete(index, count int, isSuggestion bool) error {
	return d.eng.Delete(index, count, isSuggestion)
}

// AcceptSuggestion resolves a suggestion in its author's favor: an
// InsertSuggestion's text is kept, a DeleteSuggestion's text is
// removed (spec.md §4.2.5).
func (d *Document) AcceptSuggestion(id annotation.ID) error {
	return d.eng.AcceptSuggestion(id)
}

// DeclineSuggestion resolves a suggestion against its author: an
// InsertSuggestion's text is removed, a DeleteSuggestion's text is
// kept (spec.md §4.2.5).
func (d *Document) DeclineSuggestion(id annotation.ID) error {
	return d.eng.DeclineSuggestion(id)
}

// AddComment attaches a comment to [startIndex, endIndex) (spec.md
// §4.2.5). When endIndex equals startIndex the comment covers the
// single character at startIndex.
func (d *Document) AddComment(startIndex, endIndex int, text string) error {
	return d.eng.AddComment(startIndex, endIndex, text)
}

// RemoveComment removes a previously added comment (spec.md §4.2.5).
func (d *Document) RemoveComment(id annotation.ID) error {
	return d.eng.RemoveComment(id)
}

// AnnotationsAt returns every annotation crossing the data point at or
// immediately before the character currently at index (spec.md
// §4.2.4). ok is false if index is out of range.
func (d *Document) AnnotationsAt(index int) (annotations []annotation.Record, ok bool) {
	p, ok := d.text.PositionOf(index)
	if !ok {
		return nil, false
	}
	return d.eng.AnnotationsAt(p), true
}

// ActiveAnnotations returns one entry per currently-live annotation
// (spec.md §4.2.4).
func (d *Document) ActiveAnnotations() []annotation.Record {
	return d.eng.ActiveAnnotations()
}

// Subscribe registers handler for every UI event this replica emits
// from now on (spec.md §5/§6): engine.InsertEvent, engine.DeleteEvent,
// engine.AnnotationAddedEvent, engine.AnnotationRemovedEvent or
// engine.FormatChangeEvent.
func (d *Document) Subscribe(handler func(interface{})) func() {
	return d.eng.Subscribe(handler)
}

// Snapshot serializes the annotation log for storage or transfer
// (spec.md §6). The text CRDT's own persistence is out of this
// module's scope (spec.md §1); callers that need to resume a replica
// from cold storage must replay its text history by other means
// before calling LoadSnapshot.
func (d *Document) Snapshot() annotationlog.Snapshot {
	return d.log.Snapshot()
}

// LoadSnapshot merges snap into the replica's annotation log
// (idempotent, spec.md P3) and rebuilds the derived view from the
// resulting history so AnnotationsAt/ActiveAnnotations reflect it
// immediately, independent of replay order (spec.md P1).
func (d *Document) LoadSnapshot(snap annotationlog.Snapshot) error {
	if err := d.log.LoadSnapshot(snap); err != nil {
		return err
	}
	for _, rec := range d.log.AllOrdered() {
		d.eng.Replay(rec)
	}
	return nil
}

// position re-exported for callers that need to address a specific
// character without going through an index (e.g. cross-replica
// annotation targeting). Kept as a type alias so core/position stays
// the single source of truth.
type Pos = position.Pos
