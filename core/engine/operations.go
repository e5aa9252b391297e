package engine

import (
	"github.com/google/uuid"

	"github.com/Importantus/crdt-with-suggestion-mode/core/annotation"
	"github.com/Importantus/crdt-with-suggestion-mode/core/position"
	"github.com/Importantus/crdt-with-suggestion-mode/crdterrors"
)

func newID() annotation.ID { return annotation.ID(uuid.NewString()) }

// Insert inserts text at index. When isSuggestion is false (or text is
// empty) it is a plain text mutation. Otherwise it also appends an
// annotation record: extending an existing live InsertSuggestion by
// this user whose end touches index via an Update, or else a new
// Addition covering exactly the inserted range (spec.md §4.2.5).
func (e *Engine) Insert(index int, text string, isSuggestion bool) error {
	// Adjacency and the open-start endpoint both depend on where index
	// sits *before* this insert grows the document — resolve them now,
	// against the pre-insert state, not after doc.Insert has already
	// moved Length() and every index past this point.
	var extendID annotation.ID
	var extending bool
	if isSuggestion && len(text) > 0 {
		_, extendID, extending = e.findAdjacentInsertSuggestion(index)
	}
	var start *position.Pos
	if isSuggestion && len(text) > 0 && !extending && index > 0 {
		if p, ok := e.doc.PositionOf(index - 1); ok {
			start = &p
		}
	}

	positions, err := e.doc.Insert(index, text)
	if err != nil {
		return err
	}
	if !isSuggestion || len(positions) == 0 {
		return nil
	}

	var end *position.Pos
	if p, ok := e.doc.PositionOf(index + len(positions)); ok {
		end = &p
	}

	if extending {
		rec := annotation.Record{
			ID:                newID(),
			Kind:              annotation.KindSuggestion,
			Action:            annotation.ActionUpdate,
			Description:       annotation.DescRangeUpdate,
			UserID:            e.userID,
			Timestamp:         e.now(),
			DependentOn:       extendID,
			End:               end,
			EndClosed:         false,
			UpdatedProperties: []annotation.UpdatableField{annotation.FieldEnd, annotation.FieldEndClosed},
		}
		return e.log.Append(rec)
	}

	rec := annotation.Record{
		ID:          newID(),
		Kind:        annotation.KindSuggestion,
		Action:      annotation.ActionAddition,
		Description: annotation.DescInsertSuggestion,
		UserID:      e.userID,
		Timestamp:   e.now(),
		Start:       start,
		End:         end,
		StartClosed: false,
		EndClosed:   false,
	}
	return e.log.Append(rec)
}

// Delete deletes count characters at index. When isSuggestion is
// false, or the range already sits entirely inside this user's own
// live InsertSuggestion, it is a plain text mutation (collapsing a
// not-yet-accepted insert is not itself worth suggesting). Otherwise
// it extends an adjacent live DeleteSuggestion by this user via an
// Update, or appends a new Addition covering [index, index+count)
// (spec.md §4.2.5).
func (e *Engine) Delete(index, count int, isSuggestion bool) error {
	if count <= 0 {
		return nil
	}
	if !isSuggestion {
		return e.doc.Delete(index, count)
	}
	if _, ok := e.findCoveringInsertSuggestion(index, count); ok {
		return e.doc.Delete(index, count)
	}

	if _, id, extendRight, ok := e.findAdjacentDeleteSuggestion(index, count); ok {
		var rec annotation.Record
		if extendRight {
			p, ok := e.doc.PositionOf(index + count - 1)
			if !ok {
				return crdterrors.New(crdterrors.InvalidRange, "delete(%d,%d) out of range", index, count)
			}
			rec = annotation.Record{
				ID: newID(), Kind: annotation.KindSuggestion, Action: annotation.ActionUpdate,
				Description: annotation.DescRangeUpdate, UserID: e.userID, Timestamp: e.now(),
				DependentOn: id, End: &p, EndClosed: true,
				UpdatedProperties: []annotation.UpdatableField{annotation.FieldEnd, annotation.FieldEndClosed},
			}
		} else {
			p, ok := e.doc.PositionOf(index)
			if !ok {
				return crdterrors.New(crdterrors.InvalidRange, "delete(%d,%d) out of range", index, count)
			}
			rec = annotation.Record{
				ID: newID(), Kind: annotation.KindSuggestion, Action: annotation.ActionUpdate,
				Description: annotation.DescRangeUpdate, UserID: e.userID, Timestamp: e.now(),
				DependentOn: id, Start: &p, StartClosed: true,
				UpdatedProperties: []annotation.UpdatableField{annotation.FieldStart, annotation.FieldStartClosed},
			}
		}
		return e.log.Append(rec)
	}

	startPos, ok := e.doc.PositionOf(index)
	if !ok {
		return crdterrors.New(crdterrors.InvalidRange, "delete(%d,%d) out of range", index, count)
	}
	endPos, ok := e.doc.PositionOf(index + count - 1)
	if !ok {
		return crdterrors.New(crdterrors.InvalidRange, "delete(%d,%d) out of range", index, count)
	}
	rec := annotation.Record{
		ID: newID(), Kind: annotation.KindSuggestion, Action: annotation.ActionAddition,
		Description: annotation.DescDeleteSuggestion, UserID: e.userID, Timestamp: e.now(),
		Start: &startPos, End: &endPos, StartClosed: true, EndClosed: true,
	}
	return e.log.Append(rec)
}

// AcceptSuggestion appends a Removal(AcceptSuggestion) dependent on id
// (spec.md §4.2.5). The follow-up text delete, if any, happens when
// the Removal is delivered back to this replica, not here — see
// processRecord/applySideEffects.
func (e *Engine) AcceptSuggestion(id annotation.ID) error {
	return e.log.Append(annotation.Record{
		ID: newID(), Kind: annotation.KindSuggestion, Action: annotation.ActionRemoval,
		Description: annotation.DescAcceptSuggestion, UserID: e.userID, Timestamp: e.now(), DependentOn: id,
	})
}

// DeclineSuggestion appends a Removal(DeclineSuggestion) dependent on
// id (spec.md §4.2.5).
func (e *Engine) DeclineSuggestion(id annotation.ID) error {
	return e.log.Append(annotation.Record{
		ID: newID(), Kind: annotation.KindSuggestion, Action: annotation.ActionRemoval,
		Description: annotation.DescDeclineSuggestion, UserID: e.userID, Timestamp: e.now(), DependentOn: id,
	})
}

// AddComment appends an Addition(AddComment) covering
// [startIndex, endIndex) (spec.md §4.2.5). When endIndex equals
// startIndex the comment covers the single character at startIndex.
func (e *Engine) AddComment(startIndex, endIndex int, text string) error {
	n := e.doc.Length()
	if startIndex < 0 || startIndex >= n || startIndex > endIndex || endIndex > n {
		return crdterrors.New(crdterrors.InvalidRange, "addComment(%d,%d) invalid for length %d", startIndex, endIndex, n)
	}
	startPos, ok := e.doc.PositionOf(startIndex)
	if !ok {
		return crdterrors.New(crdterrors.InvalidRange, "addComment(%d,%d) invalid for length %d", startIndex, endIndex, n)
	}
	endPos := startPos
	if endIndex > startIndex {
		p, ok := e.doc.PositionOf(endIndex - 1)
		if !ok {
			return crdterrors.New(crdterrors.InvalidRange, "addComment(%d,%d) invalid for length %d", startIndex, endIndex, n)
		}
		endPos = p
	}
	return e.log.Append(annotation.Record{
		ID: newID(), Kind: annotation.KindComment, Action: annotation.ActionAddition,
		Description: annotation.DescAddComment, UserID: e.userID, Timestamp: e.now(),
		Start: &startPos, End: &endPos, StartClosed: true, EndClosed: true, Value: text,
	})
}

// RemoveComment appends a Removal(RemoveComment) dependent on id
// (spec.md §4.2.5).
func (e *Engine) RemoveComment(id annotation.ID) error {
	return e.log.Append(annotation.Record{
		ID: newID(), Kind: annotation.KindComment, Action: annotation.ActionRemoval,
		Description: annotation.DescRemoveComment, UserID: e.userID, Timestamp: e.now(), DependentOn: id,
	})
}

// findAdjacentInsertSuggestion looks for a live InsertSuggestion by
// this user whose resolved end touches index, meaning the new text was
// typed immediately after it.
func (e *Engine) findAdjacentInsertSuggestion(index int) (annotation.Record, annotation.ID, bool) {
	for id, a := range e.live {
		if a.Kind != annotation.KindSuggestion || a.Description != annotation.DescInsertSuggestion || a.UserID != e.userID {
			continue
		}
		if e.resolveEnd(a) == index {
			return a, id, true
		}
	}
	return annotation.Record{}, "", false
}

// findCoveringInsertSuggestion reports whether [index, index+count) is
// entirely inside a live InsertSuggestion by this user.
func (e *Engine) findCoveringInsertSuggestion(index, count int) (annotation.Record, bool) {
	for _, a := range e.live {
		if a.Kind != annotation.KindSuggestion || a.Description != annotation.DescInsertSuggestion || a.UserID != e.userID {
			continue
		}
		if e.resolveStart(a) <= index && e.resolveEnd(a) >= index+count {
			return a, true
		}
	}
	return annotation.Record{}, false
}

// findAdjacentDeleteSuggestion looks for a live DeleteSuggestion by
// this user touching [index, index+count): one ending exactly at index
// extends right, one starting exactly at index+count extends left.
func (e *Engine) findAdjacentDeleteSuggestion(index, count int) (annotation.Record, annotation.ID, bool, bool) {
	for id, a := range e.live {
		if a.Kind != annotation.KindSuggestion || a.Description != annotation.DescDeleteSuggestion || a.UserID != e.userID {
			continue
		}
		if e.resolveEnd(a) == index {
			return a, id, true, true
		}
		if e.resolveStart(a) == index+count {
			return a, id, false, true
		}
	}
	return annotation.Record{}, "", false, false
}
