// Package annotation defines the annotation record — the unit stored
// in the Annotation Log (spec.md §3) — and the pure folding/ordering
// functions the engine needs to turn a record history into an
// effective, currently-live annotation.
package annotation

import (
	"fmt"

	"github.com/Importantus/crdt-with-suggestion-mode/core/position"
	"github.com/Importantus/crdt-with-suggestion-mode/crdterrors"
)

// ID identifies either a record or, when it names an Addition, the
// annotation that Addition introduced (spec.md §3 AnnotationId).
type ID string

// Kind is the top-level annotation category.
type Kind int

const (
	KindSuggestion Kind = iota
	KindComment
)

func (k Kind) String() string {
	if k == KindComment {
		return "Comment"
	}
	return "Suggestion"
}

// Action is the record's place in an annotation's lifecycle.
type Action int

const (
	ActionAddition Action = iota
	ActionUpdate
	ActionRemoval
)

func (a Action) String() string {
	switch a {
	case ActionAddition:
		return "Addition"
	case ActionUpdate:
		return "Update"
	case ActionRemoval:
		return "Removal"
	default:
		return "Action(?)"
	}
}

// Description narrows Action/Kind into the concrete operation the
// record represents (spec.md §3 action/description matrix).
type Description int

const (
	DescInsertSuggestion Description = iota
	DescDeleteSuggestion
	DescAddComment
	DescAcceptSuggestion
	DescDeclineSuggestion
	DescRemoveComment
	DescRangeUpdate
)

func (d Description) String() string {
	switch d {
	case DescInsertSuggestion:
		return "InsertSuggestion"
	case DescDeleteSuggestion:
		return "DeleteSuggestion"
	case DescAddComment:
		return "AddComment"
	case DescAcceptSuggestion:
		return "AcceptSuggestion"
	case DescDeclineSuggestion:
		return "DeclineSuggestion"
	case DescRemoveComment:
		return "RemoveComment"
	case DescRangeUpdate:
		return "RangeUpdate"
	default:
		return "Description(?)"
	}
}

// RemovalReason is derived from a Removal record's Description and
// surfaced on the AnnotationRemoved event (spec.md §4.2.3).
type RemovalReason int

const (
	ReasonAccepted RemovalReason = iota
	ReasonDeclined
	ReasonRemoved
	ReasonReplaced
)

func (r RemovalReason) String() string {
	switch r {
	case ReasonAccepted:
		return "Accepted"
	case ReasonDeclined:
		return "Declined"
	case ReasonRemoved:
		return "Removed"
	case ReasonReplaced:
		return "Replaced"
	default:
		return "RemovalReason(?)"
	}
}

// UpdatableField names a property an Update record may rewrite.
type UpdatableField string

const (
	FieldStart       UpdatableField = "start"
	FieldEnd         UpdatableField = "end"
	FieldStartClosed UpdatableField = "start_closed"
	FieldEndClosed   UpdatableField = "end_closed"
	FieldValue       UpdatableField = "value"
)

// Record is the unit stored in the annotation log (spec.md §3).
//
// Start/End are nil for an open endpoint ("open to the document end" /
// "open from the document beginning"). DependentOn is set only on
// Removal and Update records and names the Addition's ID. Lamport and
// SenderID are stamped by the transport on delivery, never chosen by
// the caller (spec.md §4.1).
type Record struct {
	ID          ID
	Kind        Kind
	Action      Action
	Description Description
	UserID      string

	Lamport  uint64
	SenderID string

	// Timestamp is wall-clock epoch seconds, display only, never
	// authoritative for ordering (spec.md §3).
	Timestamp int64

	Start       *position.Pos
	End         *position.Pos
	StartClosed bool
	EndClosed   bool
	Value       string

	DependentOn       ID
	UpdatedProperties []UpdatableField
}

// ChangeID is the id used to group a record with the rest of its
// annotation's history: the record's own id for an Addition, its
// DependentOn for a Removal or Update. This is what spec.md §4.1 calls
// the "change id" grouping.
func (r Record) ChangeID() ID {
	if r.Action == ActionAddition {
		return r.ID
	}
	return r.DependentOn
}

// HasField reports whether an Update record declares it changed field.
func (r Record) HasField(field UpdatableField) bool {
	for _, f := range r.UpdatedProperties {
		if f == field {
			return true
		}
	}
	return false
}

// Validate checks the action/description matrix from spec.md §3 and
// that the mandatory fields for that combination are present. A
// failure here is MalformedRecord (fatal per spec.md §7) — it means
// the wire decode produced something the matrix forbids, not a benign
// causal race.
func (r Record) Validate() error {
	switch {
	case r.Action == ActionAddition && r.Description == DescInsertSuggestion:
		// Both endpoints may legitimately be open at once: inserting
		// into an empty document (or at its very start and end at
		// once) leaves nothing before or after the suggestion.
	case r.Action == ActionAddition && r.Description == DescDeleteSuggestion:
		if r.Start == nil || r.End == nil || !r.StartClosed || !r.EndClosed {
			return malformed(r, "DeleteSuggestion requires closed start and end")
		}
	case r.Action == ActionAddition && r.Description == DescAddComment:
		if r.Start == nil || r.End == nil || !r.StartClosed || !r.EndClosed {
			return malformed(r, "AddComment requires closed start and end")
		}
	case r.Action == ActionRemoval && r.Description == DescAcceptSuggestion,
		r.Action == ActionRemoval && r.Description == DescDeclineSuggestion,
		r.Action == ActionRemoval && r.Description == DescRemoveComment:
		if r.DependentOn == "" {
			return malformed(r, "Removal without dependent_on")
		}
	case r.Action == ActionUpdate && r.Description == DescRangeUpdate:
		if r.DependentOn == "" {
			return malformed(r, "Update without dependent_on")
		}
		if len(r.UpdatedProperties) == 0 {
			return malformed(r, "Update with no updated_properties")
		}
	default:
		return malformed(r, fmt.Sprintf("invalid action/description combination: %s/%s", r.Action, r.Description))
	}
	return nil
}

func malformed(r Record, why string) error {
	return crdterrors.New(crdterrors.MalformedRecord, "record %s (%s/%s): %s", r.ID, r.Action, r.Description, why)
}

// Wins implements spec.md §4.2.6: a.lamport > b.lamport, or equal
// lamport with a.sender_id >= b.sender_id. Equal-lamport-equal-sender
// only happens within a single transaction, where the later-emitted
// record is newer — callers resolve that tie via delivery order
// (annotationlog.History), not via Wins itself.
func Wins(a, b Record) bool {
	if a.Lamport != b.Lamport {
		return a.Lamport > b.Lamport
	}
	return a.SenderID >= b.SenderID
}

// Fold applies every update in order onto addition, producing the
// effective annotation (spec.md §4.2's "Addition ⊕ every subsequent
// Update"). updates must already be in (lamport, sender, delivery)
// order; Fold does not sort them.
func Fold(addition Record, updates []Record) Record {
	eff := addition
	for _, u := range updates {
		if u.HasField(FieldStart) {
			eff.Start = u.Start
		}
		if u.HasField(FieldEnd) {
			eff.End = u.End
		}
		if u.HasField(FieldStartClosed) {
			eff.StartClosed = u.StartClosed
		}
		if u.HasField(FieldEndClosed) {
			eff.EndClosed = u.EndClosed
		}
		if u.HasField(FieldValue) {
			eff.Value = u.Value
		}
	}
	return eff
}

// ReasonFor maps a Removal's description to the reason the engine
// reports on AnnotationRemoved (spec.md §4.2.1).
func ReasonFor(d Description) RemovalReason {
	switch d {
	case DescAcceptSuggestion:
		return ReasonAccepted
	case DescDeclineSuggestion:
		return ReasonDeclined
	case DescRemoveComment:
		return ReasonRemoved
	default:
		return ReasonRemoved
	}
}
