package engine

import (
	"github.com/Importantus/crdt-with-suggestion-mode/core/annotation"
	"github.com/Importantus/crdt-with-suggestion-mode/core/position"
	"github.com/Importantus/crdt-with-suggestion-mode/core/textcrdt"
)

// InsertEvent mirrors a textcrdt.EventInsert the engine forwarded.
type InsertEvent struct {
	Index     int
	Values    []rune
	Positions []position.Pos
	Meta      *textcrdt.Meta
}

// DeleteEvent mirrors a textcrdt.EventDelete the engine forwarded,
// whether it originated from a direct Delete or from the follow-up
// side effect of accepting/declining a suggestion.
type DeleteEvent struct {
	Index     int
	Values    []rune
	Positions []position.Pos
	Meta      *textcrdt.Meta
}

// AnnotationAddedEvent reports a new (or resurrected) annotation now
// visible over [StartIndex, EndIndex) — EndIndex is exclusive (spec.md
// §5, §9: resolved with Left/Right bias and adjusted for open/closed
// endpoints so editors can slice text directly with it).
type AnnotationAddedEvent struct {
	StartIndex int
	EndIndex   int
	Annotation annotation.Record
}

// AnnotationRemovedEvent reports that an annotation is no longer live.
// Reason distinguishes an explicit accept/decline/remove from an
// update superseding the prior shape (ReasonReplaced); Author is the
// user who issued the terminating record.
type AnnotationRemovedEvent struct {
	StartIndex int
	EndIndex   int
	Annotation annotation.Record
	Reason     annotation.RemovalReason
	Author     string
}

// FormatChangeEvent is the optional coalesced event spec.md §5
// describes alongside a matched Removed+Added pair, for a shape change
// the editor only needs to redraw, not re-diff — e.g. a suggestion
// range growing from an adjacent insert. The engine publishes one of
// these for every Update delivered against a still-live annotation,
// preceded by a Removed/Added pair when the record's own Start/End/
// Value actually moved (spec.md §8 S1's linearization requirement).
type FormatChangeEvent struct {
	StartIndex int
	EndIndex   int
}
