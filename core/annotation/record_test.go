package annotation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Importantus/crdt-with-suggestion-mode/core/annotation"
	"github.com/Importantus/crdt-with-suggestion-mode/core/position"
	"github.com/Importantus/crdt-with-suggestion-mode/crdterrors"
)

func pos(site string, seq uint64) *position.Pos {
	p := position.NewPos(site, seq)
	return &p
}

func TestValidateAcceptsInsertSuggestionWithBothEndpointsOpen(t *testing.T) {
	// Inserting into an empty document (or spanning it entirely) leaves
	// nothing before or after the suggestion on either side.
	rec := annotation.Record{
		ID: "a", Kind: annotation.KindSuggestion, Action: annotation.ActionAddition,
		Description: annotation.DescInsertSuggestion, UserID: "alice",
	}
	assert.NoError(t, rec.Validate())
}

func TestValidateAcceptsInsertSuggestionWithOneOpenEndpoint(t *testing.T) {
	rec := annotation.Record{
		ID: "a", Kind: annotation.KindSuggestion, Action: annotation.ActionAddition,
		Description: annotation.DescInsertSuggestion, UserID: "alice",
		Start: pos("r1", 1),
	}
	assert.NoError(t, rec.Validate())
}

func TestValidateRejectsDeleteSuggestionWithOpenEndpoint(t *testing.T) {
	rec := annotation.Record{
		ID: "a", Kind: annotation.KindSuggestion, Action: annotation.ActionAddition,
		Description: annotation.DescDeleteSuggestion, UserID: "alice",
		Start: pos("r1", 1), StartClosed: true,
	}
	err := rec.Validate()
	require.Error(t, err)
	assert.True(t, crdterrors.Is(err, crdterrors.MalformedRecord))
}

func TestValidateRejectsRemovalWithoutDependentOn(t *testing.T) {
	rec := annotation.Record{
		ID: "a", Kind: annotation.KindSuggestion, Action: annotation.ActionRemoval,
		Description: annotation.DescAcceptSuggestion, UserID: "alice",
	}
	err := rec.Validate()
	require.Error(t, err)
	assert.True(t, crdterrors.Is(err, crdterrors.MalformedRecord))
}

func TestValidateRejectsUpdateWithoutUpdatedProperties(t *testing.T) {
	rec := annotation.Record{
		ID: "a", Kind: annotation.KindSuggestion, Action: annotation.ActionUpdate,
		Description: annotation.DescRangeUpdate, UserID: "alice", DependentOn: "root",
	}
	err := rec.Validate()
	require.Error(t, err)
	assert.True(t, crdterrors.Is(err, crdterrors.MalformedRecord))
}

func TestChangeIDIsOwnIDForAdditionAndDependentOnOtherwise(t *testing.T) {
	addition := annotation.Record{ID: "root", Action: annotation.ActionAddition}
	assert.Equal(t, annotation.ID("root"), addition.ChangeID())

	update := annotation.Record{ID: "u1", Action: annotation.ActionUpdate, DependentOn: "root"}
	assert.Equal(t, annotation.ID("root"), update.ChangeID())

	removal := annotation.Record{ID: "r1", Action: annotation.ActionRemoval, DependentOn: "root"}
	assert.Equal(t, annotation.ID("root"), removal.ChangeID())
}

func TestWinsOrdersByLamportThenSender(t *testing.T) {
	a := annotation.Record{Lamport: 5, SenderID: "r1"}
	b := annotation.Record{Lamport: 3, SenderID: "r2"}
	assert.True(t, annotation.Wins(a, b))
	assert.False(t, annotation.Wins(b, a))

	c := annotation.Record{Lamport: 5, SenderID: "r2"}
	assert.True(t, annotation.Wins(c, a))
	assert.True(t, annotation.Wins(a, a)) // equal lamport+sender: reflexive
}

func TestFoldAppliesOnlyDeclaredFields(t *testing.T) {
	addition := annotation.Record{
		ID: "root", Action: annotation.ActionAddition, Description: annotation.DescInsertSuggestion,
		Start: pos("r1", 1), End: pos("r1", 2), Value: "",
	}
	update := annotation.Record{
		Action: annotation.ActionUpdate, Description: annotation.DescRangeUpdate,
		End: pos("r1", 9), EndClosed: true,
		UpdatedProperties: []annotation.UpdatableField{annotation.FieldEnd, annotation.FieldEndClosed},
	}
	eff := annotation.Fold(addition, []annotation.Record{update})
	assert.Equal(t, pos("r1", 9), eff.End)
	assert.True(t, eff.EndClosed)
	assert.Equal(t, pos("r1", 1), eff.Start) // untouched field survives
}

func TestReasonForMapsDescriptionToReason(t *testing.T) {
	assert.Equal(t, annotation.ReasonAccepted, annotation.ReasonFor(annotation.DescAcceptSuggestion))
	assert.Equal(t, annotation.ReasonDeclined, annotation.ReasonFor(annotation.DescDeclineSuggestion))
	assert.Equal(t, annotation.ReasonRemoved, annotation.ReasonFor(annotation.DescRemoveComment))
}
