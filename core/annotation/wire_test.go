package annotation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Importantus/crdt-with-suggestion-mode/core/annotation"
)

func TestWireRoundTripsInsertSuggestionWithOpenStart(t *testing.T) {
	rec := annotation.Record{
		ID: "a1", Kind: annotation.KindSuggestion, Action: annotation.ActionAddition,
		Description: annotation.DescInsertSuggestion, UserID: "alice",
		Lamport: 7, SenderID: "r1", Timestamp: 1234,
		End: pos("r1", 3),
	}
	data, err := rec.MarshalBinary()
	require.NoError(t, err)

	var got annotation.Record
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, rec, got)
}

func TestWireRoundTripsRemovalWithDependentOn(t *testing.T) {
	rec := annotation.Record{
		ID: "r9", Kind: annotation.KindSuggestion, Action: annotation.ActionRemoval,
		Description: annotation.DescAcceptSuggestion, UserID: "bob",
		Lamport: 11, SenderID: "r2", Timestamp: 99, DependentOn: "a1",
	}
	data, err := rec.MarshalBinary()
	require.NoError(t, err)

	var got annotation.Record
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, rec, got)
}

func TestWireRoundTripsUpdateWithMultipleUpdatedProperties(t *testing.T) {
	rec := annotation.Record{
		ID: "u1", Kind: annotation.KindSuggestion, Action: annotation.ActionUpdate,
		Description: annotation.DescRangeUpdate, UserID: "carol",
		Lamport: 4, SenderID: "r3", Timestamp: 1,
		DependentOn: "a1", End: pos("r1", 5), EndClosed: true,
		UpdatedProperties: []annotation.UpdatableField{annotation.FieldEnd, annotation.FieldEndClosed},
	}
	data, err := rec.MarshalBinary()
	require.NoError(t, err)

	var got annotation.Record
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, rec, got)
}

func TestWireRoundTripsCommentValue(t *testing.T) {
	rec := annotation.Record{
		ID: "c1", Kind: annotation.KindComment, Action: annotation.ActionAddition,
		Description: annotation.DescAddComment, UserID: "dave",
		Lamport: 2, SenderID: "r4", Timestamp: 42,
		Start: pos("r4", 1), End: pos("r4", 2), StartClosed: true, EndClosed: true,
		Value: "needs a citation",
	}
	data, err := rec.MarshalBinary()
	require.NoError(t, err)

	var got annotation.Record
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, rec, got)
}

func TestUnmarshalBinaryRejectsTruncatedData(t *testing.T) {
	var got annotation.Record
	err := got.UnmarshalBinary([]byte{1, 2, 3})
	require.Error(t, err)
}
