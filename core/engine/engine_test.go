package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Importantus/crdt-with-suggestion-mode/core/annotation"
	"github.com/Importantus/crdt-with-suggestion-mode/core/engine"
	"github.com/Importantus/crdt-with-suggestion-mode/core/textcrdt"
	"github.com/Importantus/crdt-with-suggestion-mode/internal/annotationlog"
	"github.com/Importantus/crdt-with-suggestion-mode/internal/rga"
	"github.com/Importantus/crdt-with-suggestion-mode/internal/replnet"
)

// newReplica wires an Engine for userID onto a shared text document,
// joined to net under replicaID. Using one shared textcrdt.Document
// across "replicas" stands in for a Text CRDT already converged
// across them — that convergence is out of this module's scope
// (spec.md §1); these tests exercise the in-scope annotation overlay
// converging across independently-maintained derived views.
func newReplica(t *testing.T, net *replnet.Network, doc textcrdt.Document, replicaID, userID string) *engine.Engine {
	t.Helper()
	log := annotationlog.New(replicaID, net.Join(replicaID))
	net.Register(replicaID, log)
	return engine.New(engine.Config{UserID: userID}, doc, log)
}

func TestInsertSuggestionIsVisibleAtItsPosition(t *testing.T) {
	net := replnet.NewNetwork()
	doc := rga.New("r1")
	eng := newReplica(t, net, doc, "r1", "alice")

	require.NoError(t, eng.Insert(0, "hello", true))
	assert.Equal(t, "hello", doc.String())

	active := eng.ActiveAnnotations()
	require.Len(t, active, 1)
	assert.Equal(t, annotation.DescInsertSuggestion, active[0].Description)
	assert.Equal(t, "alice", active[0].UserID)

	p, ok := doc.PositionOf(2)
	require.True(t, ok)
	at := eng.AnnotationsAt(p)
	require.Len(t, at, 1)
	assert.Equal(t, active[0].ID, at[0].ID)
}

func TestAdjacentSameUserInsertExtendsSuggestionInsteadOfCreatingANewOne(t *testing.T) {
	net := replnet.NewNetwork()
	doc := rga.New("r1")
	eng := newReplica(t, net, doc, "r1", "alice")

	require.NoError(t, eng.Insert(0, "hel", true))
	require.NoError(t, eng.Insert(3, "lo", true))
	assert.Equal(t, "hello", doc.String())

	active := eng.ActiveAnnotations()
	require.Len(t, active, 1, "adjacent same-user inserts should fold into one suggestion")
}

// TestAdjacentInsertExtendEmitsFormatChangeEvent checks the coalesced
// redraw hint spec.md §5 describes alongside the Removed/Added pair
// for the same extend-in-place case above.
func TestAdjacentInsertExtendEmitsFormatChangeEvent(t *testing.T) {
	net := replnet.NewNetwork()
	doc := rga.New("r1")
	eng := newReplica(t, net, doc, "r1", "alice")

	require.NoError(t, eng.Insert(0, "hel", true))

	var events []interface{}
	eng.Subscribe(func(ev interface{}) { events = append(events, ev) })
	require.NoError(t, eng.Insert(3, "lo", true))

	var sawFormatChange bool
	for _, ev := range events {
		if fc, ok := ev.(engine.FormatChangeEvent); ok {
			sawFormatChange = true
			assert.Equal(t, 0, fc.StartIndex)
			assert.Equal(t, 5, fc.EndIndex)
		}
	}
	assert.True(t, sawFormatChange, "expected a FormatChangeEvent for the extended suggestion")
}

// TestDeclineAfterExtendTerminatesWholeUpdatedSuggestion exercises the
// second half of spec.md §8 S6: a decline that only ever named the
// original Addition still wipes the annotation's whole current span —
// including the part a later Update added — because Removal depends on
// the Addition's id, not on whichever shape was live when the decline
// was issued.
func TestDeclineAfterExtendTerminatesWholeUpdatedSuggestion(t *testing.T) {
	net := replnet.NewNetwork()
	doc := rga.New("r1")
	alice := newReplica(t, net, doc, "r1", "u1")
	bob := newReplica(t, net, doc, "r2", "u2")

	require.NoError(t, alice.Insert(0, "ab", true))
	require.NoError(t, alice.Insert(2, "cd", true))
	assert.Equal(t, "abcd", doc.String())

	active := alice.ActiveAnnotations()
	require.Len(t, active, 1)
	id := active[0].ID

	require.NoError(t, bob.DeclineSuggestion(id))

	assert.Equal(t, "", doc.String())
	assert.Empty(t, alice.ActiveAnnotations())
	assert.Empty(t, bob.ActiveAnnotations())
}

// TestCommentSurvivesConcurrentDirectDeleteOfItsText exercises spec.md
// §8 S5: a direct (non-suggestion) delete of text underneath a comment
// tombstones the comment's endpoints rather than destroying it — the
// comment stays live, still locatable at its own (now tombstoned)
// start position, until explicitly removed.
func TestCommentSurvivesConcurrentDirectDeleteOfItsText(t *testing.T) {
	net := replnet.NewNetwork()
	doc := rga.New("r1")
	alice := newReplica(t, net, doc, "r1", "u1")
	bob := newReplica(t, net, doc, "r2", "u2")

	_, err := doc.Insert(0, "abcdef")
	require.NoError(t, err)

	require.NoError(t, alice.AddComment(2, 4, "why?")) // covers "cd"
	active := alice.ActiveAnnotations()
	require.Len(t, active, 1)
	commentID := active[0].ID
	commentStart := active[0].Start

	require.NoError(t, bob.Delete(2, 2, false)) // direct delete of "cd", not a suggestion
	assert.Equal(t, "abef", doc.String())

	for _, eng := range []*engine.Engine{alice, bob} {
		still := eng.ActiveAnnotations()
		require.Len(t, still, 1)
		assert.Equal(t, "why?", still[0].Value)
	}

	// the comment is still locatable at its own (now tombstoned) start
	// position: the deleted text didn't erase the data point anchored
	// there, it only tombstoned the character it names.
	require.NotNil(t, commentStart)
	at := alice.AnnotationsAt(*commentStart)
	require.Len(t, at, 1)
	assert.Equal(t, "why?", at[0].Value)

	require.NoError(t, alice.RemoveComment(commentID))
	assert.Empty(t, alice.ActiveAnnotations())
	assert.Empty(t, bob.ActiveAnnotations())
}

// TestTwoUsersConcurrentInsertSuggestionsConvergeAsTwoLiveAnnotations
// exercises spec.md §8 S2: two different users each insert a
// suggestion at the same point. They must never fold into one
// suggestion the way two inserts from the *same* user do — each stays
// its own live annotation, attributed to its own author.
func TestTwoUsersConcurrentInsertSuggestionsConvergeAsTwoLiveAnnotations(t *testing.T) {
	net := replnet.NewNetwork()
	doc := rga.New("r1")
	alice := newReplica(t, net, doc, "r1", "u1")
	bob := newReplica(t, net, doc, "r2", "u2")

	require.NoError(t, alice.Insert(0, "Hello", true))
	require.NoError(t, bob.Insert(0, "Hey", true))

	for _, eng := range []*engine.Engine{alice, bob} {
		active := eng.ActiveAnnotations()
		require.Len(t, active, 2)
		authors := map[string]bool{active[0].UserID: true, active[1].UserID: true}
		assert.True(t, authors["u1"])
		assert.True(t, authors["u2"])
	}
}

func TestAcceptingDeleteSuggestionRemovesTheText(t *testing.T) {
	net := replnet.NewNetwork()
	doc := rga.New("r1")
	eng := newReplica(t, net, doc, "r1", "alice")

	_, err := doc.Insert(0, "hello world")
	require.NoError(t, err)

	require.NoError(t, eng.Delete(0, 6, true)) // suggest deleting "hello "
	active := eng.ActiveAnnotations()
	require.Len(t, active, 1)
	assert.Equal(t, annotation.DescDeleteSuggestion, active[0].Description)

	require.NoError(t, eng.AcceptSuggestion(active[0].ID))
	assert.Equal(t, "world", doc.String())
	assert.Empty(t, eng.ActiveAnnotations())
}

func TestDecliningDeleteSuggestionKeepsTheText(t *testing.T) {
	net := replnet.NewNetwork()
	doc := rga.New("r1")
	eng := newReplica(t, net, doc, "r1", "alice")

	_, err := doc.Insert(0, "hello world")
	require.NoError(t, err)

	require.NoError(t, eng.Delete(0, 6, true))
	active := eng.ActiveAnnotations()
	require.Len(t, active, 1)

	require.NoError(t, eng.DeclineSuggestion(active[0].ID))
	assert.Equal(t, "hello world", doc.String())
	assert.Empty(t, eng.ActiveAnnotations())
}

func TestDecliningInsertSuggestionRemovesTheInsertedText(t *testing.T) {
	net := replnet.NewNetwork()
	doc := rga.New("r1")
	eng := newReplica(t, net, doc, "r1", "alice")

	require.NoError(t, eng.Insert(0, "hello", true))
	active := eng.ActiveAnnotations()
	require.Len(t, active, 1)

	require.NoError(t, eng.DeclineSuggestion(active[0].ID))
	assert.Equal(t, "", doc.String())
	assert.Empty(t, eng.ActiveAnnotations())
}

func TestAddCommentAndRemoveComment(t *testing.T) {
	net := replnet.NewNetwork()
	doc := rga.New("r1")
	eng := newReplica(t, net, doc, "r1", "alice")

	_, err := doc.Insert(0, "hello")
	require.NoError(t, err)

	require.NoError(t, eng.AddComment(0, 5, "greeting"))
	active := eng.ActiveAnnotations()
	require.Len(t, active, 1)
	assert.Equal(t, "greeting", active[0].Value)

	require.NoError(t, eng.RemoveComment(active[0].ID))
	assert.Empty(t, eng.ActiveAnnotations())
}

// TestConcurrentAcceptAndDeclineConvergeOnTheLaterWins exercises spec.md
// §8 S4: two replicas race an Accept and a Decline against the same
// DeleteSuggestion. The reference transport assigns lamport in
// broadcast order, so whichever call runs second wins; both replicas'
// independently-maintained derived views must agree on the outcome.
func TestConcurrentAcceptAndDeclineConvergeOnTheLaterWins(t *testing.T) {
	net := replnet.NewNetwork()
	doc := rga.New("r1")
	alice := newReplica(t, net, doc, "r1", "alice")
	bob := newReplica(t, net, doc, "r2", "bob")

	_, err := doc.Insert(0, "hello world")
	require.NoError(t, err)

	require.NoError(t, alice.Delete(0, 6, true))
	active := alice.ActiveAnnotations()
	require.Len(t, active, 1)
	id := active[0].ID

	require.NoError(t, alice.AcceptSuggestion(id))
	require.NoError(t, bob.DeclineSuggestion(id)) // broadcast later: higher lamport, wins

	assert.Equal(t, "hello world", doc.String())
	assert.Empty(t, alice.ActiveAnnotations())
	assert.Empty(t, bob.ActiveAnnotations())
}

func TestActiveAnnotationsDeduplicatesMultiCharacterSpans(t *testing.T) {
	net := replnet.NewNetwork()
	doc := rga.New("r1")
	eng := newReplica(t, net, doc, "r1", "alice")

	require.NoError(t, eng.Insert(0, "a long suggestion", true))
	active := eng.ActiveAnnotations()
	require.Len(t, active, 1)
}

func TestAnnotationsAtIsEmptyBeforeAnyAnnotation(t *testing.T) {
	net := replnet.NewNetwork()
	doc := rga.New("r1")
	eng := newReplica(t, net, doc, "r1", "alice")

	_, err := doc.Insert(0, "plain text")
	require.NoError(t, err)

	p, ok := doc.PositionOf(3)
	require.True(t, ok)
	assert.Empty(t, eng.AnnotationsAt(p))
}
