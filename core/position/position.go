// Package position defines the contract this module requires from an
// external Position Service (spec.md §3, §6): a dense, totally
// ordered, immutable identifier assigned to every inserted character,
// surviving deletions, comparable, and resolvable to/from the
// currently visible index.
//
// The position service itself is out of scope for this module (it is
// an opaque collaborator per spec.md §1); only the contract lives
// here. internal/rga ships a reference implementation so the rest of
// the module is runnable end to end.
package position

// Bias controls how a Pos that no longer names a present character
// resolves to a visible index.
type Bias int

const (
	// Left resolves to the nearest present position at or before p.
	Left Bias = iota
	// Right resolves to the nearest present position at or after p.
	Right
	// Exact requires p itself to be present.
	Exact
)

func (b Bias) String() string {
	switch b {
	case Left:
		return "Left"
	case Right:
		return "Right"
	case Exact:
		return "Exact"
	default:
		return "Bias(?)"
	}
}

// Pos is an opaque, totally ordered, immutable identifier for one
// character slot. The zero value is not a valid position; Service
// implementations mint Pos values on Insert.
type Pos struct {
	// site is the replica that minted this position.
	site string
	// seq is a per-site monotonic counter, unique within site.
	seq uint64
}

// NewPos constructs a Pos. Exported for Service implementations and
// for wire-decoding; application code should treat Pos as opaque.
func NewPos(site string, seq uint64) Pos { return Pos{site: site, seq: seq} }

// Site returns the minting replica's id.
func (p Pos) Site() string { return p.site }

// Seq returns the per-site sequence number.
func (p Pos) Seq() uint64 { return p.seq }

// IsZero reports whether p is the zero value (never assigned).
func (p Pos) IsZero() bool { return p.site == "" && p.seq == 0 }

// Compare gives the total order over minted positions: higher Seq
// wins, ties (impossible within one site) broken by Site. It reflects
// minting order, not document order — two positions minted
// concurrently at unrelated points in the document compare by this
// rule only to break ties during integration; document order itself
// is a property of the Service, not of Compare.
func Compare(a, b Pos) int {
	switch {
	case a.seq != b.seq:
		if a.seq < b.seq {
			return -1
		}
		return 1
	case a.site != b.site:
		if a.site < b.site {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Service is the external total-order service consumed by the
// annotation log and engine (spec.md §6).
type Service interface {
	// Length returns the currently visible character count.
	Length() int
	// PositionOf returns the Pos of the character currently at index.
	// ok is false if index is out of the visible range.
	PositionOf(index int) (p Pos, ok bool)
	// IndexOf resolves p to a visible index using bias. Left returns the
	// index of the nearest present position <= p (or -1 if none); Right
	// the nearest >= p (or Length() if none); Exact returns -1 if p is
	// not currently present.
	IndexOf(p Pos, bias Bias) int
	// Has reports whether p currently names a present (non-tombstoned)
	// character.
	Has(p Pos) bool
	// Order compares a and b by persistent document order, regardless
	// of whether either is currently present — a tombstoned position
	// keeps the place it held when it was deleted (spec.md §3: "a
	// position may refer to a currently-present character, a
	// tombstoned one, or a virtual endpoint. Operations: compare,
	// resolve-to-current-index..."). The engine's derived view anchors
	// data points to annotation endpoints that may outlive the
	// character they named (spec.md §8 S5), so ordering must not
	// require presence.
	Order(a, b Pos) int
}
