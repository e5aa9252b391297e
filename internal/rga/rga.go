// Package rga is a reference implementation of position.Service and
// textcrdt.Document: a Replicated Growable Array over runes, grounded
// on the sibling-ordering integrate algorithm of a classic RGA
// (see other_examples' cshekharsharma-go-crdt rga.go for the shape
// this was adapted from).
//
// It exists purely so this module is a runnable, testable whole: per
// spec.md §1/§2 the position-positioning text CRDT is an opaque
// external collaborator, out of this module's core budget. Document
// and engine code must never reach into rga internals; they see only
// position.Service and textcrdt.Document.
package rga

import (
	"github.com/Importantus/crdt-with-suggestion-mode/core/position"
	"github.com/Importantus/crdt-with-suggestion-mode/core/textcrdt"
)

type node struct {
	pos     position.Pos
	parent  position.Pos
	value   rune
	deleted bool
	next    *node
}

// Doc is an in-memory, single-process RGA. It is safe for use by
// exactly one goroutine at a time, matching the single-threaded
// cooperative scheduling model spec.md §5 mandates for the replica as
// a whole.
type Doc struct {
	site       string
	seq        uint64
	root       *node
	registry   map[position.Pos]*node
	visibleLen int
	subs       []func(textcrdt.Event)
}

// New creates an empty document minted by the given site id (a
// replica identifier, distinct per replica).
func New(site string) *Doc {
	return &Doc{
		site:     site,
		root:     &node{},
		registry: make(map[position.Pos]*node),
	}
}

func (d *Doc) Length() int { return d.visibleLen }

func (d *Doc) PositionOf(index int) (position.Pos, bool) {
	if index < 0 || index >= d.visibleLen {
		return position.Pos{}, false
	}
	i := 0
	for cur := d.root.next; cur != nil; cur = cur.next {
		if cur.deleted {
			continue
		}
		if i == index {
			return cur.pos, true
		}
		i++
	}
	return position.Pos{}, false
}

func (d *Doc) CharAt(index int) (rune, bool) {
	if index < 0 || index >= d.visibleLen {
		return 0, false
	}
	i := 0
	for cur := d.root.next; cur != nil; cur = cur.next {
		if cur.deleted {
			continue
		}
		if i == index {
			return cur.value, true
		}
		i++
	}
	return 0, false
}

func (d *Doc) IndexOf(p position.Pos, bias position.Bias) int {
	visible := 0
	for cur := d.root.next; cur != nil; cur = cur.next {
		if cur.pos == p {
			if !cur.deleted {
				return visible
			}
			switch bias {
			case position.Exact:
				return -1
			case position.Left:
				return visible - 1
			case position.Right:
				for cur2 := cur.next; cur2 != nil; cur2 = cur2.next {
					if !cur2.deleted {
						return visible
					}
				}
				return visible
			default:
				return -1
			}
		}
		if !cur.deleted {
			visible++
		}
	}
	return -1
}

func (d *Doc) Has(p position.Pos) bool {
	n, ok := d.registry[p]
	return ok && !n.deleted
}

// Order compares a and b by their position in the linked list, which is
// document order regardless of tombstoning — unlike position.Compare,
// which only orders same-parent siblings at mint time.
func (d *Doc) Order(a, b position.Pos) int {
	if a == b {
		return 0
	}
	for cur := d.root.next; cur != nil; cur = cur.next {
		switch cur.pos {
		case a:
			return -1
		case b:
			return 1
		}
	}
	return 0
}

func (d *Doc) String() string {
	out := make([]rune, 0, d.visibleLen)
	for cur := d.root.next; cur != nil; cur = cur.next {
		if !cur.deleted {
			out = append(out, cur.value)
		}
	}
	return string(out)
}

func (d *Doc) Subscribe(handler func(textcrdt.Event)) textcrdt.Unsubscribe {
	d.subs = append(d.subs, handler)
	idx := len(d.subs) - 1
	return func() { d.subs[idx] = nil }
}

func (d *Doc) publish(ev textcrdt.Event) {
	for _, h := range d.subs {
		if h != nil {
			h(ev)
		}
	}
}

// Insert splits text into runes and chains each new node off the
// previous one, so a multi-character insert stays contiguous in
// document order regardless of what else is integrated concurrently.
func (d *Doc) Insert(index int, text string) ([]position.Pos, error) {
	if index < 0 || index > d.visibleLen {
		return nil, errIndexRange(index, d.visibleLen)
	}
	parent := d.root.pos
	if index > 0 {
		p, _ := d.PositionOf(index - 1)
		parent = p
	}
	runes := []rune(text)
	positions := make([]position.Pos, 0, len(runes))
	for _, r := range runes {
		d.seq++
		np := position.NewPos(d.site, d.seq)
		n := &node{pos: np, parent: parent, value: r}
		d.integrate(n)
		positions = append(positions, np)
		parent = np
	}
	if len(runes) > 0 {
		// Meta stays nil: this Doc is a single-process, already-local
		// text CRDT with no transport stamping its own mutations.
		d.publish(textcrdt.Event{Kind: textcrdt.EventInsert, Index: index, Values: runes, Positions: positions})
	}
	return positions, nil
}

func (d *Doc) Delete(index, count int) error {
	if index < 0 || count < 0 || index+count > d.visibleLen {
		return errIndexRange(index, d.visibleLen)
	}
	values := make([]rune, 0, count)
	positions := make([]position.Pos, 0, count)
	visible := 0
	for cur := d.root.next; cur != nil && len(positions) < count; cur = cur.next {
		if cur.deleted {
			continue
		}
		if visible >= index {
			cur.deleted = true
			d.visibleLen--
			values = append(values, cur.value)
			positions = append(positions, cur.pos)
		}
		visible++
	}
	if len(positions) > 0 {
		d.publish(textcrdt.Event{Kind: textcrdt.EventDelete, Index: index, Values: values, Positions: positions})
	}
	return nil
}

// DeleteRange deletes every currently present node whose position lies
// between start and end inclusive, walking document order rather than
// index order — start/end may already be tombstoned (spec.md S5), in
// which case this is a no-op for that endpoint but still deletes
// anything still live in between.
func (d *Doc) DeleteRange(start, end position.Pos) error {
	inRange := false
	var values []rune
	var positions []position.Pos
	index := -1
	visible := 0
	for cur := d.root.next; cur != nil; cur = cur.next {
		if cur.pos == start {
			inRange = true
		}
		if inRange && !cur.deleted {
			if index == -1 {
				index = visible
			}
			cur.deleted = true
			d.visibleLen--
			values = append(values, cur.value)
			positions = append(positions, cur.pos)
		}
		if !cur.deleted {
			visible++
		}
		if cur.pos == end {
			break
		}
	}
	if len(positions) > 0 {
		d.publish(textcrdt.Event{Kind: textcrdt.EventDelete, Index: index, Values: values, Positions: positions})
	}
	return nil
}

// integrate links n after its parent, ordering same-parent siblings by
// descending position.Compare so every replica that integrates the
// same set of nodes produces the same linearization.
func (d *Doc) integrate(n *node) {
	parent := d.root
	if p, ok := d.registry[n.parent]; ok {
		parent = p
	}
	prev := parent
	cur := parent.next
	for cur != nil && cur.parent == n.parent {
		if position.Compare(n.pos, cur.pos) > 0 {
			break
		}
		prev = cur
		cur = cur.next
	}
	n.next = cur
	prev.next = n
	d.registry[n.pos] = n
	if !n.deleted {
		d.visibleLen++
	}
}

type rangeErr struct {
	index, length int
}

func (e *rangeErr) Error() string {
	return "rga: index out of range"
}

func errIndexRange(index, length int) error {
	return &rangeErr{index: index, length: length}
}
