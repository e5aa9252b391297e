package annotation

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/Importantus/crdt-with-suggestion-mode/core/position"
	"github.com/Importantus/crdt-with-suggestion-mode/crdterrors"
)

// MarshalBinary encodes r in a fixed field order: id, tag bytes for
// kind, action and description, user_id, varint lamport, sender_id,
// varint timestamp, start and end positions, the two closed flags,
// value, dependent_on, and the updated-property names. Every field is
// written whatever the action. Start and End carry an explicit presence
// tag (0 open, 1 present); value and dependent_on are plain
// length-prefixed strings, so an empty string and an absent field
// encode the same way.
func (r Record) MarshalBinary() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	writeString(&buf, string(r.ID))
	buf.WriteByte(byte(r.Kind))
	buf.WriteByte(byte(r.Action))
	buf.WriteByte(byte(r.Description))
	writeString(&buf, r.UserID)
	writeVarint(&buf, int64(r.Lamport))
	writeString(&buf, r.SenderID)
	writeVarint(&buf, r.Timestamp)

	writePos(&buf, r.Start)
	writePos(&buf, r.End)
	buf.WriteByte(boolByte(r.StartClosed))
	buf.WriteByte(boolByte(r.EndClosed))
	writeString(&buf, r.Value)
	writeString(&buf, string(r.DependentOn))

	buf.WriteByte(byte(len(r.UpdatedProperties)))
	for _, f := range r.UpdatedProperties {
		writeString(&buf, string(f))
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a record encoded by MarshalBinary. A decode
// failure is always MalformedRecord (spec.md §7) — fatal to the
// current replica.
func (r *Record) UnmarshalBinary(data []byte) error {
	buf := bytes.NewReader(data)
	id, err := readString(buf)
	if err != nil {
		return decodeErr(err)
	}
	kindB, err := buf.ReadByte()
	if err != nil {
		return decodeErr(err)
	}
	actionB, err := buf.ReadByte()
	if err != nil {
		return decodeErr(err)
	}
	descB, err := buf.ReadByte()
	if err != nil {
		return decodeErr(err)
	}
	userID, err := readString(buf)
	if err != nil {
		return decodeErr(err)
	}
	lamport, err := readVarint(buf)
	if err != nil {
		return decodeErr(err)
	}
	senderID, err := readString(buf)
	if err != nil {
		return decodeErr(err)
	}
	ts, err := readVarint(buf)
	if err != nil {
		return decodeErr(err)
	}
	start, err := readPos(buf)
	if err != nil {
		return decodeErr(err)
	}
	end, err := readPos(buf)
	if err != nil {
		return decodeErr(err)
	}
	startClosedB, err := buf.ReadByte()
	if err != nil {
		return decodeErr(err)
	}
	endClosedB, err := buf.ReadByte()
	if err != nil {
		return decodeErr(err)
	}
	value, err := readString(buf)
	if err != nil {
		return decodeErr(err)
	}
	dependentOn, err := readString(buf)
	if err != nil {
		return decodeErr(err)
	}
	nProps, err := buf.ReadByte()
	if err != nil {
		return decodeErr(err)
	}
	var props []UpdatableField
	for i := byte(0); i < nProps; i++ {
		p, err := readString(buf)
		if err != nil {
			return decodeErr(err)
		}
		props = append(props, UpdatableField(p))
	}

	*r = Record{
		ID:                ID(id),
		Kind:              Kind(kindB),
		Action:            Action(actionB),
		Description:       Description(descB),
		UserID:            userID,
		Lamport:           uint64(lamport),
		SenderID:          senderID,
		Timestamp:         ts,
		Start:             start,
		End:               end,
		StartClosed:       startClosedB != 0,
		EndClosed:         endClosedB != 0,
		Value:             value,
		DependentOn:       ID(dependentOn),
		UpdatedProperties: props,
	}
	return r.Validate()
}

func decodeErr(err error) error {
	return crdterrors.Annotate(crdterrors.MalformedRecord, err, "decoding annotation record")
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func writeVarint(buf *bytes.Buffer, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readVarint(r *bytes.Reader) (int64, error) {
	return binary.ReadVarint(r)
}

func writeString(buf *bytes.Buffer, s string) {
	writeVarint(buf, int64(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readVarint(r)
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// writePos tags presence explicitly: 0 means "open" (nil), 1 means
// present followed by site+seq.
func writePos(buf *bytes.Buffer, p *position.Pos) {
	if p == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeString(buf, p.Site())
	writeVarint(buf, int64(p.Seq()))
}

func readPos(r *bytes.Reader) (*position.Pos, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	site, err := readString(r)
	if err != nil {
		return nil, err
	}
	seq, err := readVarint(r)
	if err != nil {
		return nil, err
	}
	p := position.NewPos(site, uint64(seq))
	return &p, nil
}
