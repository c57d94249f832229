package dlep

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// ProtocolMessage is a decoded DLEP signal: a signal id and its ordered
// sequence of data items (spec.md §6: "a header of signal id + total
// length, followed by a sequence of type-length-value data items").
type ProtocolMessage struct {
	Signal SignalID
	Items  []DataItem
}

// Codec serializes and deserializes ProtocolMessages. The core treats the
// wire bit-layout of individual data items as a non-goal (spec.md §1,
// "Non-goals") delegated entirely to this collaborator; Message Dispatch
// (dispatch.go) only owns signal framing (header parsing, length
// accounting) and handler routing, never item-level bit layout.
type Codec interface {
	// Encode serializes msg, including its header, into wire bytes.
	Encode(msg ProtocolMessage, cat ProtocolConfig) ([]byte, error)

	// Decode parses a single complete signal (header + items) from raw,
	// which holds exactly one signal's worth of bytes as determined by
	// the header's length field.
	Decode(raw []byte, cat ProtocolConfig) (ProtocolMessage, error)

	// HeaderLen is the fixed size of a signal header in bytes.
	HeaderLen() int

	// ParseHeader reads the signal id and total signal length (header +
	// items) from the first HeaderLen bytes of buf.
	ParseHeader(buf []byte) (signal SignalID, totalLen int, err error)
}

// tlvCodec is the reference Codec: a 4-byte header (2-byte signal id,
// 2-byte total length) followed by data items each framed as a 4-byte
// item header (2-byte item id, 2-byte item value length) plus value
// bytes. IP-address items encode their add/remove flag, address family,
// address bytes, and prefix length inside the value, grounded on
// internal/bfd/packet.go's fixed-width binary.BigEndian framing style.
type tlvCodec struct{}

// NewTLVCodec returns the reference length-prefixed TLV Codec.
func NewTLVCodec() Codec { return tlvCodec{} }

const (
	signalHeaderLen = 4
	itemHeaderLen   = 4

	ipFamilyV4 = 4
	ipFamilyV6 = 6
)

func (tlvCodec) HeaderLen() int { return signalHeaderLen }

func (tlvCodec) ParseHeader(buf []byte) (SignalID, int, error) {
	if len(buf) < signalHeaderLen {
		return 0, 0, fmt.Errorf("parse header: need %d bytes, have %d", signalHeaderLen, len(buf))
	}
	signal := SignalID(binary.BigEndian.Uint16(buf[0:2]))
	totalLen := int(binary.BigEndian.Uint16(buf[2:4]))
	return signal, totalLen, nil
}

func (c tlvCodec) Encode(msg ProtocolMessage, cat ProtocolConfig) ([]byte, error) {
	body, err := c.encodeItems(msg.Items, cat)
	if err != nil {
		return nil, fmt.Errorf("encode %v: %w", msg.Signal, err)
	}
	totalLen := signalHeaderLen + len(body)
	out := make([]byte, signalHeaderLen, totalLen)
	binary.BigEndian.PutUint16(out[0:2], uint16(msg.Signal))
	binary.BigEndian.PutUint16(out[2:4], uint16(totalLen))
	return append(out, body...), nil
}

func (c tlvCodec) encodeItems(items []DataItem, cat ProtocolConfig) ([]byte, error) {
	var out []byte
	for _, item := range items {
		value, err := c.encodeValue(item, cat)
		if err != nil {
			return nil, err
		}
		header := make([]byte, itemHeaderLen)
		binary.BigEndian.PutUint16(header[0:2], uint16(item.ID))
		binary.BigEndian.PutUint16(header[2:4], uint16(len(value)))
		out = append(out, header...)
		out = append(out, value...)
	}
	return out, nil
}

func (tlvCodec) encodeValue(item DataItem, cat ProtocolConfig) ([]byte, error) {
	if cat.DataItemKind(item.ID) != KindIPAddress {
		return item.Value, nil
	}
	if !item.Addr.IsValid() {
		return nil, fmt.Errorf("encode ip item %d: invalid address", item.ID)
	}
	addrBytes := item.Addr.AsSlice()
	family := byte(ipFamilyV4)
	if item.Addr.Is6() {
		family = ipFamilyV6
	}
	value := make([]byte, 0, 3+len(addrBytes))
	value = append(value, byte(item.Op), family)
	value = append(value, addrBytes...)
	value = append(value, byte(item.PrefixLen))
	return value, nil
}

func (c tlvCodec) Decode(raw []byte, cat ProtocolConfig) (ProtocolMessage, error) {
	signal, totalLen, err := c.ParseHeader(raw)
	if err != nil {
		return ProtocolMessage{}, err
	}
	if totalLen != len(raw) {
		return ProtocolMessage{}, fmt.Errorf("decode: header declares %d bytes, have %d", totalLen, len(raw))
	}
	items, err := c.decodeItems(raw[signalHeaderLen:], cat)
	if err != nil {
		return ProtocolMessage{}, fmt.Errorf("decode %v: %w", SignalID(signal), err)
	}
	return ProtocolMessage{Signal: signal, Items: items}, nil
}

func (c tlvCodec) decodeItems(buf []byte, cat ProtocolConfig) ([]DataItem, error) {
	var items []DataItem
	for len(buf) > 0 {
		if len(buf) < itemHeaderLen {
			return nil, fmt.Errorf("truncated item header (%d bytes left)", len(buf))
		}
		id := DataItemID(binary.BigEndian.Uint16(buf[0:2]))
		length := int(binary.BigEndian.Uint16(buf[2:4]))
		buf = buf[itemHeaderLen:]
		if len(buf) < length {
			return nil, fmt.Errorf("truncated item %d value (need %d, have %d)", id, length, len(buf))
		}
		value := buf[:length]
		buf = buf[length:]

		item, err := c.decodeValue(id, value, cat)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (tlvCodec) decodeValue(id DataItemID, value []byte, cat ProtocolConfig) (DataItem, error) {
	if cat.DataItemKind(id) != KindIPAddress {
		return DataItem{ID: id, Value: append([]byte(nil), value...)}, nil
	}
	if len(value) < 3 {
		return DataItem{}, fmt.Errorf("decode ip item %d: value too short (%d bytes)", id, len(value))
	}
	op := IPOp(value[0])
	family := value[1]
	addrBytes := value[2 : len(value)-1]
	prefixLen := int(value[len(value)-1])

	var addr netip.Addr
	var ok bool
	switch family {
	case ipFamilyV4:
		if len(addrBytes) != 4 {
			return DataItem{}, fmt.Errorf("decode ip item %d: bad v4 length %d", id, len(addrBytes))
		}
		addr, ok = netip.AddrFromSlice(addrBytes)
	case ipFamilyV6:
		if len(addrBytes) != 16 {
			return DataItem{}, fmt.Errorf("decode ip item %d: bad v6 length %d", id, len(addrBytes))
		}
		addr, ok = netip.AddrFromSlice(addrBytes)
	default:
		return DataItem{}, fmt.Errorf("decode ip item %d: unknown address family %d", id, family)
	}
	if !ok {
		return DataItem{}, fmt.Errorf("decode ip item %d: malformed address", id)
	}

	return DataItem{ID: id, Op: op, Addr: addr, PrefixLen: prefixLen}, nil
}
