package dlep

import "fmt"

// Framer accumulates inbound bytes for one peer and yields complete
// ProtocolMessages as soon as enough bytes have arrived, per spec.md
// §4.5's inbound path: "bytes are appended to a per-peer buffer... once
// the buffer holds ≥ total length, the signal is decoded." Grounded on
// internal/bfd/packet.go's header-then-body parsing discipline, adapted
// from BFD's fixed-size datagram framing to DLEP's variable-length
// streaming framing.
type Framer struct {
	codec Codec
	cat   ProtocolConfig
	buf   []byte
}

// NewFramer constructs a Framer for one peer's inbound byte stream.
func NewFramer(codec Codec, cat ProtocolConfig) *Framer {
	return &Framer{codec: codec, cat: cat}
}

// Feed appends data to the internal buffer and returns every complete
// signal now available, in arrival order. A decode error for any one
// signal is returned immediately; the caller (Peer) terminates the session
// with Invalid_Message (spec.md §4.5).
func (f *Framer) Feed(data []byte) ([]ProtocolMessage, error) {
	f.buf = append(f.buf, data...)

	var messages []ProtocolMessage
	for {
		if len(f.buf) < f.codec.HeaderLen() {
			return messages, nil
		}
		_, totalLen, err := f.codec.ParseHeader(f.buf)
		if err != nil {
			return messages, fmt.Errorf("frame: %w", err)
		}
		if totalLen < f.codec.HeaderLen() {
			return messages, fmt.Errorf("frame: header declares impossible length %d", totalLen)
		}
		if len(f.buf) < totalLen {
			return messages, nil
		}

		msg, err := f.codec.Decode(f.buf[:totalLen], f.cat)
		if err != nil {
			return messages, fmt.Errorf("frame: %w", err)
		}
		messages = append(messages, msg)
		f.buf = f.buf[totalLen:]
	}
}

// BuildMessage serializes a signal for transmission.
func BuildMessage(codec Codec, cat ProtocolConfig, signal SignalID, items []DataItem) ([]byte, error) {
	return codec.Encode(ProtocolMessage{Signal: signal, Items: items}, cat)
}
