package protocol

import (
	"encoding/binary"
	"errors"
)

// Wire framing:
//
//	? # # <msg_id:2 BE> <msg_len:4 BE> <payload ...>
//
// Each packet is PacketSize bytes; the first packet of a message starts
// with "?##", subsequent packets start with "?". The device assembles up
// to MsgInEncodedSize bytes before decoding into a typed Envelope.

const (
	packetMagicFirst = '?'
	packetMagicHash  = '#'
)

var (
	ErrPacketTooShort  = errors.New("protocol: packet shorter than header")
	ErrBadFirstPacket  = errors.New("protocol: first packet missing ?## magic")
	ErrBadContPacket   = errors.New("protocol: continuation packet missing ? magic")
	ErrMessageTooLarge = errors.New("protocol: message exceeds MsgInEncodedSize")
)

// Reassembler accumulates fixed-size packets into a decoded Envelope.
// One Reassembler serves a connection's decode loop and is reused across
// messages: Feed resets it after each completed message, and the loop
// calls Reset after a malformed packet.
type Reassembler struct {
	packetSize int
	maxSize    int

	id       MessageID
	declared uint32
	buf      []byte
	started  bool
}

// NewReassembler builds a Reassembler bound to the given packet and
// max-message sizes (normally config.Config.PacketSize /
// MsgInEncodedSize).
func NewReassembler(packetSize, maxSize int) *Reassembler {
	return &Reassembler{packetSize: packetSize, maxSize: maxSize}
}

// Reset discards any partially assembled message.
func (r *Reassembler) Reset() {
	r.started = false
	r.buf = nil
	r.declared = 0
}

// Feed appends one packet's worth of bytes. It returns (envelope, true,
// nil) once the declared length has been fully assembled, (zero, false,
// nil) if more packets are needed, or an error if the packet is
// malformed.
func (r *Reassembler) Feed(packet []byte) (Envelope, bool, error) {
	if len(packet) < 1 {
		return Envelope{}, false, ErrPacketTooShort
	}
	if !r.started {
		if len(packet) < 9 || packet[0] != packetMagicFirst || packet[1] != packetMagicHash || packet[2] != packetMagicHash {
			return Envelope{}, false, ErrBadFirstPacket
		}
		id := binary.BigEndian.Uint16(packet[3:5])
		length := binary.BigEndian.Uint32(packet[5:9])
		if int(length) > r.maxSize {
			return Envelope{}, false, ErrMessageTooLarge
		}
		r.id = MessageID(id)
		r.declared = length
		r.buf = append([]byte(nil), packet[9:]...)
		r.started = true
	} else {
		if packet[0] != packetMagicFirst {
			return Envelope{}, false, ErrBadContPacket
		}
		r.buf = append(r.buf, packet[1:]...)
	}

	if uint32(len(r.buf)) >= r.declared {
		payload := r.buf[:r.declared]
		env := Envelope{ID: r.id, Payload: payload}
		r.Reset()
		return env, true, nil
	}
	return Envelope{}, false, nil
}

// Fragment splits an outgoing message into fixed-size packets using the
// same framing, for the transport's reply path.
func Fragment(id MessageID, payload []byte, packetSize int) [][]byte {
	header := make([]byte, 9)
	header[0], header[1], header[2] = packetMagicFirst, packetMagicHash, packetMagicHash
	binary.BigEndian.PutUint16(header[3:5], uint16(id))
	binary.BigEndian.PutUint32(header[5:9], uint32(len(payload)))

	body := append(header, payload...)

	var packets [][]byte
	n := packetSize
	if n > len(body) {
		n = len(body)
	}
	first := make([]byte, packetSize)
	copy(first, body[:n])
	packets = append(packets, first)
	body = body[n:]

	for len(body) > 0 {
		m := packetSize - 1
		if m > len(body) {
			m = len(body)
		}
		cont := make([]byte, packetSize)
		cont[0] = packetMagicFirst
		copy(cont[1:], body[:m])
		packets = append(packets, cont)
		body = body[m:]
	}
	return packets
}
