package node

import (
	"encoding/binary"
	"fmt"
)

type (
	// PacketType tells requests and responses apart.
	PacketType uint8

	// Packet is the unit exchanged between the two nodes, carried
	// as the payload of a radio link frame. The wire format is
	// fixed-size: both ends reject payloads of any other length
	// before interpreting them.
	Packet struct {
		Type    PacketType
		Counter uint16
		Value   uint16
	}
)

const (
	PacketTypeRequest PacketType = iota + 1
	PacketTypeResponse
)

// PacketSize is the fixed wire size of a Packet: one byte for the
// type, two for the counter and two for the value, little-endian.
const PacketSize = 5

func (p PacketType) String() string {
	switch p {
	case PacketTypeRequest:
		return "request"
	case PacketTypeResponse:
		return "response"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// Marshal serializes the packet into buf, which must have exactly
// PacketSize bytes.
func (p *Packet) Marshal(buf []byte) error {
	if len(buf) != PacketSize {
		return fmt.Errorf("marshal buffer must have exactly %d bytes, got %d", PacketSize, len(buf))
	}
	buf[0] = byte(p.Type)
	binary.LittleEndian.PutUint16(buf[1:3], p.Counter)
	binary.LittleEndian.PutUint16(buf[3:5], p.Value)
	return nil
}

// UnmarshalPacket deserializes a packet from b, rejecting any
// length other than PacketSize.
func UnmarshalPacket(b []byte) (*Packet, error) {
	if len(b) != PacketSize {
		return nil, fmt.Errorf("packet must have exactly %d bytes, got %d", PacketSize, len(b))
	}
	return &Packet{
		Type:    PacketType(b[0]),
		Counter: binary.LittleEndian.Uint16(b[1:3]),
		Value:   binary.LittleEndian.Uint16(b[3:5]),
	}, nil
}
