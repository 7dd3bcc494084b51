package link

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

type (
	// Address is a short radio address. The zero value is not a
	// valid address.
	Address uint8

	// FrameKind tells data frames and acknowledgment frames apart.
	FrameKind uint8

	// Frame is the unit of data exchanged over the air by radio
	// ports. Ack frames carry no payload and echo the sequence
	// number of the data frame being acknowledged.
	Frame struct {
		DstAddr Address
		SrcAddr Address
		Kind    FrameKind
		Seq     uint16
		Payload []byte
	}
)

const (
	FrameKindData FrameKind = iota + 1
	FrameKindAck
)

func (f FrameKind) String() string {
	switch f {
	case FrameKindData:
		return "data"
	case FrameKindAck:
		return "ack"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

// serialize encapsulates the frame for the air: header, payload
// and a trailing crc32 checksum over everything before it.
func (f *Frame) serialize() []byte {
	buf := make([]byte, HeaderLength+len(f.Payload)+ChecksumLength)
	buf[0] = byte(f.DstAddr)
	buf[1] = byte(f.SrcAddr)
	buf[2] = byte(f.Kind)
	binary.LittleEndian.PutUint16(buf[3:HeaderLength], f.Seq)
	copy(buf[HeaderLength:], f.Payload)
	siz := HeaderLength + len(f.Payload)
	crc := crc32.Checksum(buf[:siz], crc32.MakeTable(crc32.IEEE))
	binary.LittleEndian.PutUint32(buf[siz:], crc)
	return buf
}

func deserializeFrame(frameBuf []byte) (*Frame, error) {
	if len(frameBuf) < HeaderLength+ChecksumLength {
		return nil, fmt.Errorf("frame has less than %d bytes, cannot be valid", HeaderLength+ChecksumLength)
	}

	// split frame data and crc
	siz := len(frameBuf) - ChecksumLength
	frameData, crcBuf := frameBuf[:siz], frameBuf[siz:]

	// validate crc
	crc := crc32.Checksum(frameData, crc32.MakeTable(crc32.IEEE))
	expectedCrc := binary.LittleEndian.Uint32(crcBuf)
	if crc != expectedCrc {
		return nil, fmt.Errorf("crc32.IEEE integrity check failed, want %x, got %x", expectedCrc, crc)
	}

	return &Frame{
		DstAddr: Address(frameData[0]),
		SrcAddr: Address(frameData[1]),
		Kind:    FrameKind(frameData[2]),
		Seq:     binary.LittleEndian.Uint16(frameData[3:HeaderLength]),
		Payload: frameData[HeaderLength:],
	}, nil
}
