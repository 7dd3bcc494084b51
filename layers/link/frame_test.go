package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameSerializeDeserialize(t *testing.T) {
	dataFrame := &Frame{
		DstAddr: 2,
		SrcAddr: 1,
		Kind:    FrameKindData,
		Seq:     1234,
		Payload: []byte("hello"),
	}
	got, err := deserializeFrame(dataFrame.serialize())
	require.NoError(t, err)
	assert.Equal(t, dataFrame, got)

	ackFrame := &Frame{
		DstAddr: 1,
		SrcAddr: 2,
		Kind:    FrameKindAck,
		Seq:     1234,
		Payload: []byte{},
	}
	got, err = deserializeFrame(ackFrame.serialize())
	require.NoError(t, err)
	assert.Equal(t, ackFrame, got)
}

func TestFrameChecksumMismatch(t *testing.T) {
	frame := &Frame{
		DstAddr: 2,
		SrcAddr: 1,
		Kind:    FrameKindData,
		Seq:     1,
		Payload: []byte("hello"),
	}
	buf := frame.serialize()
	buf[HeaderLength] ^= 0xff
	got, err := deserializeFrame(buf)
	require.Error(t, err)
	assert.Nil(t, got)
}

func TestFrameTooShort(t *testing.T) {
	got, err := deserializeFrame(make([]byte, HeaderLength+ChecksumLength-1))
	require.Error(t, err)
	assert.Nil(t, got)
}
