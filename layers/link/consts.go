package link

import (
	"time"

	"github.com/matheuscscp/radio-sim/layers/physical"
)

const (
	// HeaderLength is the radio frame header length: dst address,
	// src address, frame kind and a two-byte sequence number.
	HeaderLength = 5

	// ChecksumLength is the frame check sequence (FCS) length (32-bit CRC).
	ChecksumLength = 4

	// MTU (maximum transmission unit) is the maximum number of bytes that are
	// allowed on the payload of a frame (the link layer name for a packet).
	MTU = physical.MTU - HeaderLength - ChecksumLength

	channelSize = 1024

	promNamespace = "link_layer"

	// defaultAckTimeout is how long a transmission waits for an ack
	// frame before retransmitting, when not configured.
	defaultAckTimeout = 100 * time.Millisecond

	// defaultMaxTransmits is the total number of transmissions of a
	// frame before giving up on an ack, when not configured.
	defaultMaxTransmits = 4
)
