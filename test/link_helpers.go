package test

import (
	"testing"

	"github.com/matheuscscp/radio-sim/layers/link"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertFrame expects the next frame delivered on ch to be a data
// frame from src to dst carrying payload. Sequence numbers are
// assigned by the sending port and not asserted.
func AssertFrame(
	t *testing.T,
	ch <-chan *link.Frame,
	src, dst link.Address,
	payload []byte,
) {
	actual := <-ch
	require.NotNil(t, actual)
	expected := &link.Frame{
		DstAddr: dst,
		SrcAddr: src,
		Kind:    link.FrameKindData,
		Seq:     actual.Seq,
		Payload: payload,
	}
	assert.Equal(t, expected, actual)
}

// AssertSendOutcome expects the next outcome reported on ch to
// return the given payload buffer with the given ack flag.
func AssertSendOutcome(
	t *testing.T,
	ch <-chan link.SendOutcome,
	payload []byte,
	acked bool,
) {
	outcome := <-ch
	require.NotEmpty(t, outcome.Payload)
	assert.Same(t, &payload[0], &outcome.Payload[0])
	assert.Equal(t, acked, outcome.Acked)
}

func FlagErrorForUnexpectedFrames(t *testing.T, ch <-chan *link.Frame) {
	for frame := range ch {
		t.Errorf("received more radio frames than expected: %+v", frame)
	}
}

func CloseRadioPortsAndFlagErrorForUnexpectedData(t *testing.T, ports ...link.RadioPort) {
	for _, port := range ports {
		require.NoError(t, port.Close())
	}
	for _, port := range ports {
		FlagErrorForUnexpectedFrames(t, port.Recv())
	}
}
