package node_test

import (
	"context"
	"testing"
	"time"

	"github.com/matheuscscp/radio-sim/layers/link"
	"github.com/matheuscscp/radio-sim/layers/physical"
	"github.com/matheuscscp/radio-sim/node"
	"github.com/matheuscscp/radio-sim/sensor"
	"github.com/matheuscscp/radio-sim/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestResponderEndToEnd drives a real responder node over real
// radio ports on the host network, with the test playing the
// requester side.
func TestResponderEndToEnd(t *testing.T) {
	requesterPort, err := link.NewRadioPort(context.Background(), link.RadioPortConfig{
		Address: 1,
		Medium: physical.UnreliableAirConfig{
			RecvUDPEndpoint: ":50301",
			SendUDPEndpoint: ":50302",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, requesterPort)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- node.Run(ctx, node.Config{
			Role:        node.RoleResponder,
			PeerAddress: 1,
			Port: link.RadioPortConfig{
				Address: 2,
				Medium: physical.UnreliableAirConfig{
					RecvUDPEndpoint: ":50302",
					SendUDPEndpoint: ":50301",
				},
			},
		}, nil, sensor.Func(func(context.Context) (uint16, error) {
			return 42, nil
		}))
	}()

	// request a reading. the link layer absorbs the responder's
	// bring-up delay through ack retransmissions
	request := &node.Packet{Type: node.PacketTypeRequest, Counter: 5}
	payload := make([]byte, node.PacketSize)
	require.NoError(t, request.Marshal(payload))
	require.NoError(t, requesterPort.Send(context.Background(), 2, payload))
	test.AssertSendOutcome(t, requesterPort.Outcomes(), payload, true)

	// the response echoes the request's counter
	select {
	case frame := <-requesterPort.Recv():
		require.NotNil(t, frame)
		response, err := node.UnmarshalPacket(frame.Payload)
		require.NoError(t, err)
		assert.Equal(t, &node.Packet{
			Type:    node.PacketTypeResponse,
			Counter: 5,
			Value:   42,
		}, response)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the response")
	}

	cancel()
	require.NoError(t, <-errCh)
	test.CloseRadioPortsAndFlagErrorForUnexpectedData(t, requesterPort)
}
