package physical_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/matheuscscp/radio-sim/layers/physical"
	"github.com/matheuscscp/radio-sim/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectedAirs(t *testing.T) {
	air1, err := physical.NewUnreliableAir(context.Background(), physical.UnreliableAirConfig{
		RecvUDPEndpoint: ":50101",
		SendUDPEndpoint: ":50102",
	})
	require.NoError(t, err)
	require.NotNil(t, air1)

	air2, err := physical.NewUnreliableAir(context.Background(), physical.UnreliableAirConfig{
		RecvUDPEndpoint: ":50102",
		SendUDPEndpoint: ":50101",
	})
	require.NoError(t, err)
	require.NotNil(t, air2)

	air1Payload := []byte("hello air2")
	n, err := air1.Send(context.Background(), air1Payload)
	require.NoError(t, err)
	assert.Equal(t, len(air1Payload), n)

	buf := make([]byte, physical.MTU)
	n, err = air2.Recv(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, air1Payload, buf[:n])

	air2Payload := []byte("hello air1")
	n, err = air2.Send(context.Background(), air2Payload)
	require.NoError(t, err)
	assert.Equal(t, len(air2Payload), n)

	n, err = air1.Recv(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, air2Payload, buf[:n])

	require.NoError(t, air1.Close())
	require.NoError(t, air2.Close())
}

func TestTotalLoss(t *testing.T) {
	air1, err := physical.NewUnreliableAir(context.Background(), physical.UnreliableAirConfig{
		RecvUDPEndpoint: ":50111",
		SendUDPEndpoint: ":50112",
		LossRate:        1,
	})
	require.NoError(t, err)
	require.NotNil(t, air1)

	air2, err := physical.NewUnreliableAir(context.Background(), physical.UnreliableAirConfig{
		RecvUDPEndpoint: ":50112",
		SendUDPEndpoint: ":50111",
	})
	require.NoError(t, err)
	require.NotNil(t, air2)

	// the transmitter has no way to know the transmission was
	// lost, so Send() reports success
	payload := []byte("hello air2")
	n, err := air1.Send(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	// nothing ever arrives
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	buf := make([]byte, physical.MTU)
	_, err = air2.Recv(ctx, buf)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, air1.Close())
	require.NoError(t, air2.Close())
}

func TestInvalidLossRate(t *testing.T) {
	air, err := physical.NewUnreliableAir(context.Background(), physical.UnreliableAirConfig{
		RecvUDPEndpoint: ":50121",
		SendUDPEndpoint: ":50122",
		LossRate:        1.5,
	})
	require.Error(t, err)
	assert.Nil(t, air)
}

func TestCapture(t *testing.T) {
	captureFile := test.CaptureFilename(t)
	air1, err := physical.NewUnreliableAir(context.Background(), physical.UnreliableAirConfig{
		RecvUDPEndpoint: ":50131",
		SendUDPEndpoint: ":50132",
		Capture: &physical.CaptureConfig{
			Filename: captureFile,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, air1)

	air2, err := physical.NewUnreliableAir(context.Background(), physical.UnreliableAirConfig{
		RecvUDPEndpoint: ":50132",
		SendUDPEndpoint: ":50131",
	})
	require.NoError(t, err)
	require.NotNil(t, air2)

	payload := []byte("hello air2")
	_, err = air1.Send(context.Background(), payload)
	require.NoError(t, err)

	buf := make([]byte, physical.MTU)
	n, err := air2.Recv(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])

	require.NoError(t, air1.Close())
	require.NoError(t, air2.Close())

	info, err := os.Stat(captureFile)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
