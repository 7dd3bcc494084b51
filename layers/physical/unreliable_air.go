package physical

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/matheuscscp/radio-sim/layers/common"
	"github.com/matheuscscp/radio-sim/observability"
	pkgcontext "github.com/matheuscscp/radio-sim/pkg/context"

	"github.com/google/gopacket"
	gplayers "github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

type (
	// UnreliableAir represents a hypothetical wireless medium
	// where you can transmit and receive bytes. No guarantee is
	// provided about the delivery/integrity: beyond whatever the
	// underlying host network does, the air drops outbound
	// transmissions with a configurable probability, simulating
	// interference and collisions.
	UnreliableAir interface {
		Send(ctx context.Context, payload []byte) (n int, err error)
		Recv(ctx context.Context, payload []byte) (n int, err error)
		Close() error
	}

	// UnreliableAirConfig contains the UDP configs for the
	// concrete implementation of UnreliableAir.
	UnreliableAirConfig struct {
		RecvUDPEndpoint string         `yaml:"recvUDPEndpoint"`
		SendUDPEndpoint string         `yaml:"sendUDPEndpoint"`
		LossRate        float64        `yaml:"lossRate"`
		Capture         *CaptureConfig `yaml:"capture"`
		MetricLabels    struct {
			StackName string `yaml:"stackName"`
		} `yaml:"metricLabels"`
	}

	// CaptureConfig allows specifying configurations for capturing
	// traffic in the pcapng format.
	CaptureConfig struct {
		Filename string `yaml:"filename"`
	}

	unreliableAir struct {
		ctx           context.Context
		cancelCtx     context.CancelFunc
		conf          *UnreliableAirConfig
		conn          net.Conn
		wg            sync.WaitGroup
		captureCh     chan []byte
		recvdBytes    prometheus.Counter
		sentBytes     prometheus.Counter
		lostBytes     prometheus.Counter
		recvLatencyNs prometheus.Observer
		sendLatencyNs prometheus.Observer
	}
)

const (
	promSubsystemAir         = "unreliable_air"
	labelNameRecvUDPEndpoint = "recv_udp_endpoint"
	labelNameSendUDPEndpoint = "send_udp_endpoint"
)

var (
	metricLabelsAir = []string{
		observability.StackName,
		labelNameRecvUDPEndpoint,
		labelNameSendUDPEndpoint,
	}
	recvdBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemAir,
		Name:      "recvd_bytes",
		Help:      "Total number of received bytes.",
	}, metricLabelsAir)
	sentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemAir,
		Name:      "sent_bytes",
		Help:      "Total number of sent bytes.",
	}, metricLabelsAir)
	lostBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemAir,
		Name:      "lost_bytes",
		Help:      "Total number of bytes dropped by the simulated loss rate.",
	}, metricLabelsAir)
	recvLatencyNs = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemAir,
		Name:      "recv_latency_ns",
		Help:      "Latency in nanoseconds of UnreliableAir.Recv().",
	}, metricLabelsAir)
	sendLatencyNs = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemAir,
		Name:      "send_latency_ns",
		Help:      "Latency in nanoseconds of UnreliableAir.Send().",
	}, metricLabelsAir)
)

// NewUnreliableAir creates an UnreliableAir from config.
func NewUnreliableAir(ctx context.Context, conf UnreliableAirConfig) (UnreliableAir, error) {
	if conf.LossRate < 0 || 1 < conf.LossRate {
		return nil, fmt.Errorf("loss rate must be within [0, 1], got %v", conf.LossRate)
	}

	// create UDP socket on the host network and air
	recvAddr, err := net.ResolveUDPAddr("udp", conf.RecvUDPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("error resolving udp address of recv endpoint: %w", err)
	}
	dialer := &net.Dialer{LocalAddr: recvAddr}
	conn, err := dialer.DialContext(ctx, "udp", conf.SendUDPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("error dialing udp: %w", err)
	}
	airCtx, cancel := context.WithCancel(context.Background())
	stackName := conf.MetricLabels.StackName
	if stackName == "" {
		stackName = "default"
	}
	metricLabels := prometheus.Labels{
		observability.StackName:  stackName,
		labelNameRecvUDPEndpoint: conf.RecvUDPEndpoint,
		labelNameSendUDPEndpoint: conf.SendUDPEndpoint,
	}
	a := &unreliableAir{
		ctx:           airCtx,
		cancelCtx:     cancel,
		conf:          &conf,
		conn:          conn,
		recvdBytes:    recvdBytes.With(metricLabels),
		sentBytes:     sentBytes.With(metricLabels),
		lostBytes:     lostBytes.With(metricLabels),
		recvLatencyNs: recvLatencyNs.With(metricLabels),
		sendLatencyNs: sendLatencyNs.With(metricLabels),
	}

	if conf.Capture != nil {
		// open capture file and pcapng writer
		captureFile, err := os.Create(conf.Capture.Filename)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("error creating capture file %s: %w", conf.Capture.Filename, err)
		}
		captureWriter, err := pcapgo.NewNgWriter(captureFile, gplayers.LinkTypeNull)
		if err != nil {
			captureFile.Close()
			conn.Close()
			return nil, fmt.Errorf("error creating pcapng writer: %w", err)
		}

		// start capture thread
		a.captureCh = make(chan []byte, channelSize)
		a.wg.Add(1)
		go func() {
			defer func() {
				captureWriter.Flush()
				captureFile.Close()
				a.wg.Done()
			}()

			l := logrus.
				WithField("recv_udp_endpoint", conf.RecvUDPEndpoint).
				WithField("send_udp_endpoint", conf.SendUDPEndpoint)

			ctxDone := airCtx.Done()
			for {
				select {
				case <-ctxDone:
					return
				case b := <-a.captureCh:
					err := captureWriter.WritePacket(gopacket.CaptureInfo{
						Timestamp:     time.Now(),
						CaptureLength: len(b),
						Length:        len(b),
					}, b)
					if err != nil {
						l.
							WithError(err).
							Error("error capturing data")
						continue
					}
					captureWriter.Flush()
				}
			}
		}()
	}

	return a, nil
}

func (a *unreliableAir) Send(ctx context.Context, payload []byte) (n int, err error) {
	// validate payload size
	if len(payload) == 0 {
		return 0, common.ErrCannotSendEmpty
	}
	if len(payload) > MTU {
		return 0, fmt.Errorf("payload is larger than physical layer MTU (%d)", MTU)
	}

	// simulate loss. the transmitter has no way to know the
	// transmission was lost, so report success
	if rate := a.conf.LossRate; rate > 0 && rand.Float64() < rate {
		a.lostBytes.Add(float64(len(payload)))
		return len(payload), nil
	}

	c := net.Conn(a.conn)

	// initially, no timeout
	if err := c.SetWriteDeadline(time.Time{}); err != nil {
		return 0, fmt.Errorf("error setting write deadline to zero: %w", err)
	}

	// write in a separate thread
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		t0 := time.Now()
		n, err = c.Write(payload)
		a.sendLatencyNs.Observe(float64(time.Since(t0).Nanoseconds()))
		if err == nil {
			a.capture(payload[:n])
			a.sentBytes.Add(float64(n))
		}
	}()

	// wait for ch or for ctx.Done() and cancel the operation
	ctx, cancel := pkgcontext.WithCancelOnAnotherContext(ctx, a.ctx)
	defer cancel()
	select {
	case <-ctx.Done():
		if err := c.SetWriteDeadline(time.Now()); err != nil { // force timeout for ongoing blocked write
			return 0, fmt.Errorf("error forcing timeout after context done: %w", err)
		}
		<-ch
		return 0, ctx.Err()
	case <-ch:
		return
	}
}

func (a *unreliableAir) Recv(ctx context.Context, payload []byte) (n int, err error) {
	c := net.Conn(a.conn)

	// initially, no timeout
	if err := c.SetReadDeadline(time.Time{}); err != nil {
		return 0, fmt.Errorf("error setting read deadline to zero: %w", err)
	}

	// read in a separate thread
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		t0 := time.Now()
		n, err = c.Read(payload)
		a.recvLatencyNs.Observe(float64(time.Since(t0).Nanoseconds()))
		if err == nil {
			a.capture(payload[:n])
			a.recvdBytes.Add(float64(n))
		} else if errors.Is(err, syscall.ECONNREFUSED) {
			n, err = 0, nil
		}
	}()

	// wait for ch or for ctx.Done() and cancel the operation
	ctx, cancel := pkgcontext.WithCancelOnAnotherContext(ctx, a.ctx)
	defer cancel()
	select {
	case <-ctx.Done():
		if err := c.SetReadDeadline(time.Now()); err != nil { // force timeout for ongoing blocked read
			return 0, fmt.Errorf("error forcing timeout after context done: %w", err)
		}
		<-ch
		return 0, ctx.Err()
	case <-ch:
		return
	}
}

func (a *unreliableAir) Close() error {
	// cancel ctx
	var cancel context.CancelFunc
	cancel, a.cancelCtx = a.cancelCtx, nil
	if cancel == nil {
		return nil
	}
	cancel()

	// wait threads
	a.wg.Wait()

	return a.conn.Close()
}

func (a *unreliableAir) capture(b []byte) {
	if a.captureCh == nil {
		return
	}

	go func() {
		select {
		case a.captureCh <- b:
		case <-a.ctx.Done():
		}
	}()
}
