package link

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/matheuscscp/radio-sim/layers/common"
	"github.com/matheuscscp/radio-sim/layers/physical"
	"github.com/matheuscscp/radio-sim/observability"
	pkgtime "github.com/matheuscscp/radio-sim/pkg/time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

type (
	// RadioPort represents a hypothetical wireless network
	// interface, composed by an unreliable air medium and a short
	// radio address.
	//
	// A payload submitted with Send() is framed, transmitted and
	// tracked for link-layer acknowledgment: the transmission is
	// repeated on an ack timeout until either a matching ack frame
	// arrives or the number of transmissions is exhausted. The
	// outcome is then reported on Outcomes(), returning the payload
	// buffer lent to Send().
	//
	// Ports transmit one payload at a time: Send() rejects a
	// submission while another is outstanding.
	//
	// Inbound data frames with dst address not matching the port's
	// address will be discarded. Matching data frames are
	// acknowledged on the air before being delivered to Recv().
	RadioPort interface {
		Send(ctx context.Context, dstAddr Address, payload []byte) error
		Outcomes() <-chan SendOutcome
		Recv() <-chan *Frame
		Close() error
		Address() Address
	}

	// SendOutcome reports the completion of one tracked
	// transmission, returning the payload buffer ownership to the
	// caller of Send().
	SendOutcome struct {
		Payload []byte
		Acked   bool
	}

	// RadioPortConfig contains the configs for the concrete
	// implementation of RadioPort.
	RadioPortConfig struct {
		Address      uint8         `yaml:"address"`
		AckTimeout   time.Duration `yaml:"ackTimeout"`
		MaxTransmits int           `yaml:"maxTransmits"`

		Medium physical.UnreliableAirConfig `yaml:"unreliableAir"`
	}

	radioPort struct {
		ctx       context.Context
		cancelCtx context.CancelFunc
		conf      *RadioPortConfig
		l         logrus.FieldLogger
		addr      Address
		medium    physical.UnreliableAir
		out       chan *outFrame
		in        chan *Frame
		outcomes  chan SendOutcome
		acks      chan uint16
		wg        sync.WaitGroup

		mu   sync.Mutex
		busy bool
		seq  uint16

		// lastDelivered suppresses duplicate deliveries caused by
		// retransmissions of data frames whose ack frame was lost.
		// Only touched by the recv thread.
		lastDelivered map[Address]uint16

		retransmissions prometheus.Counter
		ackedSends      prometheus.Counter
		unackedSends    prometheus.Counter
		discardedFrames prometheus.Counter
	}

	outFrame struct {
		payload []byte
		seq     uint16
		dstAddr Address
	}
)

const (
	promSubsystemRadioPort = "radio_port"
	labelNamePortAddress   = "port_address"
)

var (
	metricLabelsRadioPort = []string{
		observability.StackName,
		labelNamePortAddress,
	}
	retransmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemRadioPort,
		Name:      "retransmissions",
		Help:      "Total number of retransmissions caused by ack timeouts.",
	}, metricLabelsRadioPort)
	ackedSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemRadioPort,
		Name:      "acked_sends",
		Help:      "Total number of tracked transmissions completed with an ack.",
	}, metricLabelsRadioPort)
	unackedSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemRadioPort,
		Name:      "unacked_sends",
		Help:      "Total number of tracked transmissions completed without an ack.",
	}, metricLabelsRadioPort)
	discardedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemRadioPort,
		Name:      "discarded_frames",
		Help:      "Total number of inbound frames discarded before delivery.",
	}, metricLabelsRadioPort)
)

// NewRadioPort creates a RadioPort from config. This is the radio
// bring-up: it binds the underlying socket and can fail.
func NewRadioPort(ctx context.Context, conf RadioPortConfig) (RadioPort, error) {
	if conf.Address == 0 {
		return nil, errors.New("the zero address is not a valid radio address")
	}
	if conf.AckTimeout <= 0 {
		conf.AckTimeout = defaultAckTimeout
	}
	if conf.MaxTransmits <= 0 {
		conf.MaxTransmits = defaultMaxTransmits
	}
	medium, err := physical.NewUnreliableAir(ctx, conf.Medium)
	if err != nil {
		return nil, fmt.Errorf("error creating medium: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	stackName := conf.Medium.MetricLabels.StackName
	if stackName == "" {
		stackName = "default"
	}
	metricLabels := prometheus.Labels{
		observability.StackName: stackName,
		labelNamePortAddress:    strconv.Itoa(int(conf.Address)),
	}
	p := &radioPort{
		ctx:             ctx,
		cancelCtx:       cancel,
		conf:            &conf,
		l:               logrus.WithField("port_address", conf.Address),
		addr:            Address(conf.Address),
		medium:          medium,
		out:             make(chan *outFrame, channelSize),
		in:              make(chan *Frame, channelSize),
		outcomes:        make(chan SendOutcome, channelSize),
		acks:            make(chan uint16, channelSize),
		lastDelivered:   make(map[Address]uint16),
		retransmissions: retransmissions.With(metricLabels),
		ackedSends:      ackedSends.With(metricLabels),
		unackedSends:    unackedSends.With(metricLabels),
		discardedFrames: discardedFrames.With(metricLabels),
	}
	p.startThreads()
	return p, nil
}

func (p *radioPort) startThreads() {
	// send
	ctxDone := p.ctx.Done()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctxDone:
				return
			case xfer := <-p.out:
				p.transmit(xfer)
			}
		}
	}()

	// recv
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			buf := make([]byte, 2*physical.MTU)
			n, err := p.medium.Recv(p.ctx, buf)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				p.l.
					WithError(err).
					Error("error receiving radio frame")
				continue
			}
			p.decap(buf[:n])
		}
	}()
}

func (p *radioPort) Send(ctx context.Context, dstAddr Address, payload []byte) error {
	// validate payload size
	if len(payload) == 0 {
		return common.ErrCannotSendEmpty
	}
	if len(payload) > MTU {
		return fmt.Errorf("payload is larger than link layer MTU (%d)", MTU)
	}

	// acquire the port for this transmission
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return common.ErrPortBusy
	}
	p.busy = true
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		p.release()
		return ctx.Err()
	case <-p.ctx.Done():
		p.release()
		return p.ctx.Err()
	case p.out <- &outFrame{payload, seq, dstAddr}:
	}

	return nil
}

func (p *radioPort) Outcomes() <-chan SendOutcome {
	return p.outcomes
}

func (p *radioPort) Recv() <-chan *Frame {
	return p.in
}

func (p *radioPort) release() {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
}

// transmit sends the data frame on the air and waits for a matching
// ack frame, retransmitting on ack timeouts up to the configured
// number of transmissions, then reports the outcome.
func (p *radioPort) transmit(xfer *outFrame) {
	frame := &Frame{
		DstAddr: xfer.dstAddr,
		SrcAddr: p.addr,
		Kind:    FrameKindData,
		Seq:     xfer.seq,
		Payload: xfer.payload,
	}
	buf := frame.serialize()
	l := p.l.
		WithField("frame", frame)

	acked := false
	for attempt := 0; attempt < p.conf.MaxTransmits && !acked; attempt++ {
		if attempt > 0 {
			p.retransmissions.Inc()
		}
		got, err := p.medium.Send(p.ctx, buf)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			l.
				WithError(err).
				Error("error transmitting radio frame")
		} else if want := len(buf); got < want {
			l.
				WithField("want", want).
				WithField("got", got).
				Error("wrong number of bytes sent for radio frame")
		}

		timer, stopTimer := pkgtime.NewTimer(p.conf.AckTimeout)
		for waiting := true; waiting && !acked; {
			select {
			case <-p.ctx.Done():
				stopTimer()
				return
			case seq := <-p.acks:
				// acks for older transmissions are stale, ignore
				if seq == xfer.seq {
					acked = true
				}
			case <-timer.C:
				waiting = false
			}
		}
		stopTimer()
	}

	if acked {
		p.ackedSends.Inc()
	} else {
		p.unackedSends.Inc()
	}
	p.release()

	select {
	case <-p.ctx.Done():
		l.
			WithError(p.ctx.Err()).
			Error("port context done while reporting send outcome")
	case p.outcomes <- SendOutcome{Payload: xfer.payload, Acked: acked}:
	}
}

func (p *radioPort) decap(frameBuf []byte) {
	frame, err := deserializeFrame(frameBuf)
	if err != nil {
		p.discardedFrames.Inc()
		p.l.
			WithError(err).
			WithField("frame_buf", frameBuf).
			Error("error decapsulating link layer")
		return
	}

	// check discard
	if frame.DstAddr != p.addr {
		p.discardedFrames.Inc()
		return
	}

	switch frame.Kind {
	case FrameKindAck:
		select {
		case p.acks <- frame.Seq:
		default:
		}
	case FrameKindData:
		p.ack(frame)
		if last, ok := p.lastDelivered[frame.SrcAddr]; ok && last == frame.Seq {
			p.discardedFrames.Inc()
			return
		}
		p.lastDelivered[frame.SrcAddr] = frame.Seq
		select {
		case <-p.ctx.Done():
			p.l.
				WithError(p.ctx.Err()).
				WithField("frame", frame).
				Error("port context done while receiving frame")
		case p.in <- frame:
		}
	default:
		p.discardedFrames.Inc()
		p.l.
			WithField("frame", frame).
			Error("discarding frame of unknown kind")
	}
}

// ack transmits an ack frame for the given data frame. Ack frames
// are not themselves acknowledged.
func (p *radioPort) ack(dataFrame *Frame) {
	ackFrame := &Frame{
		DstAddr: dataFrame.SrcAddr,
		SrcAddr: p.addr,
		Kind:    FrameKindAck,
		Seq:     dataFrame.Seq,
	}
	if _, err := p.medium.Send(p.ctx, ackFrame.serialize()); err != nil &&
		!errors.Is(err, context.Canceled) {
		p.l.
			WithError(err).
			WithField("frame", ackFrame).
			Error("error transmitting ack frame")
	}
}

func (p *radioPort) Close() error {
	// cancel ctx and wait threads
	var cancel context.CancelFunc
	cancel, p.cancelCtx = p.cancelCtx, nil
	if cancel == nil {
		return nil
	}
	cancel()
	p.wg.Wait()

	// close channels
	close(p.out)
	for range p.out {
	}
	close(p.in)
	close(p.outcomes)

	return p.medium.Close()
}

func (p *radioPort) Address() Address {
	return p.addr
}
