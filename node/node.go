package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheuscscp/radio-sim/layers/link"
	pkgcontext "github.com/matheuscscp/radio-sim/pkg/context"
	pkgio "github.com/matheuscscp/radio-sim/pkg/io"
	"github.com/matheuscscp/radio-sim/sensor"

	"github.com/sirupsen/logrus"
)

type (
	// Role determines which side of the exchange a node plays.
	// It is chosen once at startup and never changes.
	Role int

	// State is the node state machine state. Only requesters
	// reach StateDone.
	State int

	// Config contains the configs for Run().
	Config struct {
		// Role is chosen by the caller, not by config files.
		Role Role `yaml:"-"`

		// PeerAddress is the radio address of the other node.
		PeerAddress uint8 `yaml:"peerAddress"`

		// RequestPeriod is the period of the requester's trigger.
		// Ignored by responders.
		RequestPeriod time.Duration `yaml:"requestPeriod"`

		Port link.RadioPortConfig `yaml:"radioPort"`
	}

	node struct {
		conf   *Config
		l      logrus.FieldLogger
		port   link.RadioPort
		sensor sensor.Sensor

		state   State
		counter uint16

		// inFlight is the transmission lock: at most one send may
		// be outstanding, a build request while it is held is a
		// no-op. sendBuf is the single reusable packet buffer,
		// owned by the node when non-nil and lent to the port
		// (tracked by lentBuf) for the duration of one send.
		inFlight bool
		sendBuf  []byte
		lentBuf  []byte

		ticker  *time.Ticker
		tickerC <-chan time.Time
		samples chan sampleResult
	}

	sampleResult struct {
		value uint16
		err   error
	}
)

const (
	RoleRequester Role = iota + 1
	RoleResponder
)

const (
	StateIdle State = iota
	StateAwaitingAck
	StateDone
)

func (r Role) String() string {
	switch r {
	case RoleRequester:
		return "requester"
	case RoleResponder:
		return "responder"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingAck:
		return "awaiting-ack"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Run runs a node of the request/response exchange until ctx is
// cancelled.
//
// A requester periodically builds and sends a request packet to
// the peer, tracked for link-layer acknowledgment. The first
// acknowledged request stops the periodic trigger: the exchange is
// designed as one successful round-trip. An unacknowledged request
// is not retried on its own, the next trigger fire sends a fresh
// one.
//
// A responder is purely reactive: each received request triggers a
// sensor sample, and a successful sample is sent back as a
// response packet echoing the request's counter. A lost response
// is only resolved by the requester sending a fresh request.
//
// All events (trigger fires, send outcomes, received frames,
// sample completions) are handled by a single thread, one event
// running to completion before the next is serviced.
//
// If port is nil, one is created from conf.Port and owned by the
// node, with radio bring-up retried indefinitely on failure.
// Otherwise the given port is used and the caller keeps ownership:
// closing it makes Run return.
func Run(ctx context.Context, conf Config, port link.RadioPort, sens sensor.Sensor) error {
	if conf.Role != RoleRequester && conf.Role != RoleResponder {
		return fmt.Errorf("unknown role: %d", int(conf.Role))
	}
	if conf.PeerAddress == 0 {
		return errors.New("the zero address is not a valid peer address")
	}
	if conf.Role == RoleRequester && conf.RequestPeriod <= 0 {
		return errors.New("requesters need a positive request period")
	}
	if conf.Role == RoleResponder && sens == nil {
		return errors.New("responders need a sensor")
	}

	n := &node{
		conf:    &conf,
		sensor:  sens,
		state:   StateIdle,
		sendBuf: make([]byte, PacketSize),
		samples: make(chan sampleResult, 1),
	}

	// the requester's periodic trigger starts right away, it is
	// not gated on radio readiness
	if conf.Role == RoleRequester {
		n.ticker = time.NewTicker(conf.RequestPeriod)
		n.tickerC = n.ticker.C
		defer n.ticker.Stop()
	}

	// radio bring-up, retried until it succeeds
	if port == nil {
		l := logrus.
			WithField("node_address", conf.Port.Address).
			WithField("role", conf.Role)
		for port == nil {
			var err error
			port, err = link.NewRadioPort(ctx, conf.Port)
			if err != nil {
				if pkgcontext.IsContextError(ctx, err) {
					return err
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				l.
					WithError(err).
					Error("error starting radio, retrying")
			}
		}
		defer func() {
			if err := pkgio.Close(port); err != nil {
				l.
					WithError(err).
					Error("error stopping radio")
			} else {
				l.Info("radio stopped")
			}
		}()
	}
	n.port = port
	n.l = logrus.
		WithField("node_address", port.Address()).
		WithField("role", conf.Role)
	n.l.Info("radio started")

	// event loop
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-n.tickerC:
			n.handleTick(ctx)
		case outcome, ok := <-n.port.Outcomes():
			if !ok {
				return nil
			}
			n.handleSendOutcome(outcome)
		case frame, ok := <-n.port.Recv():
			if !ok {
				return nil
			}
			n.handleFrame(ctx, frame)
		case res := <-n.samples:
			n.handleSample(ctx, res)
		}
	}
}

// handleTick fires on the requester's periodic trigger and builds
// a fresh request. Fires delivered after the exchange completed
// are ignored.
func (n *node) handleTick(ctx context.Context) {
	if n.state == StateDone {
		return
	}
	n.buildAndSend(ctx, PacketTypeRequest, n.counter, 0, link.Address(n.conf.PeerAddress))
}

// buildAndSend constructs a packet into the shared send buffer and
// submits it to the port with acknowledgment tracking. A no-op
// while a transmission is in flight: retries are driven externally
// by the periodic trigger or by the next received request. On
// submission failure the transmission lock is left untouched so
// the next trigger can retry immediately.
func (n *node) buildAndSend(ctx context.Context, packetType PacketType, counter, value uint16, dstAddr link.Address) {
	if n.inFlight {
		n.l.
			WithField("packet_type", packetType).
			Debug("transmission in flight, dropping send request")
		return
	}

	buf := n.sendBuf
	if buf == nil {
		n.l.
			WithField("packet_type", packetType).
			Error("send buffer unavailable, dropping send request")
		return
	}

	packet := &Packet{Type: packetType, Counter: counter, Value: value}
	if err := packet.Marshal(buf); err != nil {
		n.l.
			WithError(err).
			Error("error marshaling packet")
		return
	}

	l := n.l.
		WithField("packet", packet).
		WithField("dst_address", dstAddr)
	if err := n.port.Send(ctx, dstAddr, buf); err != nil {
		l.
			WithError(err).
			Error("error submitting packet to radio")
		return
	}
	n.sendBuf, n.lentBuf = nil, buf
	n.inFlight = true
	n.state = StateAwaitingAck
	l.Info("sending packet")
}

// handleSendOutcome is the single place where the acknowledgment
// outcome of a transmission is interpreted.
func (n *node) handleSendOutcome(outcome link.SendOutcome) {
	// the node lends exactly one buffer at a time, an outcome for
	// any other buffer is not ours
	if n.lentBuf == nil || len(outcome.Payload) == 0 || &outcome.Payload[0] != &n.lentBuf[0] {
		n.l.Warn("send outcome for an unknown buffer, ignoring")
		return
	}

	// the buffer returns to the node and the transmission lock is
	// cleared unconditionally
	n.sendBuf, n.lentBuf = outcome.Payload, nil
	n.inFlight = false

	// the requester's counter advances once per completed attempt,
	// acknowledged or not
	if n.conf.Role == RoleRequester {
		n.counter++
	}

	if !outcome.Acked {
		n.l.Warn("transmission not acknowledged, recovery is up to the next trigger")
		if n.state == StateAwaitingAck {
			n.state = StateIdle
		}
		return
	}

	switch n.conf.Role {
	case RoleRequester:
		n.stopTrigger()
		n.state = StateDone
		n.l.Info("request acknowledged, stopping periodic trigger")
	default:
		n.state = StateIdle
		n.l.Info("response acknowledged")
	}
}

// handleFrame classifies an inbound frame and routes it. Payloads
// whose length does not match the packet size are rejected without
// being interpreted.
func (n *node) handleFrame(ctx context.Context, frame *link.Frame) {
	l := n.l.
		WithField("src_address", frame.SrcAddr)
	if len(frame.Payload) != PacketSize {
		l.
			WithField("payload_length", len(frame.Payload)).
			Warn("received frame with unexpected payload length, dropping")
		return
	}
	packet, err := UnmarshalPacket(frame.Payload)
	if err != nil {
		l.
			WithError(err).
			Warn("error unmarshaling packet, dropping")
		return
	}

	l = l.WithField("packet", packet)
	switch packet.Type {
	case PacketTypeResponse:
		l.Info("received response")
	case PacketTypeRequest:
		if n.sensor == nil {
			l.Warn("received request but no sensor is configured, dropping")
			return
		}
		// adopt the requester's counter so the eventual response
		// echoes it. the response itself is deferred to the sample
		// completion
		n.counter = packet.Counter
		l.Info("received request, sampling sensor")
		n.requestSample(ctx)
	default:
		l.Warn("received packet of unknown type, dropping")
	}
}

func (n *node) requestSample(ctx context.Context) {
	go func() {
		value, err := n.sensor.Sample(ctx)
		select {
		case <-ctx.Done():
		case n.samples <- sampleResult{value, err}:
		}
	}()
}

// handleSample sends the response on a successful sample. On
// failure no response is sent: the exchange stalls until the
// requester retries with a fresh request, which triggers a new
// sample attempt.
func (n *node) handleSample(ctx context.Context, res sampleResult) {
	if res.err != nil {
		n.l.
			WithError(res.err).
			Error("error sampling sensor, no response will be sent")
		return
	}
	n.buildAndSend(ctx, PacketTypeResponse, n.counter, res.value, link.Address(n.conf.PeerAddress))
}

// stopTrigger stops the periodic trigger. Idempotent: fires
// already delivered are discarded by handleTick.
func (n *node) stopTrigger() {
	if n.ticker != nil {
		n.ticker.Stop()
	}
	n.tickerC = nil
}
