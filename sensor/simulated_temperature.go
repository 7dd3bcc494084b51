package sensor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	pkgtime "github.com/matheuscscp/radio-sim/pkg/time"
)

type (
	// SimulatedTemperatureConfig contains the configs for
	// NewSimulatedTemperature().
	SimulatedTemperatureConfig struct {
		// Min and Max bound the readings. Defaults: [150, 350]
		// (tenths of Celsius degrees).
		Min uint16 `yaml:"min"`
		Max uint16 `yaml:"max"`

		// Latency is how long a sample takes. Default: 10ms.
		Latency time.Duration `yaml:"latency"`

		// FailureRate is the probability of a sample failing,
		// within [0, 1]. Default: 0.
		FailureRate float64 `yaml:"failureRate"`
	}

	simulatedTemperature struct {
		conf *SimulatedTemperatureConfig

		mu   sync.Mutex
		last uint16
	}
)

// ErrSensorFailure is the error returned by a failed simulated
// sample.
var ErrSensorFailure = errors.New("sensor failure")

// NewSimulatedTemperature creates a Sensor producing a bounded
// random walk, simulating a slowly drifting temperature reading.
func NewSimulatedTemperature(conf SimulatedTemperatureConfig) (Sensor, error) {
	if conf.FailureRate < 0 || 1 < conf.FailureRate {
		return nil, fmt.Errorf("failure rate must be within [0, 1], got %v", conf.FailureRate)
	}
	if conf.Min == 0 && conf.Max == 0 {
		conf.Min, conf.Max = 150, 350
	}
	if conf.Max < conf.Min {
		return nil, fmt.Errorf("max (%d) must be greater than or equal to min (%d)", conf.Max, conf.Min)
	}
	if conf.Latency <= 0 {
		conf.Latency = 10 * time.Millisecond
	}
	return &simulatedTemperature{
		conf: &conf,
		last: conf.Min + uint16(rand.Intn(int(conf.Max-conf.Min)+1)),
	}, nil
}

func (s *simulatedTemperature) Sample(ctx context.Context) (uint16, error) {
	timer, stopTimer := pkgtime.NewTimer(s.conf.Latency)
	defer stopTimer()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
	}

	if rate := s.conf.FailureRate; rate > 0 && rand.Float64() < rate {
		return 0, ErrSensorFailure
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v := int(s.last) + rand.Intn(11) - 5
	if v < int(s.conf.Min) {
		v = int(s.conf.Min)
	}
	if v > int(s.conf.Max) {
		v = int(s.conf.Max)
	}
	s.last = uint16(v)
	return s.last, nil
}
