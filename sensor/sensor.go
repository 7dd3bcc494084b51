package sensor

import "context"

type (
	// Sensor is an asynchronous single-value sample primitive: a
	// blocking call returning one reading. Callers wanting the
	// completion delivered as an event should invoke Sample() on a
	// separate thread.
	Sensor interface {
		Sample(ctx context.Context) (uint16, error)
	}

	// Func adapts a function into a Sensor.
	Func func(ctx context.Context) (uint16, error)
)

func (f Func) Sample(ctx context.Context) (uint16, error) {
	return f(ctx)
}
