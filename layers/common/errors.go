package common

import "errors"

var (
	// ErrCannotSendEmpty is returned when trying to send an
	// empty payload over a medium or port.
	ErrCannotSendEmpty = errors.New("cannot send empty payload")

	// ErrPortBusy is returned by a port's send primitive when a
	// transmission is already outstanding. Ports transmit one
	// payload at a time.
	ErrPortBusy = errors.New("a transmission is already outstanding on this port")
)
