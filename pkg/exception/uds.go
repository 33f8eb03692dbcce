package exception

import "errors"

// Control socket errors
var (
	// ErrEmptyPathUDS is returned when a control socket path is empty.
	ErrEmptyPathUDS = errors.New("uds: empty socket path")

	// ErrNilClientUDS is returned when a nil client receiver is used.
	ErrNilClientUDS = errors.New("uds: nil client")
)
