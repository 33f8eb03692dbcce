package exception

import "errors"

var (
	ErrControlUnknownCommand = errors.New("control: unknown command")
	ErrControlInvalidRequest = errors.New("control: invalid request")
	ErrControlNilGateway     = errors.New("control: nil gateway")
)
