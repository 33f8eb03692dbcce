package exception

import "errors"

var (
	ErrSessionNotAuthenticated = errors.New("session: not authenticated")
	ErrSessionNoPendingLogin   = errors.New("session: no pending login")
	ErrSessionNilService       = errors.New("session: nil service")
)
