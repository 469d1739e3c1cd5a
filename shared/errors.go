package shared

import "errors"

var (
	ErrNoLogger            = errors.New("no logger provided")
	ErrNoConfig            = errors.New("no config provided")
	ErrNoEngine            = errors.New("no engine provided")
	ErrEngineReleased      = errors.New("engine released")
	ErrNoGatewayURL        = errors.New("no gateway URL provided")
	ErrEmptyChannel        = errors.New("channel name is empty")
	ErrSessionAlreadyOpen  = errors.New("session already open")
	ErrSessionClosed       = errors.New("session closed")
	ErrHandlerAlreadySet   = errors.New("event handler already set")
	ErrTRHandlerAlreadySet = errors.New("track remote handler already set")
	ErrTLHandlerAlreadySet = errors.New("track local handler already set")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
)
