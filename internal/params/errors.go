package params

import "errors"

var (
	ErrUnexpectedResponse = errors.New("params: unexpected response")
	ErrRequestTimeout     = errors.New("params: request timeout")
	ErrChannelUnavailable = errors.New("params: channel unavailable")
	ErrNoDevice           = errors.New("params: no device selected")
	ErrUnknownDevice      = errors.New("params: unknown device")
	ErrUnknownParameter   = errors.New("params: unknown parameter")
	ErrNotWritable        = errors.New("params: parameter not writable")
	ErrValueOutOfRange    = errors.New("params: value out of range")
	ErrNotFolder          = errors.New("params: not a folder")
	ErrNotCommand         = errors.New("params: not a command")
	ErrNoCommand          = errors.New("params: no command outstanding")
	ErrNoConfirmation     = errors.New("params: no confirmation pending")
	ErrNoNotice           = errors.New("params: no notice pending")
)
