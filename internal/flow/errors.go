package flow

import "errors"

var (
	ErrUnknownKind   = errors.New("unknown flow kind")
	ErrUnknownMethod = errors.New("unknown auth method")
	ErrUnknownField  = errors.New("unknown form field")
	ErrWrongMethod   = errors.New("operation not available for the active method")
	ErrFlowNotFound  = errors.New("flow not found")
)
