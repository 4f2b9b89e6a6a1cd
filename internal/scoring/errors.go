package scoring

import "errors"

var (
	// ErrInvalidRequest wraps every validation failure of an inbound
	// request; nothing has touched the ledger when it is returned.
	ErrInvalidRequest  = errors.New("invalid request")
	ErrUnknownModality = errors.New("unknown modality")
	ErrUnknownSkill    = errors.New("unknown skill")
	ErrInvalidConfig   = errors.New("invalid balancer config")
)
