package delivery

import "errors"

// Sentinel errors for the delivery service layer.
var (
	ErrAccountNotFound = errors.New("email account not found")
	ErrInvalidEvent    = errors.New("invalid delivery event")
)
