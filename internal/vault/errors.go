package vault

import "errors"

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrPaused             = errors.New("vault is paused")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrTransferFailed     = errors.New("asset transfer failed")
	ErrUnauthorized       = errors.New("caller is not the owner")
	ErrInvalidOwner       = errors.New("owner must be a non-zero address")
	ErrAlreadyPending     = errors.New("insight request already pending")
	ErrUnknownRequest     = errors.New("unknown insight request")
	ErrMalformedResponse  = errors.New("malformed oracle response")
	ErrTooSoon            = errors.New("not enough time passed")
	ErrIntervalTooShort   = errors.New("interval too short")
	ErrIntervalTooLong    = errors.New("interval too long")
	ErrNoActiveModel      = errors.New("no active model")
	ErrInvalidModel       = errors.New("model version must be set and accuracy within 0..100")
)
