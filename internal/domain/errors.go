package domain

import "errors"

var (
	ErrInvalidState       = errors.New("invalid state")
	ErrEmptyAgentID       = errors.New("agent id must not be empty")
	ErrSubscriptionClosed = errors.New("subscription closed")
)
