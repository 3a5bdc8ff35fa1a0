package game

import "errors"

// Precondition failures. None of them mutate session or registry state.
var (
	ErrAlreadyActive     = errors.New("a game is already active")
	ErrNoActiveGame      = errors.New("no active game")
	ErrUnauthorized      = errors.New("only the interrogator may do this")
	ErrInvalidChoice     = errors.New("choice must be 1 or 2")
	ErrRoundLimitReached = errors.New("maximum rounds reached")
	ErrWrongChannel      = errors.New("wrong channel for this action")
	ErrEmptyQuestion     = errors.New("question is empty")
)

// ErrWaitTimeout is returned by Messenger.AwaitMessage when no qualifying
// message arrived in time.
var ErrWaitTimeout = errors.New("timed out waiting for message")

// ErrMessagingDelivery wraps failures of the messaging collaborator.
var ErrMessagingDelivery = errors.New("message delivery failed")
