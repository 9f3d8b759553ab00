package reconcile

import (
	"errors"

	"ewallet-webhook-go/internal/events"
	"ewallet-webhook-go/internal/signature"
	"ewallet-webhook-go/internal/store"
)

var terminalErrors = []error{
	events.ErrMalformedEvent,
	store.ErrAccountNotFound,
	store.ErrInsufficientFunds,
	store.ErrInvalidLedgerEvent,
	signature.ErrInvalidSignature,
	signature.ErrMissingCredentials,
}

// IsTerminal reports whether retrying err cannot succeed. Everything not
// listed (store unavailable, lock contention, concurrent modification) is transient.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range terminalErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type Class string

const (
	ClassTransient Class = "transient"
	ClassTerminal  Class = "terminal"
)

func Classify(err error) Class {
	if IsTerminal(err) {
		return ClassTerminal
	}
	return ClassTransient
}
