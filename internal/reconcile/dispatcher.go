package reconcile

import (
	"context"
	"errors"
	"fmt"

	"ewallet-webhook-go/internal/events"

	"go.uber.org/zap"
)

// Dispatcher routes decoded events to the handler for their family
type Dispatcher struct {
	registry *events.Registry
	handlers map[events.Family]Handler
}

func NewDispatcher(registry *events.Registry, handlers map[events.Family]Handler) *Dispatcher {
	return &Dispatcher{registry: registry, handlers: handlers}
}

// Dispatch parses a raw, already verified body and handles it
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) (*Outcome, error) {
	env, err := events.Parse(raw)
	if err != nil {
		return nil, err
	}
	return d.Handle(ctx, env)
}

// Handle decodes the envelope and runs its handler. Unknown events are
// acknowledged with StatusIgnored.
func (d *Dispatcher) Handle(ctx context.Context, env events.Envelope) (*Outcome, error) {
	event, err := d.registry.Decode(env)
	if errors.Is(err, events.ErrUnknownEvent) {
		zap.L().Info("Unhandled event, acknowledging without processing", zap.String("event", env.Event))
		return &Outcome{Event: env.Event, Reference: env.Reference(), Status: StatusIgnored}, nil
	}
	if err != nil {
		zap.L().Warn("Rejected malformed event", zap.String("event", env.Event), zap.Error(err))
		return nil, err
	}

	handler, ok := d.handlers[event.Family()]
	if !ok {
		zap.L().Warn("No handler registered for event family",
			zap.String("event", env.Event),
			zap.String("family", string(event.Family())))
		return &Outcome{Event: env.Event, Family: event.Family(), Reference: event.Target().Reference, Status: StatusIgnored}, nil
	}

	target := event.Target()
	outcome, err := handler.Handle(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", env.Event, target.Reference, err)
	}
	outcome.Event = env.Event

	zap.L().Info("Event handled",
		zap.String("event", env.Event),
		zap.String("family", string(outcome.Family)),
		zap.String("reference", outcome.Reference),
		zap.String("account_number", outcome.AccountNumber),
		zap.String("status", string(outcome.Status)))
	return outcome, nil
}
