// Package notifier contains the notification dispatcher and its event
// handlers: the polling loop that drains pending_notifications rows the
// game plugin writes and reflects each of them into Discord.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bridgemc/bridge-community-bot/internal/domain/event"
	"github.com/bridgemc/bridge-community-bot/pkg/logger"
)

// Handler processes one decoded event. A returned error moves the row
// to FAILED; handlers therefore swallow per-destination delivery
// failures and only error on conditions that make the whole event
// unprocessable.
type Handler interface {
	Handle(ctx context.Context, e *event.Event, payload event.Payload) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, e *event.Event, payload event.Payload) error

func (f HandlerFunc) Handle(ctx context.Context, e *event.Event, payload event.Payload) error {
	return f(ctx, e, payload)
}

// Dispatcher polls the event store, claims pending rows, and routes
// each to the handler registered for its kind.
type Dispatcher struct {
	events    event.Repository
	handlers  map[event.Kind]Handler
	batchSize int
	logger    *slog.Logger

	// inFlight guards against overlapping cycles: a Dispatch that
	// arrives while one is running is a no-op, not a queued retry.
	inFlight atomic.Bool
}

// NewDispatcher creates a Dispatcher. Handlers are registered
// separately so wiring stays explicit in main.
func NewDispatcher(events event.Repository, batchSize int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Dispatcher{
		events:    events,
		handlers:  make(map[event.Kind]Handler),
		batchSize: batchSize,
		logger:    logger.With("component", "dispatcher"),
	}
}

// RegisterHandler binds a handler to an event kind.
func (d *Dispatcher) RegisterHandler(kind event.Kind, h Handler) {
	d.handlers[kind] = h
}

// Dispatch runs one poll cycle: select up to batchSize PENDING rows
// oldest first, process each sequentially, and transition every row to
// a terminal state. Returns the number of rows processed.
func (d *Dispatcher) Dispatch(ctx context.Context) (int, error) {
	if !d.inFlight.CompareAndSwap(false, true) {
		d.logger.Debug("dispatch cycle already running, skipping")
		return 0, nil
	}
	defer d.inFlight.Store(false)

	batch, err := d.events.PendingBatch(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("dispatch: load pending batch: %w", err)
	}

	processed := 0
	for _, e := range batch {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		d.processOne(ctx, e)
		processed++
	}
	return processed, nil
}

// processOne routes a single row and records its terminal state. Row
// failures never abort the batch.
func (d *Dispatcher) processOne(ctx context.Context, e *event.Event) {
	log := d.logger.With(logger.EventID(e.ID), "kind", e.RawKind)

	if e.Kind == "" {
		// Unknown kind: drop explicitly rather than poison the batch
		// forever.
		log.Warn("unknown event kind, marking processed")
		d.markProcessed(ctx, e, log)
		return
	}

	payload, err := event.DecodePayload(e.Kind, e.Payload)
	if err != nil {
		log.Error("payload decode failed", "error", err)
		d.markFailed(ctx, e, log)
		return
	}

	handler, ok := d.handlers[e.Kind]
	if !ok {
		log.Warn("no handler registered for kind, marking processed")
		d.markProcessed(ctx, e, log)
		return
	}

	if err := handler.Handle(ctx, e, payload); err != nil {
		log.Error("handler failed", "error", err)
		d.markFailed(ctx, e, log)
		return
	}

	d.markProcessed(ctx, e, log)
}

func (d *Dispatcher) markProcessed(ctx context.Context, e *event.Event, log *slog.Logger) {
	claimed, err := d.events.MarkProcessed(ctx, e.ID)
	d.logClaim(claimed, err, log, "processed")
}

func (d *Dispatcher) markFailed(ctx context.Context, e *event.Event, log *slog.Logger) {
	claimed, err := d.events.MarkFailed(ctx, e.ID)
	d.logClaim(claimed, err, log, "failed")
}

func (d *Dispatcher) logClaim(claimed bool, err error, log *slog.Logger, state string) {
	switch {
	case err != nil && !errors.Is(err, event.ErrEventNotFound):
		log.Error("state transition failed", "target_state", state, "error", err)
	case !claimed:
		// Another instance won the claim; the row was not double
		// processed on the store side, only the side effects raced.
		log.Warn("lost claim, row already transitioned", "target_state", state)
	}
}
