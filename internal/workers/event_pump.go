package workers

import (
	"context"
	"log/slog"

	"github.com/bluecarbon/mrv-registry/backend/internal/core/ports"
	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
)

// RegistrationConfirmer settles pending ledger attempts once their events
// arrive.
type RegistrationConfirmer interface {
	ConfirmRegistration(ctx context.Context, projectID, txHash string) error
}

// EventBroadcaster fans an observed ledger event out to connected clients.
type EventBroadcaster interface {
	Broadcast(event entities.LedgerEvent)
}

// EventPump consumes the ledger event stream, applies registration
// confirmations and pushes every event to websocket subscribers. The
// stream is at-least-once, so the pump drops anything it has seen within
// the dedup window before acting.
type EventPump struct {
	logger      *slog.Logger
	ledger      ports.LedgerClient
	lifecycle   RegistrationConfirmer
	broadcaster EventBroadcaster

	seen      map[string]struct{}
	seenOrder []string
}

func NewEventPump(logger *slog.Logger, ledgerClient ports.LedgerClient, lifecycle RegistrationConfirmer, broadcaster EventBroadcaster) *EventPump {
	return &EventPump{
		logger:      logger,
		ledger:      ledgerClient,
		lifecycle:   lifecycle,
		broadcaster: broadcaster,
		seen:        make(map[string]struct{}, ports.EventDedupWindow),
	}
}

// Run blocks consuming events until ctx is cancelled or the stream
// closes. Only one Run per pump; the dedup state is not shared.
func (p *EventPump) Run(ctx context.Context) error {
	events, err := p.ledger.SubscribeEvents(ctx)
	if err != nil {
		return err
	}

	p.logger.Info("Ledger event pump started")

	for event := range events {
		if p.alreadySeen(event) {
			p.logger.Debug("Duplicate ledger event dropped",
				"type", event.Type, "tx_hash", event.TxHash)
			continue
		}

		p.apply(ctx, event)

		if p.broadcaster != nil {
			p.broadcaster.Broadcast(event)
		}
	}

	p.logger.Info("Ledger event pump stopped")
	return ctx.Err()
}

func (p *EventPump) apply(ctx context.Context, event entities.LedgerEvent) {
	switch event.Type {
	case entities.EventProjectRegistered:
		if err := p.lifecycle.ConfirmRegistration(ctx, event.ProjectID, event.TxHash); err != nil {
			p.logger.Error("Failed to confirm registration from event",
				"project_id", event.ProjectID, "tx_hash", event.TxHash, "error", err)
			return
		}
		p.logger.Info("Registration confirmed by ledger event",
			"project_id", event.ProjectID, "tx_hash", event.TxHash)

	case entities.EventProjectApproved, entities.EventCreditsMinted, entities.EventCreditsTransferred:
		p.logger.Info("Ledger event observed",
			"type", event.Type, "project_id", event.ProjectID,
			"tx_hash", event.TxHash, "block", event.BlockNumber)
	}
}

// alreadySeen records the event key and reports whether it was present.
// The window is bounded: the oldest key is evicted once it fills up.
func (p *EventPump) alreadySeen(event entities.LedgerEvent) bool {
	key := string(event.Type) + ":" + event.TxHash
	if _, ok := p.seen[key]; ok {
		return true
	}

	p.seen[key] = struct{}{}
	p.seenOrder = append(p.seenOrder, key)
	if len(p.seenOrder) > ports.EventDedupWindow {
		oldest := p.seenOrder[0]
		p.seenOrder = p.seenOrder[1:]
		delete(p.seen, oldest)
	}
	return false
}
