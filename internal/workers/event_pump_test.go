package workers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluecarbon/mrv-registry/backend/internal/core/ports"
	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// streamLedger satisfies only the subscription side of the ledger client;
// the embedded interface covers methods the pump never calls.
type streamLedger struct {
	ports.LedgerClient
	events chan entities.LedgerEvent
}

func (l *streamLedger) SubscribeEvents(context.Context) (<-chan entities.LedgerEvent, error) {
	return l.events, nil
}

type fakeConfirmer struct {
	mu        sync.Mutex
	confirmed []string
	err       error
}

func (f *fakeConfirmer) ConfirmRegistration(_ context.Context, projectID, txHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, projectID+":"+txHash)
	return f.err
}

func (f *fakeConfirmer) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.confirmed...)
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []entities.LedgerEvent
}

func (f *fakeBroadcaster) Broadcast(event entities.LedgerEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeBroadcaster) seen() []entities.LedgerEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entities.LedgerEvent(nil), f.events...)
}

func runPump(t *testing.T, events []entities.LedgerEvent) (*fakeConfirmer, *fakeBroadcaster) {
	t.Helper()

	stream := make(chan entities.LedgerEvent)
	confirmer := &fakeConfirmer{}
	broadcaster := &fakeBroadcaster{}
	pump := NewEventPump(testLogger(), &streamLedger{events: stream}, confirmer, broadcaster)

	done := make(chan error, 1)
	go func() {
		done <- pump.Run(context.Background())
	}()

	for _, event := range events {
		stream <- event
	}
	close(stream)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pump did not stop after the stream closed")
	}
	return confirmer, broadcaster
}

func TestEventPumpConfirmsRegistrations(t *testing.T) {
	confirmer, broadcaster := runPump(t, []entities.LedgerEvent{
		{Type: entities.EventProjectRegistered, ProjectID: "p1", TxHash: "0xaa", BlockNumber: 7},
	})

	require.Equal(t, []string{"p1:0xaa"}, confirmer.calls())
	require.Len(t, broadcaster.seen(), 1)
}

func TestEventPumpDropsDuplicateEvents(t *testing.T) {
	registered := entities.LedgerEvent{Type: entities.EventProjectRegistered, ProjectID: "p1", TxHash: "0xaa"}
	minted := entities.LedgerEvent{Type: entities.EventCreditsMinted, ProjectID: "p1", TxHash: "0xbb"}

	confirmer, broadcaster := runPump(t, []entities.LedgerEvent{registered, registered, minted, minted})

	require.Equal(t, []string{"p1:0xaa"}, confirmer.calls(), "replayed registration is applied once")
	require.Len(t, broadcaster.seen(), 2)
}

func TestEventPumpDedupKeyIncludesEventType(t *testing.T) {
	// Same tx hash, different event types: both must pass through.
	confirmer, broadcaster := runPump(t, []entities.LedgerEvent{
		{Type: entities.EventProjectRegistered, ProjectID: "p1", TxHash: "0xaa"},
		{Type: entities.EventCreditsMinted, ProjectID: "p1", TxHash: "0xaa"},
	})

	require.Len(t, confirmer.calls(), 1)
	require.Len(t, broadcaster.seen(), 2)
}

func TestEventPumpEvictsOldestDedupEntries(t *testing.T) {
	events := []entities.LedgerEvent{
		{Type: entities.EventProjectRegistered, ProjectID: "p0", TxHash: "0x0"},
	}
	for i := 0; i < ports.EventDedupWindow; i++ {
		events = append(events, entities.LedgerEvent{
			Type:      entities.EventCreditsTransferred,
			ProjectID: "filler",
			TxHash:    fmt.Sprintf("0xfill%d", i),
		})
	}
	// The window rolled past the first event, so the replay is applied again.
	events = append(events, entities.LedgerEvent{Type: entities.EventProjectRegistered, ProjectID: "p0", TxHash: "0x0"})

	confirmer, _ := runPump(t, events)

	require.Equal(t, []string{"p0:0x0", "p0:0x0"}, confirmer.calls())
}

func TestEventPumpBroadcastsEvenWhenConfirmationFails(t *testing.T) {
	stream := make(chan entities.LedgerEvent)
	confirmer := &fakeConfirmer{err: fmt.Errorf("db unavailable")}
	broadcaster := &fakeBroadcaster{}
	pump := NewEventPump(testLogger(), &streamLedger{events: stream}, confirmer, broadcaster)

	done := make(chan error, 1)
	go func() {
		done <- pump.Run(context.Background())
	}()

	stream <- entities.LedgerEvent{Type: entities.EventProjectRegistered, ProjectID: "p1", TxHash: "0xaa"}
	close(stream)
	require.NoError(t, <-done)

	require.Len(t, broadcaster.seen(), 1, "subscribers still hear about the event")
}
