package audit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tradescrow/core/types"
)

type stubEvent struct {
	evt *types.Event
}

func (s stubEvent) EventType() string {
	if s.evt == nil {
		return ""
	}
	return s.evt.Type
}

func (s stubEvent) Event() *types.Event { return s.evt }

type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

func newStub(tradeID, operation string, extra map[string]string) stubEvent {
	attrs := map[string]string{
		"tradeId":   tradeID,
		"operation": operation,
		"actor":     "aabb",
		"state":     "funded",
		"timestamp": "1700000000",
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return stubEvent{evt: &types.Event{Type: "escrow.trade." + operation, Attributes: attrs}}
}

func TestEmitLiftsAttributes(t *testing.T) {
	log := NewLog()
	log.Emit(newStub("trade-1", "fund", map[string]string{"amount": "1000"}))

	records := log.Records()
	require.Len(t, records, 1)
	rec := records[0]
	require.NotEmpty(t, rec.ID)
	require.Equal(t, uint64(1), rec.Sequence)
	require.Equal(t, "trade-1", rec.TradeID)
	require.Equal(t, "fund", rec.Operation)
	require.Equal(t, "aabb", rec.Actor)
	require.Equal(t, "funded", rec.State)
	require.Equal(t, int64(1700000000), rec.Timestamp)
	require.Equal(t, map[string]string{"amount": "1000"}, rec.Payload)
}

func TestEmitOrderingAndSequence(t *testing.T) {
	log := NewLog()
	log.Emit(newStub("trade-1", "create", nil))
	log.Emit(newStub("trade-2", "create", nil))
	log.Emit(newStub("trade-1", "fund", nil))

	require.Equal(t, 3, log.Len())
	records := log.Records()
	for i, rec := range records {
		require.Equal(t, uint64(i+1), rec.Sequence)
	}

	history := log.ForTrade("trade-1")
	require.Len(t, history, 2)
	require.Equal(t, "create", history[0].Operation)
	require.Equal(t, "fund", history[1].Operation)
	require.Less(t, history[0].Sequence, history[1].Sequence)
}

func TestEmitIgnoresUntypedEvents(t *testing.T) {
	log := NewLog()
	log.Emit(bareEvent{})
	log.Emit(stubEvent{evt: nil})
	require.Equal(t, 0, log.Len())
}

func TestRecordsReturnsCopy(t *testing.T) {
	log := NewLog()
	log.Emit(newStub("trade-1", "create", nil))
	records := log.Records()
	records[0].Operation = "mutated"
	require.Equal(t, "create", log.Records()[0].Operation)
}
