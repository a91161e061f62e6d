package audit

import (
	"strconv"
	"sync"

	"github.com/google/uuid"

	"tradescrow/core/events"
	"tradescrow/core/types"
)

// Record is one immutable entry in the externally visible trade history.
// Records are not authoritative state but must be sufficient to reconstruct
// the full transition sequence deterministically.
type Record struct {
	ID        string            `json:"id"`
	Sequence  uint64            `json:"sequence"`
	TradeID   string            `json:"tradeId"`
	Operation string            `json:"operation"`
	Actor     string            `json:"actor"`
	Timestamp int64             `json:"timestamp"`
	State     string            `json:"state"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// Log is an append-only, emission-ordered audit trail. It satisfies
// events.Emitter so it can be wired directly behind the escrow engine;
// recording is fire-and-forget from the engine's perspective.
type Log struct {
	mu      sync.RWMutex
	seq     uint64
	records []Record
}

// NewLog creates an empty audit log.
func NewLog() *Log {
	return &Log{}
}

// Emit implements events.Emitter, converting each engine event into a record.
// Events that do not expose a typed payload are ignored.
func (l *Log) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	payload := carrier.Event()
	if payload == nil {
		return
	}
	rec := Record{
		ID:      uuid.NewString(),
		Payload: make(map[string]string),
	}
	for k, v := range payload.Attributes {
		switch k {
		case "tradeId":
			rec.TradeID = v
		case "operation":
			rec.Operation = v
		case "actor":
			rec.Actor = v
		case "state":
			rec.State = v
		case "timestamp":
			if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
				rec.Timestamp = ts
			}
		default:
			rec.Payload[k] = v
		}
	}
	if len(rec.Payload) == 0 {
		rec.Payload = nil
	}
	l.mu.Lock()
	l.seq++
	rec.Sequence = l.seq
	l.records = append(l.records, rec)
	l.mu.Unlock()
}

// Records returns a copy of the full history in emission order.
func (l *Log) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// ForTrade returns the history for a single trade in emission order.
func (l *Log) ForTrade(tradeID string) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Record
	for _, rec := range l.records {
		if rec.TradeID == tradeID {
			out = append(out, rec)
		}
	}
	return out
}

// Len reports the number of records appended so far.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
